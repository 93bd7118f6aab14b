package scenario

// FlagDefinition is the static metadata for one flag in a night.
// Definitions are loaded once at night start and are immutable thereafter.
type FlagDefinition struct {
	ID          string `json:"id"`
	Category    string `json:"category"`              // e.g. "disclosure", "evidence", "dispatch"
	Weight      int    `json:"weight"`                // Contribution to the category score when set
	Persists    bool   `json:"persists,omitempty"`    // Carried forward to the next night
	Description string `json:"description,omitempty"` // Author-facing note
}

// MutualExclusionRule cancels a set of flags whenever its trigger flag is set.
// The cancellation happens atomically in the same setFlag operation and
// never re-triggers further rules.
type MutualExclusionRule struct {
	WhenSet string   `json:"when_set"`
	Cancels []string `json:"cancels"`
}
