package scenario

// Night is the template for one complete play session: its flags, calls,
// and end-state rule table. Loaded once per session and read-only thereafter.
type Night struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FileName string `json:"file_name,omitempty"` // Set by the loader, not by authors
	Story    string `json:"story,omitempty"`     // Brief description of the night

	// StartTimeMinutes is the sim clock value at shift start.
	StartTimeMinutes int `json:"start_time_minutes,omitempty"`

	// DefaultRingMinutes applies to calls without an explicit ring duration.
	DefaultRingMinutes int `json:"default_ring_minutes,omitempty"`

	Flags      []FlagDefinition      `json:"flags"`
	Exclusions []MutualExclusionRule `json:"exclusions,omitempty"`

	EndStates       []EndStateCondition     `json:"end_states"`
	Endings         []EndingMapping         `json:"endings"`
	EndingTitles    map[string]string       `json:"ending_titles,omitempty"`
	Survival        VictimSurvivalCondition `json:"survival"`
	DefaultEndState string                  `json:"default_end_state"`
	DefaultEnding   string                  `json:"default_ending"`

	Calls []Call `json:"calls"`
}

// FlagDef returns the definition for a flag ID, or nil if unknown.
func (n *Night) FlagDef(id string) *FlagDefinition {
	for i := range n.Flags {
		if n.Flags[i].ID == id {
			return &n.Flags[i]
		}
	}
	return nil
}

// Call returns the call with the given ID, or nil.
func (n *Night) Call(id string) *Call {
	for i := range n.Calls {
		if n.Calls[i].ID == id {
			return &n.Calls[i]
		}
	}
	return nil
}

// Mapping returns the ending mapping for an end state, or nil.
func (n *Night) Mapping(endState string) *EndingMapping {
	for i := range n.Endings {
		if n.Endings[i].EndState == endState {
			return &n.Endings[i]
		}
	}
	return nil
}

// Categories returns the set of categories used by the night's flag
// definitions. The category vocabulary is closed per night but free-form
// across nights.
func (n *Night) Categories() map[string]bool {
	cats := make(map[string]bool, len(n.Flags))
	for _, def := range n.Flags {
		cats[def.Category] = true
	}
	return cats
}
