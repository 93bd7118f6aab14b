package conditionals

// Comparison is a numeric comparison operator applied to category scores.
type Comparison string

const (
	CompareEqual          Comparison = "eq"
	CompareNotEqual       Comparison = "ne"
	CompareGreater        Comparison = "gt"
	CompareGreaterOrEqual Comparison = "gte"
	CompareLess           Comparison = "lt"
	CompareLessOrEqual    Comparison = "lte"
)

// Holds applies the comparison to two integers.
// Unknown operators never hold, so a malformed condition degrades to "not matched".
func (c Comparison) Holds(left, right int) bool {
	switch c {
	case CompareEqual:
		return left == right
	case CompareNotEqual:
		return left != right
	case CompareGreater:
		return left > right
	case CompareGreaterOrEqual:
		return left >= right
	case CompareLess:
		return left < right
	case CompareLessOrEqual:
		return left <= right
	default:
		return false
	}
}

// Valid reports whether c is one of the known operators.
func (c Comparison) Valid() bool {
	switch c {
	case CompareEqual, CompareNotEqual, CompareGreater,
		CompareGreaterOrEqual, CompareLess, CompareLessOrEqual:
		return true
	}
	return false
}

// FlagCondition checks whether a single flag is set (or unset).
type FlagCondition struct {
	Flag  string `json:"flag"`  // Flag ID to check
	Value bool   `json:"value"` // Required state of the flag
}

// ScoreCondition compares a category's aggregate score against a threshold.
type ScoreCondition struct {
	Category string     `json:"category"`
	Op       Comparison `json:"op"`
	Value    int        `json:"value"`
}

// Set is a composite condition list with AND semantics.
// There is no native OR: alternatives are expressed as separate
// top-level rule entries.
type Set struct {
	Flags  []FlagCondition  `json:"flags,omitempty"`
	Scores []ScoreCondition `json:"scores,omitempty"`
}

// Empty reports whether the set contains no conditions.
func (s Set) Empty() bool {
	return len(s.Flags) == 0 && len(s.Scores) == 0
}

// FlagView provides the minimal interface needed to evaluate conditions.
// This avoids an import cycle with the state package.
type FlagView interface {
	IsSet(flagID string) bool
	CategoryScore(category string) int
}
