package conditionals

// EvaluateFlag checks a single flag condition against the view.
// An unknown flag ID reads as unset, so requiring value=false on an
// unknown flag holds and requiring value=true does not.
func EvaluateFlag(c FlagCondition, view FlagView) bool {
	return view.IsSet(c.Flag) == c.Value
}

// EvaluateScore checks a single score condition against the view.
// Unknown categories score zero; unknown operators never hold.
func EvaluateScore(c ScoreCondition, view FlagView) bool {
	return c.Op.Holds(view.CategoryScore(c.Category), c.Value)
}

// EvaluateAll checks every condition in the set with AND semantics.
// An empty set always holds, which is how catch-all rule entries are written.
func EvaluateAll(s Set, view FlagView) bool {
	for _, fc := range s.Flags {
		if !EvaluateFlag(fc, view) {
			return false
		}
	}
	for _, sc := range s.Scores {
		if !EvaluateScore(sc, view) {
			return false
		}
	}
	return true
}
