package scenario

import "github.com/nightline-game/nightline/pkg/conditionals"

// EndStateCondition is one row of the night's end-state rule table.
// All listed conditions must hold for the end state to be a candidate.
// Among candidates the highest priority wins; ties resolve in declaration
// order, which is how specific states out-rank catch-alls.
type EndStateCondition struct {
	EndState string                        `json:"end_state"`
	Priority int                           `json:"priority"`
	Scores   []conditionals.ScoreCondition `json:"scores,omitempty"`
	Flags    []conditionals.FlagCondition  `json:"flags,omitempty"`
}

// Conditions returns the row's conditions as a composite set.
func (c EndStateCondition) Conditions() conditionals.Set {
	return conditionals.Set{Flags: c.Flags, Scores: c.Scores}
}

// EndingMapping maps an end state to concrete ending IDs. When Regardless
// is set it is returned unconditionally; otherwise the survival check
// selects between IfSurvived and IfDied.
type EndingMapping struct {
	EndState   string `json:"end_state"`
	IfSurvived string `json:"if_survived,omitempty"`
	IfDied     string `json:"if_died,omitempty"`
	Regardless string `json:"regardless,omitempty"`
}

// VictimSurvivalCondition encodes the night's time-boxed rescue window.
type VictimSurvivalCondition struct {
	RequiresDispatch       bool   `json:"requires_dispatch"`
	MaxDispatchTimeMinutes int    `json:"max_dispatch_minutes"`
	DispatchFlag           string `json:"dispatch_flag,omitempty"`
}

// Survived reports whether the victim survives given a dispatch time.
// A nil dispatch time means help was never sent.
func (v VictimSurvivalCondition) Survived(dispatchMinutes *int) bool {
	if !v.RequiresDispatch {
		return true
	}
	return dispatchMinutes != nil && *dispatchMinutes <= v.MaxDispatchTimeMinutes
}
