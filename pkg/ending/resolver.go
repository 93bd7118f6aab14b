package ending

import (
	"log/slog"

	"github.com/nightline-game/nightline/pkg/conditionals"
	"github.com/nightline-game/nightline/pkg/scenario"
)

// flagTimes is an optional view extension for reading a flag's set time.
// The flag store implements it; plain condition views need not.
type flagTimes interface {
	SetTime(flagID string) (int, bool)
}

// Resolver picks exactly one narrative end state per session from the
// night's rule table and maps it to a concrete ending ID. Nothing here is
// fatal: broken rules degrade to "not matched" and missing mappings fall
// back to the night's defaults, so session-end resolution always produces
// some ending.
type Resolver struct {
	night  *scenario.Night
	flags  conditionals.FlagView
	logger *slog.Logger
}

// NewResolver creates a resolver over the night's rule table and a flag
// store snapshot.
func NewResolver(night *scenario.Night, flags conditionals.FlagView, logger *slog.Logger) *Resolver {
	return &Resolver{
		night:  night,
		flags:  flags,
		logger: logger,
	}
}

// DetermineEndState evaluates every rule table row and returns the winning
// end state: highest priority among candidates, declaration order breaking
// ties. With no candidates the night's default end state is returned.
func (r *Resolver) DetermineEndState() string {
	var matched *scenario.EndStateCondition
	for i := range r.night.EndStates {
		cond := &r.night.EndStates[i]
		r.warnUnknownRefs(cond)
		if !conditionals.EvaluateAll(cond.Conditions(), r.flags) {
			continue
		}
		// Strictly-greater keeps the first declared row on priority ties,
		// which is how specific states out-rank catch-alls.
		if matched == nil || cond.Priority > matched.Priority {
			matched = cond
		}
	}

	if matched == nil {
		if r.logger != nil {
			r.logger.Debug("No end state condition matched, using default",
				"night", r.night.ID,
				"default", r.night.DefaultEndState)
		}
		return r.night.DefaultEndState
	}
	return matched.EndState
}

// warnUnknownRefs logs rule references that can never match anything, so
// a typo'd flag or category degrades visibly rather than silently.
func (r *Resolver) warnUnknownRefs(cond *scenario.EndStateCondition) {
	if r.logger == nil {
		return
	}
	set := cond.Conditions()
	for _, fc := range set.Flags {
		if r.night.FlagDef(fc.Flag) == nil {
			r.logger.Warn("End state rule references unknown flag",
				"night", r.night.ID, "end_state", cond.EndState, "flag", fc.Flag)
		}
	}
	categories := r.night.Categories()
	for _, sc := range set.Scores {
		if !categories[sc.Category] {
			r.logger.Warn("End state rule references unknown category",
				"night", r.night.ID, "end_state", cond.EndState, "category", sc.Category)
		}
	}
}

// DetermineEnding resolves the session to a concrete ending ID. The
// dispatch time feeds the victim-survival check; nil means help was never
// sent. When nil and the night names a dispatch flag, the flag's recorded
// set time is used instead, so resolution works from a bare flag snapshot.
func (r *Resolver) DetermineEnding(dispatchMinutes *int) string {
	endState := r.DetermineEndState()

	if dispatchMinutes == nil && r.night.Survival.DispatchFlag != "" {
		if ft, ok := r.flags.(flagTimes); ok {
			if at, set := ft.SetTime(r.night.Survival.DispatchFlag); set {
				dispatchMinutes = &at
			}
		}
	}

	mapping := r.night.Mapping(endState)
	if mapping == nil {
		if r.logger != nil {
			r.logger.Warn("No ending mapping for end state, using default ending",
				"night", r.night.ID,
				"end_state", endState,
				"default", r.night.DefaultEnding)
		}
		return r.night.DefaultEnding
	}

	if mapping.Regardless != "" {
		return mapping.Regardless
	}
	if r.night.Survival.Survived(dispatchMinutes) {
		return mapping.IfSurvived
	}
	return mapping.IfDied
}
