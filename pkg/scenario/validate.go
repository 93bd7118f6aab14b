package scenario

import (
	"fmt"

	"github.com/nightline-game/nightline/pkg/conditionals"
)

// Validate performs referential checks on a loaded night and returns a list
// of warnings. Configuration problems are never fatal: a dangling segment
// reference degrades to "segment ends call" and a broken condition to
// "never matches", so callers log the warnings and continue.
func (n *Night) Validate() []string {
	var warnings []string

	if n.ID == "" {
		warnings = append(warnings, "night has no id")
	}

	flagIDs := make(map[string]bool, len(n.Flags))
	for _, def := range n.Flags {
		if flagIDs[def.ID] {
			warnings = append(warnings, fmt.Sprintf("duplicate flag definition %q", def.ID))
		}
		flagIDs[def.ID] = true
		if def.Category == "" {
			warnings = append(warnings, fmt.Sprintf("flag %q has no category", def.ID))
		}
	}
	categories := n.Categories()

	for _, rule := range n.Exclusions {
		if !flagIDs[rule.WhenSet] {
			warnings = append(warnings, fmt.Sprintf("exclusion rule triggered by unknown flag %q", rule.WhenSet))
		}
		for _, cancel := range rule.Cancels {
			if !flagIDs[cancel] {
				warnings = append(warnings, fmt.Sprintf("exclusion rule for %q cancels unknown flag %q", rule.WhenSet, cancel))
			}
			if cancel == rule.WhenSet {
				warnings = append(warnings, fmt.Sprintf("exclusion rule for %q cancels its own trigger", rule.WhenSet))
			}
		}
	}

	for i, cond := range n.EndStates {
		where := fmt.Sprintf("end state rule %d (%s)", i, cond.EndState)
		if cond.EndState == "" {
			warnings = append(warnings, fmt.Sprintf("end state rule %d has no end state", i))
		}
		warnings = append(warnings, n.validateSet(cond.Conditions(), flagIDs, categories, where)...)
	}

	mapped := make(map[string]bool, len(n.Endings))
	for _, m := range n.Endings {
		if mapped[m.EndState] {
			warnings = append(warnings, fmt.Sprintf("duplicate ending mapping for end state %q", m.EndState))
		}
		mapped[m.EndState] = true
		if m.Regardless == "" && (m.IfSurvived == "" || m.IfDied == "") {
			warnings = append(warnings, fmt.Sprintf("ending mapping for %q needs either regardless or both survival branches", m.EndState))
		}
	}
	if n.DefaultEndState == "" {
		warnings = append(warnings, "night has no default end state")
	}
	if n.DefaultEnding == "" {
		warnings = append(warnings, "night has no default ending id")
	}
	if n.Survival.RequiresDispatch && n.Survival.DispatchFlag != "" && !flagIDs[n.Survival.DispatchFlag] {
		warnings = append(warnings, fmt.Sprintf("survival condition references unknown dispatch flag %q", n.Survival.DispatchFlag))
	}

	callIDs := make(map[string]bool, len(n.Calls))
	for i := range n.Calls {
		warnings = append(warnings, n.validateCall(&n.Calls[i], flagIDs, categories, callIDs)...)
	}

	return warnings
}

func (n *Night) validateCall(c *Call, flagIDs map[string]bool, categories map[string]bool, callIDs map[string]bool) []string {
	var warnings []string

	if c.ID == "" {
		warnings = append(warnings, "call has no id")
	} else if callIDs[c.ID] {
		warnings = append(warnings, fmt.Sprintf("duplicate call id %q", c.ID))
	}
	callIDs[c.ID] = true

	if len(c.Segments) == 0 {
		warnings = append(warnings, fmt.Sprintf("call %q has no segments", c.ID))
	}
	warnings = append(warnings, n.validateSet(c.Trigger, flagIDs, categories, fmt.Sprintf("call %q trigger", c.ID))...)

	segIDs := make(map[string]bool, len(c.Segments))
	for _, seg := range c.Segments {
		if segIDs[seg.ID] {
			warnings = append(warnings, fmt.Sprintf("call %q has duplicate segment id %q", c.ID, seg.ID))
		}
		segIDs[seg.ID] = true
	}
	if c.StartSegment != "" && !segIDs[c.StartSegment] {
		warnings = append(warnings, fmt.Sprintf("call %q start segment %q does not exist", c.ID, c.StartSegment))
	}

	for i := range c.Segments {
		seg := &c.Segments[i]
		where := fmt.Sprintf("call %q segment %q", c.ID, seg.ID)

		if seg.DefaultNext != "" && !segIDs[seg.DefaultNext] {
			warnings = append(warnings, fmt.Sprintf("%s default next %q does not exist", where, seg.DefaultNext))
		}
		if seg.TimeoutResponse != "" && seg.Response(seg.TimeoutResponse) == nil {
			warnings = append(warnings, fmt.Sprintf("%s timeout response %q does not exist", where, seg.TimeoutResponse))
		}
		warnings = append(warnings, n.validateSet(seg.Conditions, flagIDs, categories, where)...)

		for _, r := range seg.Responses {
			rwhere := fmt.Sprintf("%s response %q", where, r.ID)
			if r.Next != "" && !segIDs[r.Next] {
				warnings = append(warnings, fmt.Sprintf("%s next segment %q does not exist", rwhere, r.Next))
			}
			for _, f := range r.SetFlags {
				if !flagIDs[f] {
					warnings = append(warnings, fmt.Sprintf("%s sets unknown flag %q", rwhere, f))
				}
			}
			for _, f := range r.ClearFlags {
				if !flagIDs[f] {
					warnings = append(warnings, fmt.Sprintf("%s clears unknown flag %q", rwhere, f))
				}
			}
			warnings = append(warnings, n.validateSet(r.Requirements, flagIDs, categories, rwhere)...)
		}
	}

	return warnings
}

func (n *Night) validateSet(set conditionals.Set, flagIDs map[string]bool, categories map[string]bool, where string) []string {
	var warnings []string
	for _, fc := range set.Flags {
		if !flagIDs[fc.Flag] {
			warnings = append(warnings, fmt.Sprintf("%s references unknown flag %q", where, fc.Flag))
		}
	}
	for _, sc := range set.Scores {
		if !categories[sc.Category] {
			warnings = append(warnings, fmt.Sprintf("%s references unknown category %q", where, sc.Category))
		}
		if !sc.Op.Valid() {
			warnings = append(warnings, fmt.Sprintf("%s uses unknown comparison operator %q", where, sc.Op))
		}
	}
	return warnings
}
