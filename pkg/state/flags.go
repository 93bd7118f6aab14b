package state

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/nightline-game/nightline/pkg/conditionals"
	"github.com/nightline-game/nightline/pkg/scenario"
)

// Flag is one recorded fact: a flag ID plus the sim time it was set.
type Flag struct {
	ID           string `json:"flag_id"`
	SetAtMinutes int    `json:"set_time"`
}

// FlagStore is the fact database for one active session. Flags are created
// on first SetFlag and live for the night; mutual-exclusion rules cascade
// inside the same SetFlag operation. One store per active session, no
// shared global state.
type FlagStore struct {
	nightID     string
	defs        map[string]scenario.FlagDefinition
	cancels     map[string][]string // trigger flag -> flags cleared when it is set
	flags       map[string]int      // flag ID -> sim minute it was set
	retimeOnSet bool
	initialized bool
	logger      *slog.Logger
	notify      func(flagID string)
}

// Ensure FlagStore satisfies the condition evaluator's view.
var _ conditionals.FlagView = (*FlagStore)(nil)

// FlagStoreOption configures a FlagStore at construction.
type FlagStoreOption func(*FlagStore)

// RetimeOnSet makes re-setting an already-set flag update its recorded time.
// The default is first-write-wins.
func RetimeOnSet() FlagStoreOption {
	return func(fs *FlagStore) { fs.retimeOnSet = true }
}

// NewFlagStore creates an empty flag store. Initialize must be called with
// the night's definitions before use.
func NewFlagStore(logger *slog.Logger, opts ...FlagStoreOption) *FlagStore {
	fs := &FlagStore{
		defs:    make(map[string]scenario.FlagDefinition),
		cancels: make(map[string][]string),
		flags:   make(map[string]int),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Initialize resets all flags and loads the night's definitions and
// exclusion rules. Calling it twice without an intervening Reset is a
// defensive no-op with a diagnostic.
func (fs *FlagStore) Initialize(nightID string, defs []scenario.FlagDefinition, rules []scenario.MutualExclusionRule) error {
	if fs.initialized {
		if fs.logger != nil {
			fs.logger.Warn("Flag store already initialized, ignoring",
				"current_night", fs.nightID,
				"requested_night", nightID)
		}
		return fmt.Errorf("flag store already initialized for night %s", fs.nightID)
	}

	fs.nightID = nightID
	fs.defs = make(map[string]scenario.FlagDefinition, len(defs))
	for _, def := range defs {
		fs.defs[def.ID] = def
	}
	fs.cancels = make(map[string][]string, len(rules))
	for _, rule := range rules {
		fs.cancels[rule.WhenSet] = append(fs.cancels[rule.WhenSet], rule.Cancels...)
	}
	fs.flags = make(map[string]int)
	fs.initialized = true
	return nil
}

// Reset clears all flags and definitions, making the store re-initializable.
func (fs *FlagStore) Reset() {
	fs.nightID = ""
	fs.defs = make(map[string]scenario.FlagDefinition)
	fs.cancels = make(map[string][]string)
	fs.flags = make(map[string]int)
	fs.initialized = false
}

// SetNotify registers a callback invoked after each flag is newly set.
// Fan-out is synchronous and single-threaded.
func (fs *FlagStore) SetNotify(fn func(flagID string)) {
	fs.notify = fn
}

// SetFlag records a flag at the given sim time. Re-setting an already-set
// flag keeps the original time (first-write-wins) unless the store was
// built with RetimeOnSet. Each call runs the mutual-exclusion cascade for
// the flag: rules triggered by it clear their targets once, and those
// clears never trigger further rules.
func (fs *FlagStore) SetFlag(flagID string, atMinutes int) {
	if _, known := fs.defs[flagID]; !known && fs.logger != nil {
		fs.logger.Warn("Setting flag with no definition", "flag", flagID, "night", fs.nightID)
	}

	_, already := fs.flags[flagID]
	switch {
	case !already:
		fs.flags[flagID] = atMinutes
	case fs.retimeOnSet:
		fs.flags[flagID] = atMinutes
	}

	for _, cancel := range fs.cancels[flagID] {
		if cancel == flagID {
			continue
		}
		delete(fs.flags, cancel)
	}

	if !already && fs.notify != nil {
		fs.notify(flagID)
	}
}

// ClearFlag removes a flag if present; clearing an unset flag is a no-op.
func (fs *FlagStore) ClearFlag(flagID string) {
	delete(fs.flags, flagID)
}

// IsSet reports whether a flag is currently set.
func (fs *FlagStore) IsSet(flagID string) bool {
	_, ok := fs.flags[flagID]
	return ok
}

// SetTime returns the sim minute a flag was set, if it is set.
func (fs *FlagStore) SetTime(flagID string) (int, bool) {
	t, ok := fs.flags[flagID]
	return t, ok
}

// CategoryScore sums the weights of all currently-set flags whose
// definition matches the category. Flags without definitions contribute 0.
func (fs *FlagStore) CategoryScore(category string) int {
	score := 0
	for id := range fs.flags {
		if def, ok := fs.defs[id]; ok && def.Category == category {
			score += def.Weight
		}
	}
	return score
}

// AllFlags returns every set flag ordered by set time, then ID.
// Used for persistence export.
func (fs *FlagStore) AllFlags() []Flag {
	flags := make([]Flag, 0, len(fs.flags))
	for id, at := range fs.flags {
		flags = append(flags, Flag{ID: id, SetAtMinutes: at})
	}
	sort.Slice(flags, func(i, j int) bool {
		if flags[i].SetAtMinutes != flags[j].SetAtMinutes {
			return flags[i].SetAtMinutes < flags[j].SetAtMinutes
		}
		return flags[i].ID < flags[j].ID
	})
	return flags
}

// PersistentFlags returns the subset of set flags whose definitions carry
// across nights.
func (fs *FlagStore) PersistentFlags() []Flag {
	var flags []Flag
	for _, f := range fs.AllFlags() {
		if def, ok := fs.defs[f.ID]; ok && def.Persists {
			flags = append(flags, f)
		}
	}
	return flags
}

// Import pre-sets flags carried over from a previous night. Each import
// goes through SetFlag so exclusion invariants hold for the combined set.
func (fs *FlagStore) Import(flags []Flag) {
	for _, f := range flags {
		fs.SetFlag(f.ID, f.SetAtMinutes)
	}
}

// NightID returns the night this store was initialized for.
func (fs *FlagStore) NightID() string {
	return fs.nightID
}
