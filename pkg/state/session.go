package state

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the persisted snapshot of one night session. It is
// written at well-defined checkpoints (call end, night end, explicit save),
// never concurrently with flag mutation.
type SessionState struct {
	ID        uuid.UUID `json:"id"` // Unique ID per session
	NightFile string    `json:"night_file"`
	NightID   string    `json:"night_id,omitempty"`
	Profile   string    `json:"profile,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// TimeMinutes is the sim clock at the last checkpoint.
	TimeMinutes int `json:"time_minutes"`

	CurrentCallID    string `json:"current_call_id,omitempty"`
	CurrentSegmentID string `json:"current_segment_id,omitempty"`
	CallState        string `json:"call_state,omitempty"`

	SetFlags           []Flag   `json:"set_flags,omitempty"`
	MissedCallCount    int      `json:"missed_call_count"`
	MissedCallIDs      []string `json:"missed_call_ids,omitempty"`
	CompletedCallIDs   []string `json:"completed_call_ids,omitempty"`
	DiscoveredEvidence []string `json:"discovered_evidence,omitempty"`

	DispatchTimeMinutes *int `json:"dispatch_time_minutes,omitempty"`

	// Resolution outcome, empty until the night resolves.
	EndState string `json:"end_state,omitempty"`
	EndingID string `json:"ending_id,omitempty"`
}

// NewSessionState creates a fresh session for a night file.
func NewSessionState(nightFile string) *SessionState {
	now := time.Now()
	return &SessionState{
		ID:        uuid.New(),
		NightFile: nightFile,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Progress is the cross-night save record for one player profile.
type Progress struct {
	CompletedNights   []string          `json:"completed_nights,omitempty"`
	EndStateByNight   map[string]string `json:"end_state_by_night,omitempty"`
	CurrentNightIndex int               `json:"current_night_index"`

	// PersistentFlags are exported at night end and re-imported as
	// pre-set flags at the next night's start.
	PersistentFlags []Flag `json:"persistent_flags,omitempty"`
}

// RecordNight marks a night completed with its resolved end state and the
// flags that persist into the next night. Re-recording a night replaces
// its outcome without duplicating the completion entry.
func (p *Progress) RecordNight(nightID, endState string, persistent []Flag) {
	if p.EndStateByNight == nil {
		p.EndStateByNight = make(map[string]string)
	}
	if _, done := p.EndStateByNight[nightID]; !done {
		p.CompletedNights = append(p.CompletedNights, nightID)
		p.CurrentNightIndex++
	}
	p.EndStateByNight[nightID] = endState

	// Merge: later nights override earlier set times for the same flag.
	merged := make(map[string]int, len(p.PersistentFlags)+len(persistent))
	order := make([]string, 0, len(p.PersistentFlags)+len(persistent))
	for _, f := range p.PersistentFlags {
		if _, ok := merged[f.ID]; !ok {
			order = append(order, f.ID)
		}
		merged[f.ID] = f.SetAtMinutes
	}
	for _, f := range persistent {
		if _, ok := merged[f.ID]; !ok {
			order = append(order, f.ID)
		}
		merged[f.ID] = f.SetAtMinutes
	}
	p.PersistentFlags = p.PersistentFlags[:0]
	for _, id := range order {
		p.PersistentFlags = append(p.PersistentFlags, Flag{ID: id, SetAtMinutes: merged[id]})
	}
}
