package callflow

// EventType identifies an engine event for the UI/collaborator layer.
type EventType string

const (
	EventIncomingCall       EventType = "call.incoming"
	EventCallStarted        EventType = "call.started"
	EventSegmentChanged     EventType = "call.segment_changed"
	EventResponsesPresented EventType = "call.responses_presented"
	EventResponseSelected   EventType = "call.response_selected"
	EventCallEnded          EventType = "call.ended"
	EventCallMissed         EventType = "call.missed"
	EventFlagSet            EventType = "flag.set"
	EventEndStateResolved   EventType = "night.resolved"
)

// Event is one engine notification. Fan-out is synchronous and
// single-threaded; listeners must not re-enter the engine.
type Event struct {
	Type        EventType `json:"type"`
	TimeMinutes int       `json:"time_minutes"`
	CallID      string    `json:"call_id,omitempty"`
	SegmentID   string    `json:"segment_id,omitempty"`
	ResponseID  string    `json:"response_id,omitempty"`
	ResponseIDs []string  `json:"response_ids,omitempty"` // For responses_presented
	FlagID      string    `json:"flag_id,omitempty"`
	EndState    string    `json:"end_state,omitempty"`
	EndingID    string    `json:"ending_id,omitempty"`
	Reason      string    `json:"reason,omitempty"` // For call_ended: "completed", "operator", "timeout"
}

// Listener receives engine events.
type Listener func(Event)
