package scenario

import "github.com/nightline-game/nightline/pkg/conditionals"

// TrustDelta is a trust-relationship adjustment applied when a response
// is selected. It is forwarded to the trust collaborator, never stored here.
type TrustDelta struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

// Response is one player-facing option within a call segment.
type Response struct {
	ID     string `json:"id"`
	Text   string `json:"text"`             // Display text shown to the player
	Spoken string `json:"spoken,omitempty"` // Actual line spoken; defaults to Text

	SetFlags   []string `json:"set_flags,omitempty"`
	ClearFlags []string `json:"clear_flags,omitempty"`

	Next     string `json:"next,omitempty"`      // Next segment; empty means the call ends
	EndsCall bool   `json:"ends_call,omitempty"` // Explicit end-of-call marker
	Dispatch bool   `json:"dispatch,omitempty"`  // Marks the in-fiction rescue action

	RequiredEvidence []string         `json:"required_evidence,omitempty"` // Evidence IDs that must be discovered
	Requirements     conditionals.Set `json:"requirements,omitempty"`      // Flag/score gating

	TrustDeltas []TrustDelta `json:"trust_deltas,omitempty"`
}

// SpokenText returns the line actually spoken for this response.
func (r Response) SpokenText() string {
	if r.Spoken != "" {
		return r.Spoken
	}
	return r.Text
}

// CallSegment is one node of a call's dialogue graph.
type CallSegment struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`            // Caller line / media transcript
	Media     string     `json:"media,omitempty"` // Audio or media reference for the UI layer
	Responses []Response `json:"responses,omitempty"`

	// TimeLimitMinutes bounds how long the player may wait before the
	// timeout response (or silence) is applied. Zero means no limit.
	TimeLimitMinutes int    `json:"time_limit_minutes,omitempty"`
	TimeoutResponse  string `json:"timeout_response,omitempty"`

	// DefaultNext is the auto-advance target when no response is
	// currently selectable, so the state machine never stalls.
	DefaultNext string `json:"default_next,omitempty"`

	Evidence   []string         `json:"evidence,omitempty"`   // Auto-discovered on segment entry
	Conditions conditionals.Set `json:"conditions,omitempty"` // Display gating for the segment
}

// Response returns the response with the given ID, or nil.
func (s *CallSegment) Response(id string) *Response {
	for i := range s.Responses {
		if s.Responses[i].ID == id {
			return &s.Responses[i]
		}
	}
	return nil
}

// Call is one incoming call in a night: a directed graph of segments.
type Call struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`

	// StartAtMinutes is the sim time at which the call becomes eligible.
	StartAtMinutes int `json:"start_at_minutes"`

	// RingMinutes is how long the call rings before it is missed.
	// Zero falls back to the night's default.
	RingMinutes int `json:"ring_minutes,omitempty"`

	// Trigger gates eligibility on the flag store; an empty set always holds.
	Trigger conditionals.Set `json:"trigger,omitempty"`

	// StartSegment is the entry segment; empty means the first declared segment.
	StartSegment string        `json:"start_segment,omitempty"`
	Segments     []CallSegment `json:"segments"`
}

// Segment returns the segment with the given ID, or nil.
func (c *Call) Segment(id string) *CallSegment {
	for i := range c.Segments {
		if c.Segments[i].ID == id {
			return &c.Segments[i]
		}
	}
	return nil
}

// Start returns the call's entry segment, or nil if the call has no segments.
func (c *Call) Start() *CallSegment {
	if c.StartSegment != "" {
		if s := c.Segment(c.StartSegment); s != nil {
			return s
		}
	}
	if len(c.Segments) == 0 {
		return nil
	}
	return &c.Segments[0]
}
