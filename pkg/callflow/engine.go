package callflow

import (
	"fmt"
	"log/slog"

	"github.com/nightline-game/nightline/pkg/conditionals"
	"github.com/nightline-game/nightline/pkg/ending"
	"github.com/nightline-game/nightline/pkg/scenario"
	"github.com/nightline-game/nightline/pkg/state"
)

// State is the engine's position in the call-flow state machine.
type State string

const (
	StateIdle             State = "idle"
	StateIncoming         State = "incoming"
	StateDisplayingMedia  State = "displaying_media"
	StateAwaitingResponse State = "awaiting_response"
)

// SilenceResponseID identifies the synthetic response applied when a
// segment times out without a designated timeout response, or has nothing
// selectable at all.
const SilenceResponseID = "silence"

// FallbackRingMinutes applies when neither the call nor the night
// configures a ring duration.
const FallbackRingMinutes = 2

// Engine walks a night's call graphs, applying response effects to the
// flag store and emitting transition events. All transitions happen
// synchronously inside discrete player actions or Tick calls; exactly one
// engine per active session, no locking.
type Engine struct {
	night    *scenario.Night
	flags    *state.FlagStore
	evidence EvidenceLedger
	trust    TrustGraph
	world    WorldStateTracker
	logger   *slog.Logger

	st         State
	call       *scenario.Call
	segment    *scenario.CallSegment
	selectable []scenario.Response

	ringDeadline     int
	responseDeadline *int
	dispatchTime     *int

	handled   map[string]bool // Call IDs already completed or missed
	completed []string
	missed    []string

	worldEnding string // Ending reported by the world; freezes the call list

	listeners []Listener
}

// NewEngine builds an engine over a night, a flag store, and the external
// collaborators. Collaborators are passed in explicitly; there is no
// ambient service registry.
func NewEngine(night *scenario.Night, flags *state.FlagStore, evidence EvidenceLedger, trust TrustGraph, world WorldStateTracker, logger *slog.Logger) *Engine {
	e := &Engine{
		night:    night,
		flags:    flags,
		evidence: evidence,
		trust:    trust,
		world:    world,
		logger:   logger,
		st:       StateIdle,
		handled:  make(map[string]bool),
	}
	flags.SetNotify(func(flagID string) {
		e.emit(Event{Type: EventFlagSet, FlagID: flagID})
	})
	return e
}

// Subscribe registers an event listener. Fan-out is synchronous.
func (e *Engine) Subscribe(fn Listener) {
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) emit(ev Event) {
	if e.world != nil && ev.TimeMinutes == 0 {
		ev.TimeMinutes = e.world.CurrentTimeMinutes()
	}
	if e.call != nil && ev.CallID == "" {
		ev.CallID = e.call.ID
	}
	for _, fn := range e.listeners {
		fn(ev)
	}
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.st }

// CurrentCall returns the ringing or active call, or nil when idle.
func (e *Engine) CurrentCall() *scenario.Call { return e.call }

// CurrentSegment returns the active segment, or nil.
func (e *Engine) CurrentSegment() *scenario.CallSegment { return e.segment }

// SelectableResponses returns the responses currently offered to the player.
func (e *Engine) SelectableResponses() []scenario.Response {
	out := make([]scenario.Response, len(e.selectable))
	copy(out, e.selectable)
	return out
}

// MissedCalls returns the number of calls that rang out.
func (e *Engine) MissedCalls() int { return len(e.missed) }

// MissedCallIDs returns the calls that rang out, in order.
func (e *Engine) MissedCallIDs() []string {
	out := make([]string, len(e.missed))
	copy(out, e.missed)
	return out
}

// CompletedCallIDs returns the calls answered and finished, in order.
func (e *Engine) CompletedCallIDs() []string {
	out := make([]string, len(e.completed))
	copy(out, e.completed)
	return out
}

// DispatchTime returns the minute the rescue was dispatched, or nil.
func (e *Engine) DispatchTime() *int {
	if e.dispatchTime == nil {
		return nil
	}
	t := *e.dispatchTime
	return &t
}

// AllCallsHandled reports whether every call has been completed or missed.
func (e *Engine) AllCallsHandled() bool {
	return len(e.handled) == len(e.night.Calls)
}

// Restore rebuilds engine bookkeeping from a saved session snapshot.
// Mid-call position is not restored; a saved session resumes between calls.
func (e *Engine) Restore(gs *state.SessionState) {
	for _, id := range gs.CompletedCallIDs {
		e.handled[id] = true
		e.completed = append(e.completed, id)
	}
	for _, id := range gs.MissedCallIDs {
		e.handled[id] = true
		e.missed = append(e.missed, id)
	}
	if gs.DispatchTimeMinutes != nil {
		t := *gs.DispatchTimeMinutes
		e.dispatchTime = &t
	}
}

// Snapshot writes the engine's bookkeeping into a session state for
// persistence. Called at checkpoints only, never concurrently with
// transitions.
func (e *Engine) Snapshot(gs *state.SessionState) {
	gs.CallState = string(e.st)
	gs.CurrentCallID = ""
	gs.CurrentSegmentID = ""
	if e.call != nil {
		gs.CurrentCallID = e.call.ID
	}
	if e.segment != nil {
		gs.CurrentSegmentID = e.segment.ID
	}
	gs.SetFlags = e.flags.AllFlags()
	gs.MissedCallCount = len(e.missed)
	gs.MissedCallIDs = e.MissedCallIDs()
	gs.CompletedCallIDs = e.CompletedCallIDs()
	gs.DispatchTimeMinutes = e.DispatchTime()
}

// Tick advances the state machine to the given sim time: surfaces newly
// eligible calls, expires ringing calls into Missed, and fires response
// timeouts. Deadlines are plain timestamps compared here; a response
// arriving first simply means the deadline is never reached.
func (e *Engine) Tick(now int) {
	switch e.st {
	case StateIdle:
		if e.worldEnding != "" {
			return
		}
		if e.world != nil {
			if endingID, ok := e.world.CheckEndingConditions(); ok {
				e.endNight(endingID, now)
				return
			}
		}
		e.surfaceNextCall(now)

	case StateIncoming:
		if now >= e.ringDeadline {
			e.missCall(now)
			e.surfaceNextCall(now)
		}

	case StateAwaitingResponse:
		if e.responseDeadline != nil && now >= *e.responseDeadline {
			e.resolveTimeout(now)
		}
	}
}

func (e *Engine) surfaceNextCall(now int) {
	for i := range e.night.Calls {
		call := &e.night.Calls[i]
		if e.handled[call.ID] {
			continue
		}
		if call.StartAtMinutes > now {
			continue
		}
		if !conditionals.EvaluateAll(call.Trigger, e.flags) {
			continue
		}

		e.call = call
		e.st = StateIncoming
		e.ringDeadline = now + e.ringMinutes(call)
		e.emit(Event{Type: EventIncomingCall, TimeMinutes: now})
		return
	}
}

func (e *Engine) ringMinutes(call *scenario.Call) int {
	if call.RingMinutes > 0 {
		return call.RingMinutes
	}
	if e.night.DefaultRingMinutes > 0 {
		return e.night.DefaultRingMinutes
	}
	return FallbackRingMinutes
}

func (e *Engine) missCall(now int) {
	e.handled[e.call.ID] = true
	e.missed = append(e.missed, e.call.ID)
	e.emit(Event{Type: EventCallMissed, TimeMinutes: now})
	if e.logger != nil {
		e.logger.Info("Call missed", "call", e.call.ID, "missed_total", len(e.missed))
	}
	e.call = nil
	e.st = StateIdle
}

// Answer picks up the ringing call and enters its start segment.
func (e *Engine) Answer(now int) error {
	if e.st != StateIncoming {
		return fmt.Errorf("no incoming call to answer (state %s)", e.st)
	}
	e.emit(Event{Type: EventCallStarted, TimeMinutes: now})
	e.enterSegment(e.call.Start(), now, make(map[string]bool))
	return nil
}

// enterSegment moves the machine into a segment, reporting its evidence
// and presenting responses. Visited guards silence auto-advance chains
// against content cycles.
func (e *Engine) enterSegment(seg *scenario.CallSegment, now int, visited map[string]bool) {
	if seg == nil {
		// Dangling references degrade to "segment ends call".
		e.endCall(now, "completed")
		return
	}
	if visited[seg.ID] {
		if e.logger != nil {
			e.logger.Warn("Auto-advance cycle detected, ending call",
				"call", e.call.ID, "segment", seg.ID)
		}
		e.endCall(now, "completed")
		return
	}
	visited[seg.ID] = true

	if !conditionals.EvaluateAll(seg.Conditions, e.flags) {
		// Display-gated segment: skip through its default next without
		// presenting anything.
		e.enterSegment(e.nextSegment(seg.DefaultNext), now, visited)
		return
	}

	e.segment = seg
	e.emit(Event{Type: EventSegmentChanged, SegmentID: seg.ID, TimeMinutes: now})

	for _, evidenceID := range seg.Evidence {
		e.evidence.ReportDiscovered(evidenceID)
	}

	if seg.Media != "" {
		e.st = StateDisplayingMedia
		return
	}
	e.presentResponses(now, visited)
}

// MediaComplete signals that the segment's media finished playing.
func (e *Engine) MediaComplete(now int) error {
	if e.st != StateDisplayingMedia {
		return fmt.Errorf("no media in progress (state %s)", e.st)
	}
	e.presentResponses(now, map[string]bool{e.segment.ID: true})
	return nil
}

func (e *Engine) presentResponses(now int, visited map[string]bool) {
	e.selectable = e.selectable[:0]
	for _, r := range e.segment.Responses {
		if !conditionals.EvaluateAll(r.Requirements, e.flags) {
			continue
		}
		if !e.evidenceHeld(r.RequiredEvidence) {
			continue
		}
		e.selectable = append(e.selectable, r)
	}

	if len(e.selectable) == 0 {
		// Never stall: process a silence pseudo-response so exactly one
		// response is recorded for this segment visit.
		e.applyResponse(e.silenceResponse(e.segment), now, visited)
		return
	}

	e.st = StateAwaitingResponse
	e.responseDeadline = nil
	if e.segment.TimeLimitMinutes > 0 {
		deadline := now + e.segment.TimeLimitMinutes
		e.responseDeadline = &deadline
	}

	ids := make([]string, len(e.selectable))
	for i, r := range e.selectable {
		ids[i] = r.ID
	}
	e.emit(Event{Type: EventResponsesPresented, SegmentID: e.segment.ID, ResponseIDs: ids, TimeMinutes: now})
}

func (e *Engine) evidenceHeld(required []string) bool {
	for _, id := range required {
		if !e.evidence.IsDiscovered(id) {
			return false
		}
	}
	return true
}

func (e *Engine) silenceResponse(seg *scenario.CallSegment) *scenario.Response {
	return &scenario.Response{
		ID:   SilenceResponseID,
		Next: seg.DefaultNext,
	}
}

// SelectResponse applies the chosen response. A response ID outside the
// currently-selectable set is rejected with no state change.
func (e *Engine) SelectResponse(responseID string, now int) error {
	if e.st != StateAwaitingResponse {
		return fmt.Errorf("not awaiting a response (state %s)", e.st)
	}
	for i := range e.selectable {
		if e.selectable[i].ID == responseID {
			r := e.selectable[i]
			e.applyResponse(&r, now, map[string]bool{e.segment.ID: true})
			return nil
		}
	}
	if e.logger != nil {
		e.logger.Warn("Response not selectable", "call", e.call.ID, "segment", e.segment.ID, "response", responseID)
	}
	return fmt.Errorf("response %q is not selectable in segment %q", responseID, e.segment.ID)
}

func (e *Engine) resolveTimeout(now int) {
	visited := map[string]bool{e.segment.ID: true}
	if id := e.segment.TimeoutResponse; id != "" {
		if r := e.segment.Response(id); r != nil {
			e.applyResponse(r, now, visited)
			return
		}
		if e.logger != nil {
			e.logger.Warn("Timeout response missing, falling back to silence",
				"call", e.call.ID, "segment", e.segment.ID, "response", id)
		}
	}
	e.applyResponse(e.silenceResponse(e.segment), now, visited)
}

// applyResponse is the ApplyingEffects step: flag effects, trust deltas
// and the dispatch marker land atomically, exactly once, then the machine
// moves to the next segment or ends the call.
func (e *Engine) applyResponse(r *scenario.Response, now int, visited map[string]bool) {
	e.responseDeadline = nil

	for _, f := range r.SetFlags {
		e.flags.SetFlag(f, now)
	}
	for _, f := range r.ClearFlags {
		e.flags.ClearFlag(f)
	}
	for _, d := range r.TrustDeltas {
		e.trust.ApplyDelta(d.From, d.To, d.Delta, d.Reason)
	}
	if r.Dispatch && e.dispatchTime == nil {
		t := now
		e.dispatchTime = &t
		if e.night.Survival.DispatchFlag != "" {
			e.flags.SetFlag(e.night.Survival.DispatchFlag, now)
		}
	}

	e.emit(Event{Type: EventResponseSelected, SegmentID: e.segment.ID, ResponseID: r.ID, TimeMinutes: now})

	if r.EndsCall || r.Next == "" {
		e.endCall(now, "completed")
		return
	}
	e.enterSegment(e.nextSegment(r.Next), now, visited)
}

func (e *Engine) nextSegment(id string) *scenario.CallSegment {
	if id == "" || e.call == nil {
		return nil
	}
	return e.call.Segment(id)
}

// Hangup ends the active call early. Effects already applied stay applied;
// no further segment effects run.
func (e *Engine) Hangup(now int) error {
	if e.call == nil || e.st == StateIdle || e.st == StateIncoming {
		return fmt.Errorf("no active call to hang up (state %s)", e.st)
	}
	e.endCall(now, "operator")
	return nil
}

func (e *Engine) endCall(now int, reason string) {
	e.handled[e.call.ID] = true
	e.completed = append(e.completed, e.call.ID)
	e.emit(Event{Type: EventCallEnded, TimeMinutes: now, Reason: reason})

	e.call = nil
	e.segment = nil
	e.selectable = nil
	e.responseDeadline = nil
	e.st = StateIdle
}

// endNight ends the shift on the world's say: the call list freezes and
// resolution reports the world's ending instead of the mapping's.
func (e *Engine) endNight(endingID string, now int) {
	e.worldEnding = endingID
	resolver := ending.NewResolver(e.night, e.flags, e.logger)
	e.emit(Event{
		Type:        EventEndStateResolved,
		TimeMinutes: now,
		EndState:    resolver.DetermineEndState(),
		EndingID:    endingID,
	})
	e.world.ScenarioEnded(endingID)
}

// Resolve runs end-state resolution against the current flag snapshot and
// emits the resolved ending. A nil dispatch time falls back to the
// engine's recorded dispatch, then to the dispatch flag's set time. An
// ending already reported by the world wins over the mapping.
func (e *Engine) Resolve(dispatchMinutes *int) (endState, endingID string) {
	if dispatchMinutes == nil {
		dispatchMinutes = e.dispatchTime
	}
	resolver := ending.NewResolver(e.night, e.flags, e.logger)
	endState = resolver.DetermineEndState()
	if e.worldEnding != "" {
		return endState, e.worldEnding
	}
	endingID = resolver.DetermineEnding(dispatchMinutes)

	e.emit(Event{Type: EventEndStateResolved, EndState: endState, EndingID: endingID})
	if e.world != nil {
		e.world.ScenarioEnded(endingID)
	}
	return endState, endingID
}
