package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nightline-game/nightline/internal/services"
	"github.com/nightline-game/nightline/pkg/callflow"
	"github.com/nightline-game/nightline/pkg/ending"
	"github.com/nightline-game/nightline/pkg/state"
)

// SessionHandler drives night sessions.
// Routes:
// POST /v1/sessions                    - Create a new session
// GET /v1/sessions/{id}                - Read session view
// DELETE /v1/sessions/{id}             - Delete a session
// POST /v1/sessions/{id}/tick          - Advance the sim clock
// POST /v1/sessions/{id}/answer        - Answer the ringing call
// POST /v1/sessions/{id}/respond       - Select a response
// POST /v1/sessions/{id}/media-complete - Acknowledge media playback
// POST /v1/sessions/{id}/hangup        - Hang up the active call
// POST /v1/sessions/{id}/resolve       - Resolve the night's ending
type SessionHandler struct {
	logger   *slog.Logger
	sessions *services.SessionManager
}

func NewSessionHandler(logger *slog.Logger, sessions *services.SessionManager) *SessionHandler {
	return &SessionHandler{
		logger:   logger,
		sessions: sessions,
	}
}

type CreateSessionRequest struct {
	NightFile string `json:"night_file"`
	Profile   string `json:"profile,omitempty"`
}

type RespondRequest struct {
	ResponseID string `json:"response_id"`
}

type TickRequest struct {
	AdvanceMinutes int `json:"advance_minutes"`
}

// ResponseView is one selectable response as shown to the player.
type ResponseView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SessionView is the player-facing snapshot of a session.
type SessionView struct {
	ID          string `json:"id"`
	NightID     string `json:"night_id"`
	NightName   string `json:"night_name"`
	TimeMinutes int    `json:"time_minutes"`

	CallState      string         `json:"call_state"`
	CallID         string         `json:"call_id,omitempty"`
	Caller         string         `json:"caller,omitempty"`
	SegmentID      string         `json:"segment_id,omitempty"`
	SegmentText    string         `json:"segment_text,omitempty"`
	SegmentMedia   string         `json:"segment_media,omitempty"`
	Responses      []ResponseView `json:"responses,omitempty"`
	MissedCalls    int            `json:"missed_calls"`
	CompletedCalls []string       `json:"completed_calls,omitempty"`
	Evidence       []string       `json:"evidence,omitempty"`
	Flags          []state.Flag   `json:"flags,omitempty"`

	EndState    string `json:"end_state,omitempty"`
	EndingID    string `json:"ending_id,omitempty"`
	EndingTitle string `json:"ending_title,omitempty"`
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")

	if path == "" {
		if r.Method != http.MethodPost {
			h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST to create a session.")
			return
		}
		h.handleCreate(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	sessionID, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", parts[0], "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	var action string
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleRead(w, r, sessionID)
	case action == "" && r.Method == http.MethodDelete:
		h.handleDelete(w, r, sessionID)
	case action != "" && r.Method == http.MethodPost:
		h.handleAction(w, r, sessionID, action)
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.NightFile == "" {
		h.writeError(w, http.StatusBadRequest, "night_file is required")
		return
	}
	if req.Profile == "" {
		req.Profile = "default"
	}

	s, err := h.sessions.Create(r.Context(), req.NightFile, req.Profile)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			h.writeError(w, http.StatusNotFound, "Night not found")
			return
		}
		h.logger.Error("Failed to create session", "error", err, "night_file", req.NightFile)
		h.writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	s.Lock()
	view := h.view(s)
	s.Unlock()

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, view)
}

func (h *SessionHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	s, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session", id)
		h.writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if s == nil {
		h.writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	s.Lock()
	view := h.view(s)
	s.Unlock()
	h.writeJSON(w, view)
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete session", "error", err, "session", id)
		h.writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) view(s *services.Session) SessionView {
	view := SessionView{
		ID:          s.ID.String(),
		NightID:     s.Night.ID,
		NightName:   s.Night.Name,
		TimeMinutes: s.World.CurrentTimeMinutes(),
		CallState:   string(s.Engine.State()),
		MissedCalls: s.Engine.MissedCalls(),
	}

	if call := s.Engine.CurrentCall(); call != nil {
		view.CallID = call.ID
		view.Caller = call.Caller
	}
	if seg := s.Engine.CurrentSegment(); seg != nil && s.Engine.State() != callflow.StateIncoming {
		view.SegmentID = seg.ID
		view.SegmentText = seg.Text
		view.SegmentMedia = seg.Media
	}
	if s.Engine.State() == callflow.StateAwaitingResponse {
		for _, r := range s.Engine.SelectableResponses() {
			view.Responses = append(view.Responses, ResponseView{ID: r.ID, Text: r.Text})
		}
	}

	view.CompletedCalls = s.Engine.CompletedCallIDs()
	view.Evidence = s.Evidence.Discovered()
	view.Flags = s.Flags.AllFlags()

	gs := s.Snapshot()
	view.EndState = gs.EndState
	view.EndingID = gs.EndingID
	if gs.EndingID != "" {
		view.EndingTitle = ending.Title(s.Night, gs.EndingID)
	}

	return view
}

func (h *SessionHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *SessionHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}
