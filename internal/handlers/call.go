package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nightline-game/nightline/internal/services"
	"github.com/nightline-game/nightline/pkg/ending"
)

// handleAction executes one player verb against a live session. Every
// action checkpoints the session before responding.
func (h *SessionHandler) handleAction(w http.ResponseWriter, r *http.Request, id uuid.UUID, action string) {
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
	defer s.Unlock()

	var view SessionView
	switch action {
	case "tick":
		view, err = h.doTick(r, s)
	case "answer":
		view, err = h.doAnswer(s)
	case "respond":
		view, err = h.doRespond(r, s)
	case "media-complete":
		view, err = h.doMediaComplete(s)
	case "hangup":
		view, err = h.doHangup(s)
	case "resolve":
		view, err = h.doResolve(r, s)
	default:
		h.writeError(w, http.StatusNotFound, "Unknown session action: "+action)
		return
	}

	if err != nil {
		h.logger.Warn("Session action rejected",
			"session", id, "action", action, "error", err)
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}

	if err := h.sessions.Checkpoint(r.Context(), s); err != nil {
		h.logger.Error("Failed to checkpoint session", "error", err, "session", id)
	}

	h.writeJSON(w, view)
}

// doTick advances the sim clock one minute at a time so ring windows and
// response deadlines in the skipped span still expire in order.
func (h *SessionHandler) doTick(r *http.Request, s *services.Session) (SessionView, error) {
	req := TickRequest{AdvanceMinutes: 1}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return SessionView{}, err
		}
	}
	if req.AdvanceMinutes < 1 {
		req.AdvanceMinutes = 1
	}

	for i := 0; i < req.AdvanceMinutes; i++ {
		now := s.World.Advance(1)
		s.Engine.Tick(now)
	}
	return h.view(s), nil
}

func (h *SessionHandler) doAnswer(s *services.Session) (SessionView, error) {
	if err := s.Engine.Answer(s.World.CurrentTimeMinutes()); err != nil {
		return SessionView{}, err
	}
	return h.view(s), nil
}

func (h *SessionHandler) doRespond(r *http.Request, s *services.Session) (SessionView, error) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return SessionView{}, err
	}
	if err := s.Engine.SelectResponse(req.ResponseID, s.World.CurrentTimeMinutes()); err != nil {
		return SessionView{}, err
	}
	return h.view(s), nil
}

func (h *SessionHandler) doMediaComplete(s *services.Session) (SessionView, error) {
	if err := s.Engine.MediaComplete(s.World.CurrentTimeMinutes()); err != nil {
		return SessionView{}, err
	}
	return h.view(s), nil
}

func (h *SessionHandler) doHangup(s *services.Session) (SessionView, error) {
	if err := s.Engine.Hangup(s.World.CurrentTimeMinutes()); err != nil {
		return SessionView{}, err
	}
	return h.view(s), nil
}

func (h *SessionHandler) doResolve(r *http.Request, s *services.Session) (SessionView, error) {
	endState, endingID, err := h.sessions.Resolve(r.Context(), s)
	if err != nil {
		return SessionView{}, err
	}

	view := h.view(s)
	view.EndState = endState
	view.EndingID = endingID
	view.EndingTitle = ending.Title(s.Night, endingID)
	return view, nil
}
