package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nightline-game/nightline/internal/storage"
)

// NightHandler serves night content.
// Routes:
// GET /v1/nights            - List nights (name -> filename)
// GET /v1/nights/{filename} - Read one night definition
type NightHandler struct {
	logger  *slog.Logger
	storage storage.Storage
}

func NewNightHandler(logger *slog.Logger, storage storage.Storage) *NightHandler {
	return &NightHandler{
		logger:  logger,
		storage: storage,
	}
}

func (h *NightHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Method not allowed. Only GET is supported."}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	filename := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/nights"), "/")
	if filename == "" {
		h.handleList(w, r)
		return
	}
	h.handleGet(w, r, filename)
}

func (h *NightHandler) handleList(w http.ResponseWriter, r *http.Request) {
	nights, err := h.storage.ListNights(r.Context())
	if err != nil {
		h.logger.Error("Failed to list nights", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Failed to list nights"}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	if err := json.NewEncoder(w).Encode(nights); err != nil {
		h.logger.Error("Failed to encode nights response", "error", err)
	}
}

func (h *NightHandler) handleGet(w http.ResponseWriter, r *http.Request, filename string) {
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") {
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid night filename"}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	night, err := h.storage.GetNight(r.Context(), filename)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			w.WriteHeader(http.StatusNotFound)
			if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Night not found"}); err != nil {
				h.logger.Error("Failed to encode error response", "error", err)
			}
			return
		}
		h.logger.Error("Failed to get night", "error", err, "filename", filename)
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Failed to retrieve night"}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	if err := json.NewEncoder(w).Encode(night); err != nil {
		h.logger.Error("Failed to encode night response", "error", err)
	}
}
