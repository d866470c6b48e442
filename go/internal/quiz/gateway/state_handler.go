package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/rs/zerolog/log"
)

// RoundController is what the REST API needs from the round manager
type RoundController interface {
	SnapshotProvider
	Snapshots() []rounds.RoundSnapshot
	Start(roundID uuid.UUID) error
	Pause(roundID uuid.UUID) error
	Resume(roundID uuid.UUID) error
	Stop(roundID uuid.UUID) error
	Reset(roundID uuid.UUID) error
}

// StateHandler serves round state and countdown controls over HTTP
type StateHandler struct {
	controller RoundController
}

// NewStateHandler creates a new state handler
func NewStateHandler(controller RoundController) *StateHandler {
	return &StateHandler{
		controller: controller,
	}
}

// HandleListRounds handles GET /api/rounds
func (h *StateHandler) HandleListRounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Snapshots())
}

// HandleGetRoundState handles GET /api/rounds/{id}/state
func (h *StateHandler) HandleGetRoundState(w http.ResponseWriter, r *http.Request) {
	roundID, ok := parseRoundID(w, r)
	if !ok {
		return
	}

	snap, err := h.controller.Snapshot(roundID)
	if err != nil {
		writeRoundError(w, roundID, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleAction wraps a countdown operation as POST /api/rounds/{id}/<action>.
// The response is the state after the operation.
func (h *StateHandler) handleAction(action string, op func(uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roundID, ok := parseRoundID(w, r)
		if !ok {
			return
		}

		if err := op(roundID); err != nil {
			writeRoundError(w, roundID, err)
			return
		}

		log.Info().
			Str("round_id", roundID.String()).
			Str("action", action).
			Msg("countdown action applied")

		snap, err := h.controller.Snapshot(roundID)
		if err != nil {
			writeRoundError(w, roundID, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// RegisterStateRoutes registers state and control routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rounds", h.HandleListRounds)
	mux.HandleFunc("GET /api/rounds/{id}/state", h.HandleGetRoundState)
	mux.HandleFunc("POST /api/rounds/{id}/start", h.handleAction("start", h.controller.Start))
	mux.HandleFunc("POST /api/rounds/{id}/pause", h.handleAction("pause", h.controller.Pause))
	mux.HandleFunc("POST /api/rounds/{id}/resume", h.handleAction("resume", h.controller.Resume))
	mux.HandleFunc("POST /api/rounds/{id}/stop", h.handleAction("stop", h.controller.Stop))
	mux.HandleFunc("POST /api/rounds/{id}/reset", h.handleAction("reset", h.controller.Reset))
}

func parseRoundID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	roundID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid round ID format", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return roundID, true
}

func writeRoundError(w http.ResponseWriter, roundID uuid.UUID, err error) {
	if errors.Is(err, rounds.ErrRoundNotFound) {
		http.Error(w, "Round not found", http.StatusNotFound)
		return
	}
	log.Error().Err(err).Str("round_id", roundID.String()).Msg("round request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
