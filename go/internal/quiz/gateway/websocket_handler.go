package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizclock/go/internal/quiz/events"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/rs/zerolog/log"
)

// SnapshotProvider returns the live state of a round
type SnapshotProvider interface {
	Snapshot(roundID uuid.UUID) (rounds.RoundSnapshot, error)
}

// WebSocketHandler handles WebSocket upgrade requests for quiz pages
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	snapshots         SnapshotProvider
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, snapshots SnapshotProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		snapshots:         snapshots,
	}
}

// HandleRoundConnection handles GET /ws/round?round_id=...
func (h *WebSocketHandler) HandleRoundConnection(w http.ResponseWriter, r *http.Request) {
	roundIDStr := r.URL.Query().Get("round_id")
	if roundIDStr == "" {
		http.Error(w, "round_id is required", http.StatusBadRequest)
		return
	}

	roundID, err := uuid.Parse(roundIDStr)
	if err != nil {
		http.Error(w, "invalid round_id format", http.StatusBadRequest)
		return
	}

	snap, err := h.snapshots.Snapshot(roundID)
	if err != nil {
		if errors.Is(err, rounds.ErrRoundNotFound) {
			http.Error(w, "round not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("failed to read round snapshot")
		http.Error(w, "failed to read round state", http.StatusInternalServerError)
		return
	}

	initial, err := events.NewEnvelope(roundID, events.EventTypeCountdownSnapshot, time.Now(), events.CountdownSnapshotPayload{
		RoundID:      roundID.String(),
		RoundName:    snap.Name,
		State:        snap.State,
		RemainingSec: snap.RemainingSec,
		TotalSec:     snap.TotalSec,
		Running:      snap.Running,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build snapshot event")
		http.Error(w, "failed to read round state", http.StatusInternalServerError)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	// Upgrade writes its own HTTP error response on failure
	if err := h.connectionManager.UpgradeConnection(w, r, userID, roundID, initial); err != nil {
		log.Error().
			Err(err).
			Str("round_id", roundID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/round", h.HandleRoundConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
