package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

const maxRoomIDLength = 64

// WebSocketHandler handles WebSocket upgrade requests for game rooms
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleGameConnection upgrades a connection into the room given by ?room_id=
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	if len(roomID) > maxRoomIDLength {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, roomID); err != nil {
		// The upgrader has already written an HTTP error response.
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/game", h.HandleGameConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
