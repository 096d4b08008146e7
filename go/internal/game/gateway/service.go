package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/drawguess/go/internal/game/presence"
	"github.com/rs/zerolog/log"
)

// Service bundles the connection manager and its HTTP routes
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

// NewService creates the gateway over a presence registry
func NewService(config ConnectionConfig, registry *presence.Registry) *Service {
	cm := NewConnectionManager(config, registry)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
	}
}

// ConnectionManager exposes the broadcaster for the orchestrator and timer
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting game gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("game gateway stopped")
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("game gateway routes registered")
}
