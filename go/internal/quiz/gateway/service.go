package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Service bundles the WebSocket gateway: connections, the optional JetStream
// relay, and the REST state/control API.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates the gateway around an existing connection manager. With
// a nil js, events must reach connectionManager through a LocalBroadcaster;
// otherwise they are relayed from JetStream.
func NewService(ctx context.Context, config Config, connectionManager *ConnectionManager, controller RoundController, js jetstream.JetStream) (*Service, error) {
	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, controller),
		stateHandler:      NewStateHandler(controller),
	}

	if js != nil {
		eventConsumer, err := NewEventConsumer(ctx, connectionManager, js, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = eventConsumer
	}

	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting quiz gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("quiz gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("quiz gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
