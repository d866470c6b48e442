package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizclock/go/internal/config"
	"github.com/mcdev12/quizclock/go/internal/quiz/gateway"
	"github.com/mcdev12/quizclock/go/internal/quiz/health"
	"github.com/mcdev12/quizclock/go/internal/quiz/publisher"
	"github.com/mcdev12/quizclock/go/internal/quiz/repository"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/mcdev12/quizclock/go/internal/quiz/rpc"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Rounds     *rounds.Manager
	Gateway    *gateway.Service
	RPC        *rpc.Service
	Repository *repository.Repository
	Health     *health.Checker
	Clock      clockwork.Clock

	database *sql.DB
	nc       *nats.Conn
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database → Repository → Round manager → Gateway / RPC
	clock := clockwork.NewRealClock()
	s := &Services{Clock: clock}
	counters := publisher.NewCounters(clock)

	var managerOpts []rounds.Option
	if cfg.DBEnabled {
		database, err := setupDatabase(ctx)
		if err != nil {
			return nil, err
		}
		s.database = database
		s.Repository = repository.NewRepository(database)
		managerOpts = append(managerOpts, rounds.WithRecorder(s.Repository))
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.JetStreamConfig.StreamName = cfg.Stream
	connections := gateway.NewConnectionManager(gatewayConfig.ConnectionConfig)

	// With a bus, events go out through JetStream and come back through the
	// gateway's consumer, so every instance sees them. Without one they go
	// straight to local sockets.
	var js jetstream.JetStream
	if cfg.NATSURL != "" {
		streamConfig := publisher.DefaultStreamConfig()
		streamConfig.URL = cfg.NATSURL
		streamConfig.StreamName = cfg.Stream

		nc, stream, err := publisher.Connect(streamConfig)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.nc = nc
		js = stream

		if err := publisher.EnsureStream(ctx, js, streamConfig); err != nil {
			s.Close()
			return nil, err
		}
		managerOpts = append(managerOpts, rounds.WithSinks(
			publisher.NewMetricPublisher(publisher.NewNATSPublisher(js), counters, clock),
		))
		log.Info().Str("url", cfg.NATSURL).Msg("publishing countdown events to NATS")
	} else {
		managerOpts = append(managerOpts, rounds.WithSinks(
			publisher.NewLogPublisher(),
			publisher.NewMetricPublisher(gateway.NewLocalBroadcaster(connections), counters, clock),
		))
		log.Info().Msg("NATS_URL not set, broadcasting countdown events locally")
	}

	managerOpts = append(managerOpts, rounds.WithClock(clock), rounds.WithQueueSize(cfg.RoundQueueSize))
	s.Rounds = rounds.NewManager(managerOpts...)
	s.RPC = rpc.NewService(s.Rounds)

	gw, err := gateway.NewService(ctx, gatewayConfig, connections, s.Rounds, js)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	s.Gateway = gw

	deps := health.Dependencies{
		Rounds:      s.Rounds.Snapshots,
		Connections: func() int { return gw.GetStats().TotalConnections },
		Publishing:  counters,
	}
	if s.database != nil {
		deps.Database = s.database
	}
	if s.nc != nil {
		deps.Bus = s.nc
	}
	s.Health = health.NewChecker(deps, clock, 10*time.Second)

	return s, nil
}

// Close releases the database and bus connections
func (s *Services) Close() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
