package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/quizclock/go/internal/quiz/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// StreamConfig holds the JetStream settings used by the publisher
type StreamConfig struct {
	URL           string
	StreamName    string
	MaxAge        time.Duration // how long countdown events are retained
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultStreamConfig returns default JetStream publisher configuration
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "QUIZ_EVENTS",
		MaxAge:        24 * time.Hour,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect opens a NATS connection with JetStream, logging connection changes.
func Connect(cfg StreamConfig) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return nc, js, nil
}

// EnsureStream creates the countdown stream or updates it to cfg.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Quiz countdown events",
		Subjects:    []string{events.SubjectPrefix + ".>"},
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}

	log.Info().Str("stream", cfg.StreamName).Msg("JetStream stream ready")
	return nil
}

// NATSPublisher publishes countdown envelopes to JetStream
type NATSPublisher struct {
	js jetstream.JetStream
}

func NewNATSPublisher(js jetstream.JetStream) *NATSPublisher {
	return &NATSPublisher{js: js}
}

// Publish sends the envelope on its subject. The envelope ID doubles as the
// JetStream message ID so retries are deduplicated.
func (p *NATSPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	ack, err := p.js.Publish(ctx, env.Subject(), data, jetstream.WithMsgID(env.ID))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", env.Type, err)
	}

	log.Debug().
		Str("subject", env.Subject()).
		Str("stream", ack.Stream).
		Uint64("seq", ack.Sequence).
		Msg("published countdown event")
	return nil
}

// LogPublisher only logs envelopes. Used when no message bus is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	log.Debug().
		Str("event_id", env.ID).
		Str("event_type", string(env.Type)).
		Str("round_id", env.RoundID).
		RawJSON("data", env.Data).
		Msg("countdown event")
	return nil
}
