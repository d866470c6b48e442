package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizclock/go/internal/quiz/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	StreamName        string
	ConsumerName      string        // suffixed with an instance ID so every gateway sees every event
	SubjectFilter     string        // e.g., "quiz.countdown.>"
	MaxDeliver        int           // Max delivery attempts
	AckWait           time.Duration // How long to wait for ack
	MaxAckPending     int           // Max messages pending ack
	InactiveThreshold time.Duration // consumer is removed after this long without a client
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		StreamName:        "QUIZ_EVENTS",
		ConsumerName:      "quiz-gateway",
		SubjectFilter:     events.SubjectPrefix + ".>",
		MaxDeliver:        3,
		AckWait:           10 * time.Second,
		MaxAckPending:     1000,
		InactiveThreshold: 5 * time.Minute,
	}
}

// EventConsumer consumes countdown events from JetStream and broadcasts them
// to WebSocket clients
type EventConsumer struct {
	connectionManager *ConnectionManager
	js                jetstream.JetStream
	consumer          jetstream.Consumer
	config            JetStreamConsumerConfig
	name              string
}

// NewEventConsumer creates the consumer on an existing JetStream context
func NewEventConsumer(ctx context.Context, cm *ConnectionManager, js jetstream.JetStream, config JetStreamConsumerConfig) (*EventConsumer, error) {
	ec := &EventConsumer{
		connectionManager: cm,
		js:                js,
		config:            config,
		name:              fmt.Sprintf("%s-%s", config.ConsumerName, uuid.New().String()[:8]),
	}

	if err := ec.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              ec.name,
		Durable:           ec.name,
		Description:       "Quiz gateway WebSocket consumer",
		FilterSubject:     ec.config.SubjectFilter,
		DeliverPolicy:     jetstream.DeliverNewPolicy, // ticks are only useful live
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        ec.config.MaxDeliver,
		AckWait:           ec.config.AckWait,
		MaxAckPending:     ec.config.MaxAckPending,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
		InactiveThreshold: ec.config.InactiveThreshold,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", ec.name).
		Str("stream", ec.config.StreamName).
		Msg("JetStream consumer ready")

	ec.consumer = consumer
	return nil
}

// Start consumes events until ctx is cancelled
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.name).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("consumer", ec.name).Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				// malformed messages will never succeed
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (ec *EventConsumer) processMessage(msg jetstream.Msg) error {
	env, roundID, err := decodeEnvelope(msg.Data())
	if err != nil {
		return err
	}

	log.Debug().
		Str("event_id", env.ID).
		Str("round_id", env.RoundID).
		Str("event_type", string(env.Type)).
		Str("subject", msg.Subject()).
		Msg("processing JetStream event")

	ec.connectionManager.BroadcastToRound(roundID, env)
	return nil
}

func decodeEnvelope(data []byte) (*events.Envelope, uuid.UUID, error) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, uuid.Nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}

	roundID, err := uuid.Parse(env.RoundID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("parse round ID: %w", err)
	}
	return &env, roundID, nil
}

// LocalBroadcaster sends countdown events straight to this process's
// WebSocket clients. Used when no message bus is configured.
type LocalBroadcaster struct {
	connectionManager *ConnectionManager
}

func NewLocalBroadcaster(cm *ConnectionManager) *LocalBroadcaster {
	return &LocalBroadcaster{connectionManager: cm}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, env *events.Envelope) error {
	roundID, err := uuid.Parse(env.RoundID)
	if err != nil {
		return fmt.Errorf("parse round ID: %w", err)
	}
	b.connectionManager.BroadcastToRound(roundID, env)
	return nil
}
