package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event payload types shared between the round manager, the publisher and
// the gateway.

// EventType names a countdown event
type EventType string

const (
	EventTypeCountdownStarted   EventType = "CountdownStarted"
	EventTypeCountdownResumed   EventType = "CountdownResumed"
	EventTypeCountdownPaused    EventType = "CountdownPaused"
	EventTypeCountdownStopped   EventType = "CountdownStopped"
	EventTypeCountdownReset     EventType = "CountdownReset"
	EventTypeCountdownTick      EventType = "CountdownTick"
	EventTypeCountdownCompleted EventType = "CountdownCompleted"

	// EventTypeCountdownSnapshot is sent only to a WebSocket client when it
	// connects, so a late joiner sees the current value without waiting for a tick.
	EventTypeCountdownSnapshot EventType = "CountdownSnapshot"
)

// SubjectPrefix is the NATS subject root for all countdown events.
const SubjectPrefix = "quiz.countdown"

// Envelope wraps every event sent to the message bus and to WebSocket clients.
type Envelope struct {
	ID        string          `json:"id"`
	RoundID   string          `json:"round_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Subject returns the NATS subject for the envelope.
func (e *Envelope) Subject() string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, e.RoundID, e.Type)
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(roundID uuid.UUID, eventType EventType, at time.Time, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		RoundID:   roundID.String(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// CountdownStartedPayload is the payload for CountdownStarted and CountdownResumed
type CountdownStartedPayload struct {
	RoundID      string    `json:"round_id"`
	RoundName    string    `json:"round_name"`
	TotalSec     int       `json:"total_sec"`
	RemainingSec int       `json:"remaining_sec"`
	StartedAt    time.Time `json:"started_at"`
}

// CountdownTickPayload is the payload for CountdownTick
type CountdownTickPayload struct {
	RoundID      string    `json:"round_id"`
	RemainingSec int       `json:"remaining_sec"`
	TotalSec     int       `json:"total_sec"`
	TickedAt     time.Time `json:"ticked_at"`
}

// CountdownHaltedPayload is the payload for CountdownPaused and CountdownStopped
type CountdownHaltedPayload struct {
	RoundID      string    `json:"round_id"`
	RemainingSec int       `json:"remaining_sec"`
	HaltedAt     time.Time `json:"halted_at"`
	Reason       string    `json:"reason"`
}

// CountdownResetPayload is the payload for CountdownReset
type CountdownResetPayload struct {
	RoundID  string    `json:"round_id"`
	TotalSec int       `json:"total_sec"`
	ResetAt  time.Time `json:"reset_at"`
}

// CountdownCompletedPayload is the payload for CountdownCompleted
type CountdownCompletedPayload struct {
	RoundID     string    `json:"round_id"`
	RoundName   string    `json:"round_name"`
	TotalSec    int       `json:"total_sec"`
	CompletedAt time.Time `json:"completed_at"`
}

// CountdownSnapshotPayload is the payload for CountdownSnapshot
type CountdownSnapshotPayload struct {
	RoundID      string `json:"round_id"`
	RoundName    string `json:"round_name"`
	State        string `json:"state"`
	RemainingSec int    `json:"remaining_sec"`
	TotalSec     int    `json:"total_sec"`
	Running      bool   `json:"running"`
}

// ParsePayload decodes envelope data into the payload struct for its type.
func ParsePayload(env *Envelope) (interface{}, error) {
	switch env.Type {
	case EventTypeCountdownStarted, EventTypeCountdownResumed:
		var payload CountdownStartedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeCountdownTick:
		var payload CountdownTickPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeCountdownPaused, EventTypeCountdownStopped:
		var payload CountdownHaltedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeCountdownReset:
		var payload CountdownResetPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeCountdownCompleted:
		var payload CountdownCompletedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeCountdownSnapshot:
		var payload CountdownSnapshotPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
