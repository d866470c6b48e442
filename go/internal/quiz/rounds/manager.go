package rounds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizclock/go/internal/countdown"
	"github.com/mcdev12/quizclock/go/internal/quiz/events"
	"github.com/rs/zerolog/log"
)

const (
	defaultQueueSize      = 1024
	defaultPublishTimeout = 5 * time.Second
	// resultEnqueueTimeout bounds how long a completion waits for queue space
	resultEnqueueTimeout = 5 * time.Second
)

var (
	ErrRoundNotFound    = errors.New("round not found")
	ErrRoundAlreadyOpen = errors.New("round already open")
)

// Round is a single timed question or section of a quiz.
type Round struct {
	ID          uuid.UUID
	Name        string
	DurationSec int
}

// Result describes a round whose countdown ran out.
type Result struct {
	RoundID     uuid.UUID
	RoundName   string
	DurationSec int
	StartedAt   time.Time
	CompletedAt time.Time
	Pauses      int
}

// Sink receives every countdown event produced by the manager.
type Sink interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// ResultRecorder persists completed rounds.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result Result) error
}

// RoundSnapshot is the externally visible state of an open round.
type RoundSnapshot struct {
	RoundID      uuid.UUID `json:"round_id"`
	Name         string    `json:"name"`
	State        string    `json:"state"`
	RemainingSec int       `json:"remaining_sec"`
	TotalSec     int       `json:"total_sec"`
	Running      bool      `json:"running"`
}

type entry struct {
	round       Round
	timer       *countdown.Timer
	unsubscribe func()

	// only touched from the timer's listener, which is never concurrent
	startedAt time.Time
	pauses    int
}

type job struct {
	env    *events.Envelope
	result *Result
}

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the clock shared by every round timer.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithSinks adds event sinks.
func WithSinks(sinks ...Sink) Option {
	return func(m *Manager) {
		m.sinks = append(m.sinks, sinks...)
	}
}

// WithRecorder sets where completed rounds are recorded.
func WithRecorder(recorder ResultRecorder) Option {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// WithQueueSize sets the outbound event buffer size. Non-positive sizes
// keep the default.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// Manager owns one countdown timer per open round and forwards timer
// events to its sinks from a single worker goroutine, keeping per-round order.
type Manager struct {
	clock          clockwork.Clock
	sinks          []Sink
	recorder       ResultRecorder
	queueSize      int
	publishTimeout time.Duration
	instanceID     string

	mu     sync.RWMutex
	rounds map[uuid.UUID]*entry

	workCh chan job
}

// NewManager creates a round manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:          clockwork.NewRealClock(),
		queueSize:      defaultQueueSize,
		publishTimeout: defaultPublishTimeout,
		instanceID:     uuid.New().String()[:8], // short ID for logging
		rounds:         make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.workCh = make(chan job, m.queueSize)
	return m
}

// Open creates the countdown for a round. The round starts idle.
func (m *Manager) Open(round Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rounds[round.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRoundAlreadyOpen, round.ID)
	}

	e := &entry{round: round}
	timer, err := countdown.New(round.DurationSec,
		countdown.WithClock(m.clock),
		countdown.WithLogger(log.With().Str("round_id", round.ID.String()).Logger()),
	)
	if err != nil {
		return fmt.Errorf("failed to create countdown for round %s: %w", round.ID, err)
	}
	e.timer = timer
	e.unsubscribe = timer.Subscribe(func(ev countdown.Event) {
		m.handleTimerEvent(e, ev)
	})
	m.rounds[round.ID] = e

	log.Info().
		Str("round_id", round.ID.String()).
		Str("round_name", round.Name).
		Int("duration_sec", round.DurationSec).
		Msg("round opened")
	return nil
}

// Close stops a round's countdown and forgets it.
func (m *Manager) Close(roundID uuid.UUID) error {
	m.mu.Lock()
	e, exists := m.rounds[roundID]
	if exists {
		delete(m.rounds, roundID)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
	}
	e.unsubscribe()
	e.timer.Stop()

	log.Info().Str("round_id", roundID.String()).Msg("round closed")
	return nil
}

func (m *Manager) Start(roundID uuid.UUID) error {
	return m.withTimer(roundID, (*countdown.Timer).Start)
}

func (m *Manager) Pause(roundID uuid.UUID) error {
	return m.withTimer(roundID, (*countdown.Timer).Pause)
}

func (m *Manager) Resume(roundID uuid.UUID) error {
	return m.withTimer(roundID, (*countdown.Timer).Resume)
}

func (m *Manager) Stop(roundID uuid.UUID) error {
	return m.withTimer(roundID, (*countdown.Timer).Stop)
}

func (m *Manager) Reset(roundID uuid.UUID) error {
	return m.withTimer(roundID, (*countdown.Timer).Reset)
}

func (m *Manager) withTimer(roundID uuid.UUID, op func(*countdown.Timer)) error {
	m.mu.RLock()
	e, exists := m.rounds[roundID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
	}
	op(e.timer)
	return nil
}

// Snapshot returns the current state of one round.
func (m *Manager) Snapshot(roundID uuid.UUID) (RoundSnapshot, error) {
	m.mu.RLock()
	e, exists := m.rounds[roundID]
	m.mu.RUnlock()

	if !exists {
		return RoundSnapshot{}, fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
	}
	return snapshotOf(e), nil
}

// Snapshots returns every open round ordered by name.
func (m *Manager) Snapshots() []RoundSnapshot {
	m.mu.RLock()
	snaps := make([]RoundSnapshot, 0, len(m.rounds))
	for _, e := range m.rounds {
		snaps = append(snaps, snapshotOf(e))
	}
	m.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Name == snaps[j].Name {
			return snaps[i].RoundID.String() < snaps[j].RoundID.String()
		}
		return snaps[i].Name < snaps[j].Name
	})
	return snaps
}

func snapshotOf(e *entry) RoundSnapshot {
	s := e.timer.Snapshot()
	return RoundSnapshot{
		RoundID:      e.round.ID,
		Name:         e.round.Name,
		State:        s.State.String(),
		RemainingSec: s.Remaining,
		TotalSec:     s.Total,
		Running:      s.Running,
	}
}

// Shutdown stops every open countdown.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for roundID, e := range m.rounds {
		e.timer.Stop()
		log.Debug().Str("round_id", roundID.String()).Msg("stopped countdown on shutdown")
	}
}

// Run forwards queued events to the sinks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	log.Info().
		Str("instance", m.instanceID).
		Int("sinks", len(m.sinks)).
		Msg("round event worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", m.instanceID).Msg("round event worker shutting down")
			return
		case j := <-m.workCh:
			m.process(ctx, j)
		}
	}
}

func (m *Manager) process(ctx context.Context, j job) {
	pubCtx, cancel := context.WithTimeout(ctx, m.publishTimeout)
	defer cancel()

	for _, sink := range m.sinks {
		if err := sink.Publish(pubCtx, j.env); err != nil {
			log.Error().
				Err(err).
				Str("round_id", j.env.RoundID).
				Str("event_type", string(j.env.Type)).
				Msg("failed to publish countdown event")
		}
	}

	if j.result != nil && m.recorder != nil {
		if err := m.recorder.RecordResult(pubCtx, *j.result); err != nil {
			log.Error().
				Err(err).
				Str("round_id", j.result.RoundID.String()).
				Msg("failed to record round result")
		}
	}
}

// enqueue never blocks for plain events; a full queue drops them. A job
// carrying a round result waits up to resultEnqueueTimeout for space.
func (m *Manager) enqueue(j job) {
	select {
	case m.workCh <- j:
		return
	default:
	}

	if j.result != nil {
		select {
		case m.workCh <- j:
		case <-m.clock.After(resultEnqueueTimeout):
			log.Error().
				Str("round_id", j.result.RoundID.String()).
				Msg("round event queue full, round result not recorded")
		}
		return
	}

	log.Warn().
		Str("round_id", j.env.RoundID).
		Str("event_type", string(j.env.Type)).
		Msg("round event queue full, dropping event")
}

// handleTimerEvent converts a timer event into a bus envelope. It runs on the
// timer's delivery path, so it only builds and enqueues.
func (m *Manager) handleTimerEvent(e *entry, ev countdown.Event) {
	var (
		eventType events.EventType
		payload   interface{}
		result    *Result
	)
	roundID := e.round.ID.String()

	switch ev.Kind {
	case countdown.EventTick:
		eventType = events.EventTypeCountdownTick
		payload = events.CountdownTickPayload{
			RoundID:      roundID,
			RemainingSec: ev.Remaining,
			TotalSec:     ev.Total,
			TickedAt:     ev.At,
		}

	case countdown.EventCompleted:
		eventType = events.EventTypeCountdownCompleted
		payload = events.CountdownCompletedPayload{
			RoundID:     roundID,
			RoundName:   e.round.Name,
			TotalSec:    ev.Total,
			CompletedAt: ev.At,
		}
		result = &Result{
			RoundID:     e.round.ID,
			RoundName:   e.round.Name,
			DurationSec: ev.Total,
			StartedAt:   e.startedAt,
			CompletedAt: ev.At,
			Pauses:      e.pauses,
		}

	case countdown.EventStateChanged:
		switch ev.Reason {
		case countdown.ReasonStart, countdown.ReasonResume:
			eventType = events.EventTypeCountdownStarted
			if ev.Reason == countdown.ReasonResume || ev.From == countdown.StatePaused {
				eventType = events.EventTypeCountdownResumed
			}
			if e.startedAt.IsZero() {
				e.startedAt = ev.At
			}
			payload = events.CountdownStartedPayload{
				RoundID:      roundID,
				RoundName:    e.round.Name,
				TotalSec:     ev.Total,
				RemainingSec: ev.Remaining,
				StartedAt:    ev.At,
			}

		case countdown.ReasonPause, countdown.ReasonStop:
			eventType = events.EventTypeCountdownStopped
			if ev.Reason == countdown.ReasonPause {
				eventType = events.EventTypeCountdownPaused
				e.pauses++
			}
			payload = events.CountdownHaltedPayload{
				RoundID:      roundID,
				RemainingSec: ev.Remaining,
				HaltedAt:     ev.At,
				Reason:       string(ev.Reason),
			}

		case countdown.ReasonReset:
			eventType = events.EventTypeCountdownReset
			e.startedAt = time.Time{}
			e.pauses = 0
			payload = events.CountdownResetPayload{
				RoundID:  roundID,
				TotalSec: ev.Total,
				ResetAt:  ev.At,
			}

		default:
			// completion is reported by EventCompleted
			return
		}

	default:
		return
	}

	env, err := events.NewEnvelope(e.round.ID, eventType, ev.At, payload)
	if err != nil {
		log.Error().Err(err).Str("round_id", roundID).Msg("failed to build countdown event")
		return
	}
	m.enqueue(job{env: env, result: result})
}
