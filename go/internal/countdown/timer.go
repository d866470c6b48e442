package countdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TickInterval is the countdown granularity.
const TickInterval = time.Second

// ErrInvalidDuration is returned when a Timer is built with a non-positive duration.
var ErrInvalidDuration = errors.New("countdown duration must be a positive number of seconds")

// Option configures a Timer
type Option func(*Timer)

// WithClock sets the clock that drives ticks. In production, use
// clockwork.NewRealClock(). In tests, a FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(t *Timer) {
		t.clock = clock
	}
}

// WithLogger sets the logger used for lifecycle debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Timer) {
		t.logger = logger
	}
}

// WithListener registers a listener before the timer can emit anything.
func WithListener(l Listener) Option {
	return func(t *Timer) {
		t.addListener(l)
	}
}

type subscription struct {
	id uint64
	fn Listener
}

type queued struct {
	ev  Event
	run uint64
}

// Timer is a restartable one-second countdown.
//
// All operations are safe for concurrent use and may be called from inside a
// listener. Events are queued under the lock and drained by whichever
// goroutine is not already delivering, so listeners see them in order and one
// at a time.
type Timer struct {
	clock  clockwork.Clock
	logger zerolog.Logger
	total  int

	mu        sync.Mutex
	remaining int
	running   bool
	started   bool // set once a run begins; cleared by Reset
	run       uint64
	ticker    clockwork.Ticker
	done      chan struct{}

	listeners   []subscription
	nextSubID   uint64
	queue       []queued
	dispatching bool
}

// New creates an idle Timer counting down from seconds.
func New(seconds int, opts ...Option) (*Timer, error) {
	if seconds <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDuration, seconds)
	}

	t := &Timer{
		clock:     clockwork.NewRealClock(),
		logger:    log.Logger,
		total:     seconds,
		remaining: seconds,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewWithCallbacks creates a Timer wired to a tick callback and a completion
// callback. Either callback may be nil.
func NewWithCallbacks(seconds int, onTick func(remaining int), onComplete func(), opts ...Option) (*Timer, error) {
	adapter := func(ev Event) {
		switch ev.Kind {
		case EventTick:
			if onTick != nil {
				onTick(ev.Remaining)
			}
		case EventCompleted:
			if onComplete != nil {
				onComplete()
			}
		}
	}
	return New(seconds, append([]Option{WithListener(adapter)}, opts...)...)
}

// Total returns the configured duration in seconds.
func (t *Timer) Total() int {
	return t.total
}

// Remaining returns the current countdown value in seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Running reports whether a tick source is scheduled.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// State returns the current lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Snapshot returns state and counters read under a single lock.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		State:     t.stateLocked(),
		Remaining: t.remaining,
		Total:     t.total,
		Running:   t.running,
	}
}

func (t *Timer) stateLocked() State {
	switch {
	case t.running:
		return StateRunning
	case t.remaining == 0:
		return StateCompleted
	case t.started:
		return StatePaused
	default:
		return StateIdle
	}
}

// Start begins counting down from the current remaining value. The current
// value is emitted before Start returns. Start is a no-op while running and
// once the countdown has completed.
func (t *Timer) Start() {
	t.begin(ReasonStart)
}

// Resume continues a stopped or paused countdown from where it left off.
// It is a no-op while running or once remaining has reached zero.
func (t *Timer) Resume() {
	t.begin(ReasonResume)
}

// Stop cancels the tick source. Remaining is kept.
func (t *Timer) Stop() {
	t.halt(ReasonStop)
}

// Pause has the same effect as Stop; the emitted state change carries
// ReasonPause so observers can tell a user pause from an internal stop.
func (t *Timer) Pause() {
	t.halt(ReasonPause)
}

// Reset stops the timer and restores remaining to the full duration.
// No tick or completion is emitted.
func (t *Timer) Reset() {
	t.mu.Lock()
	from := t.stateLocked()
	t.cancelLocked()
	t.remaining = t.total
	t.started = false
	if from != StateIdle {
		t.enqueueLocked(t.stateEventLocked(from, ReasonReset))
	}
	t.mu.Unlock()

	t.logger.Debug().Str("from", from.String()).Int("remaining", t.total).Msg("countdown reset")
	t.dispatch()
}

func (t *Timer) begin(reason Reason) {
	t.mu.Lock()
	if t.running || t.remaining == 0 {
		t.mu.Unlock()
		return
	}

	from := t.stateLocked()
	t.running = true
	t.started = true
	t.run++
	t.ticker = t.clock.NewTicker(TickInterval)
	t.done = make(chan struct{})
	go t.loop(t.run, t.ticker, t.done)

	t.enqueueLocked(t.stateEventLocked(from, reason))
	t.enqueueLocked(t.tickEventLocked())
	remaining := t.remaining
	t.mu.Unlock()

	t.logger.Debug().
		Str("reason", string(reason)).
		Int("remaining", remaining).
		Msg("countdown running")
	t.dispatch()
}

func (t *Timer) halt(reason Reason) {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.cancelLocked()
	t.enqueueLocked(t.stateEventLocked(StateRunning, reason))
	remaining := t.remaining
	t.mu.Unlock()

	t.logger.Debug().
		Str("reason", string(reason)).
		Int("remaining", remaining).
		Msg("countdown halted")
	t.dispatch()
}

// cancelLocked stops the active tick source, if any. Ticks already taken off
// the ticker by the loop are discarded because the run counter moves on.
func (t *Timer) cancelLocked() {
	if !t.running {
		return
	}
	t.running = false
	t.run++
	t.ticker.Stop()
	close(t.done)
	t.ticker = nil
	t.done = nil
}

func (t *Timer) loop(run uint64, ticker clockwork.Ticker, done <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			if !t.tick(run) {
				return
			}
		}
	}
}

// tick performs one decrement for the given run and reports whether the run
// is still live afterwards.
func (t *Timer) tick(run uint64) bool {
	t.mu.Lock()
	if run != t.run || !t.running {
		t.mu.Unlock()
		return false
	}

	t.remaining--
	t.enqueueLocked(t.tickEventLocked())

	live := true
	if t.remaining == 0 {
		t.running = false
		t.ticker.Stop()
		t.ticker = nil
		t.done = nil
		t.enqueueLocked(t.stateEventLocked(StateRunning, ReasonComplete))
		t.enqueueLocked(Event{
			Kind:  EventCompleted,
			Total: t.total,
			At:    t.clock.Now(),
		})
		live = false
	}
	t.mu.Unlock()

	if !live {
		t.logger.Debug().Int("total", t.total).Msg("countdown completed")
	}
	t.dispatch()
	return live
}

func (t *Timer) tickEventLocked() Event {
	return Event{
		Kind:      EventTick,
		Remaining: t.remaining,
		Total:     t.total,
		At:        t.clock.Now(),
	}
}

func (t *Timer) stateEventLocked(from State, reason Reason) Event {
	return Event{
		Kind:      EventStateChanged,
		Remaining: t.remaining,
		Total:     t.total,
		From:      from,
		To:        t.stateLocked(),
		Reason:    reason,
		At:        t.clock.Now(),
	}
}

func (t *Timer) enqueueLocked(ev Event) {
	t.queue = append(t.queue, queued{ev: ev, run: t.run})
}

// dispatch drains the event queue unless another call is already draining it.
// A tick queued by a run that has since been cancelled is dropped.
func (t *Timer) dispatch() {
	t.mu.Lock()
	if t.dispatching {
		t.mu.Unlock()
		return
	}
	t.dispatching = true

	for {
		if len(t.queue) == 0 {
			t.queue = nil
			t.dispatching = false
			t.mu.Unlock()
			return
		}

		next := t.queue[0]
		t.queue[0] = queued{}
		t.queue = t.queue[1:]

		if next.ev.Kind == EventTick && next.run != t.run {
			continue
		}

		listeners := make([]Listener, len(t.listeners))
		for i, sub := range t.listeners {
			listeners[i] = sub.fn
		}

		t.mu.Unlock()
		for _, fn := range listeners {
			fn(next.ev)
		}
		t.mu.Lock()
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (t *Timer) Subscribe(l Listener) (unsubscribe func()) {
	t.mu.Lock()
	id := t.addListener(l)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, sub := range t.listeners {
				if sub.id == id {
					t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (t *Timer) addListener(l Listener) uint64 {
	t.nextSubID++
	t.listeners = append(t.listeners, subscription{id: t.nextSubID, fn: l})
	return t.nextSubID
}

// Events streams timer events until ctx is done, then closes the channel.
// Delivery blocks on a full buffer so no event is lost.
func (t *Timer) Events(ctx context.Context, buffer int) <-chan Event {
	ch := make(chan Event, buffer)

	var (
		mu     sync.Mutex
		closed bool
	)
	unsubscribe := t.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}
