package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizclock/go/internal/quiz/events"
)

// EventPublisher is anything that can publish a countdown envelope
type EventPublisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// MetricsCollector defines the interface for collecting publish metrics
type MetricsCollector interface {
	RecordPublish(eventType events.EventType, success bool, duration time.Duration)
}

// MetricPublisher wraps an EventPublisher with metrics collection
type MetricPublisher struct {
	publisher EventPublisher
	metrics   MetricsCollector
	clock     clockwork.Clock
}

func NewMetricPublisher(publisher EventPublisher, metrics MetricsCollector, clock clockwork.Clock) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
		clock:     clock,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	start := p.clock.Now()

	err := p.publisher.Publish(ctx, env)

	p.metrics.RecordPublish(env.Type, err == nil, p.clock.Since(start))
	return err
}

// PublishStats is a point-in-time copy of Counters
type PublishStats struct {
	Published     uint64
	Failed        uint64
	ByType        map[events.EventType]uint64
	LastPublished time.Time
	LastFailure   time.Time
	TotalDuration time.Duration
}

// Counters is an in-memory MetricsCollector
type Counters struct {
	mu    sync.Mutex
	clock clockwork.Clock
	stats PublishStats
}

func NewCounters(clock clockwork.Clock) *Counters {
	return &Counters{
		clock: clock,
		stats: PublishStats{ByType: make(map[events.EventType]uint64)},
	}
}

func (c *Counters) RecordPublish(eventType events.EventType, success bool, duration time.Duration) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalDuration += duration
	if !success {
		c.stats.Failed++
		c.stats.LastFailure = now
		return
	}
	c.stats.Published++
	c.stats.ByType[eventType]++
	c.stats.LastPublished = now
}

// Stats returns a copy of the current counters
func (c *Counters) Stats() PublishStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.ByType = make(map[events.EventType]uint64, len(c.stats.ByType))
	for k, v := range c.stats.ByType {
		stats.ByType[k] = v
	}
	return stats
}
