package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizclock/go/internal/quiz/publisher"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/rs/zerolog/log"
)

// Status is the result of a readiness check
type Status struct {
	Healthy           bool      `json:"healthy"`
	OpenRounds        int       `json:"open_rounds"`
	RunningRounds     int       `json:"running_rounds"`
	Connections       int       `json:"connections"`
	EventsPublished   uint64    `json:"events_published"`
	PublishFailures   uint64    `json:"publish_failures"`
	LastEventTime     time.Time `json:"last_event_time"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	Errors            []string  `json:"errors"`
}

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BusConn is satisfied by *nats.Conn
type BusConn interface {
	IsConnected() bool
}

// Dependencies lists what the checker inspects. Nil fields are skipped.
type Dependencies struct {
	Database    Pinger
	Bus         BusConn
	Rounds      func() []rounds.RoundSnapshot
	Connections func() int
	Publishing  *publisher.Counters
}

// Checker reports whether the service can serve quiz pages
type Checker struct {
	deps      Dependencies
	clock     clockwork.Clock
	threshold time.Duration // running rounds with no publish for this long are unhealthy
}

func NewChecker(deps Dependencies, clock clockwork.Clock, threshold time.Duration) *Checker {
	return &Checker{
		deps:      deps,
		clock:     clock,
		threshold: threshold,
	}
}

func (c *Checker) Check(ctx context.Context) Status {
	status := Status{
		Healthy: true,
		Errors:  []string{},
	}

	if c.deps.Rounds != nil {
		for _, snap := range c.deps.Rounds() {
			status.OpenRounds++
			if snap.Running {
				status.RunningRounds++
			}
		}
	}
	if c.deps.Connections != nil {
		status.Connections = c.deps.Connections()
	}

	// Check database connection
	if c.deps.Database != nil {
		if err := c.deps.Database.PingContext(ctx); err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		} else {
			status.DatabaseConnected = true
		}
	}

	// Check NATS connection
	if c.deps.Bus != nil {
		status.NATSConnected = c.deps.Bus.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if c.deps.Publishing != nil {
		stats := c.deps.Publishing.Stats()
		status.EventsPublished = stats.Published
		status.PublishFailures = stats.Failed
		status.LastEventTime = stats.LastPublished

		// a running round ticks every second, so silence means the sinks are stuck
		if status.RunningRounds > 0 && stats.LastFailure.After(stats.LastPublished) {
			if since := c.clock.Since(stats.LastPublished); since > c.threshold {
				status.Healthy = false
				status.Errors = append(status.Errors, fmt.Sprintf("no events published for %s", since.Round(time.Second)))
			}
		}
	}

	return status
}

// ServeHTTP reports the status as JSON, 503 when unhealthy
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := c.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}

// MetricsHandler serves the status in the Prometheus text format
func (c *Checker) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if _, err := w.Write([]byte(c.Export(r.Context()))); err != nil {
			log.Error().Err(err).Msg("failed to write metrics")
		}
	})
}

func (c *Checker) Export(ctx context.Context) string {
	status := c.Check(ctx)

	return fmt.Sprintf(`# HELP quizclock_healthy Whether the service is healthy
# TYPE quizclock_healthy gauge
quizclock_healthy %d

# HELP quizclock_rounds_open Number of open rounds
# TYPE quizclock_rounds_open gauge
quizclock_rounds_open %d

# HELP quizclock_rounds_running Number of rounds whose countdown is running
# TYPE quizclock_rounds_running gauge
quizclock_rounds_running %d

# HELP quizclock_websocket_connections Current WebSocket connections
# TYPE quizclock_websocket_connections gauge
quizclock_websocket_connections %d

# HELP quizclock_events_published_total Countdown events published
# TYPE quizclock_events_published_total counter
quizclock_events_published_total %d

# HELP quizclock_publish_failures_total Countdown events that failed to publish
# TYPE quizclock_publish_failures_total counter
quizclock_publish_failures_total %d
`,
		boolGauge(status.Healthy),
		status.OpenRounds,
		status.RunningRounds,
		status.Connections,
		status.EventsPublished,
		status.PublishFailures,
	)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
