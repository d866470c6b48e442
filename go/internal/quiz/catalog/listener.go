package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mcdev12/quizclock/go/internal/quiz/repository"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/rs/zerolog/log"
)

// Store reads the round catalogue
type Store interface {
	ListRounds(ctx context.Context) ([]repository.RoundRecord, error)
	GetRound(ctx context.Context, id uuid.UUID) (*repository.RoundRecord, error)
}

// Opener opens a round's countdown
type Opener interface {
	Open(round rounds.Round) error
}

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to re-read the whole catalogue
	PingInterval     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:      "",
		NotifyChannel:    repository.RoundsChangedChannel,
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Listener opens rounds added to the catalogue while the server runs.
// Rounds that are already open keep their current countdown.
type Listener struct {
	store  Store
	opener Opener
	cfg    ListenerConfig
	clock  clockwork.Clock

	notify <-chan *pq.Notification
	ping   func() error
	close  func() error
}

// NewListener starts a pq listener on cfg.NotifyChannel. Fallback and ping
// tickers run on clock; nil means the real clock.
func NewListener(store Store, opener Opener, cfg ListenerConfig, clock clockwork.Clock) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("catalogue listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for catalogue changes")

	return newListener(store, opener, cfg, clock, l.Notify, l.Ping, l.Close), nil
}

func newListener(
	store Store,
	opener Opener,
	cfg ListenerConfig,
	clock clockwork.Clock,
	notify <-chan *pq.Notification,
	ping, closeFn func() error,
) *Listener {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Listener{
		store:  store,
		opener: opener,
		cfg:    cfg,
		clock:  clock,
		notify: notify,
		ping:   ping,
		close:  closeFn,
	}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("catalogue listener started")

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("catalogue listener shutting down")
			return l.close()
		case note := <-l.notify:
			if note == nil {
				// connection was re-established; notifications may have been missed
				if _, err := l.Sync(ctx); err != nil {
					log.Error().Err(err).Msg("failed to resync catalogue")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle catalogue notification")
			}
		case <-fallbackTicker.Chan():
			if _, err := l.Sync(ctx); err != nil {
				log.Error().Err(err).Msg("failed to sync catalogue")
			}
		case <-pingTicker.Chan():
			if err := l.ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Sync opens every catalogue round that is not open yet.
func (l *Listener) Sync(ctx context.Context) (int, error) {
	records, err := l.store.ListRounds(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list rounds: %w", err)
	}

	opened := 0
	for _, record := range records {
		ok, err := l.open(record)
		if err != nil {
			log.Error().Err(err).Str("round_id", record.ID.String()).Msg("failed to open round")
			continue
		}
		if ok {
			opened++
		}
	}
	return opened, nil
}

// handleNotification handles a pg notification whose payload is a round ID.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid round ID in notification: %w", err)
	}

	record, err := l.store.GetRound(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch round %s: %w", id, err)
	}

	_, err = l.open(*record)
	return err
}

func (l *Listener) open(record repository.RoundRecord) (bool, error) {
	err := l.opener.Open(record.Round())
	if errors.Is(err, rounds.ErrRoundAlreadyOpen) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log.Info().
		Str("round_id", record.ID.String()).
		Str("round_name", record.Name).
		Msg("opened round from catalogue")
	return true, nil
}
