package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarvinJWendt/testza"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizclock/go/internal/quiz/gateway"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
)

func newClient(t *testing.T) (*QuizClockClient, uuid.UUID) {
	t.Helper()
	manager := rounds.NewManager(rounds.WithClock(clockwork.NewFakeClock()))
	roundID := uuid.New()
	testza.AssertNoError(t, manager.Open(rounds.Round{ID: roundID, Name: "Tie-break", DurationSec: 20}))

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Run(ctx)

	mux := http.NewServeMux()
	gateway.NewStateHandler(manager).RegisterStateRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		manager.Shutdown()
		cancel()
		server.Close()
	})
	return NewQuizClockClient(server.URL + "/"), roundID
}

func TestListAndState(t *testing.T) {
	client, roundID := newClient(t)
	ctx := context.Background()

	list, err := client.ListRounds(ctx)
	testza.AssertNoError(t, err)
	testza.AssertLen(t, list, 1)
	testza.AssertEqual(t, "Tie-break", list[0].Name)

	snap, err := client.RoundState(ctx, roundID)
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "IDLE", snap.State)
	testza.AssertEqual(t, 20, snap.RemainingSec)
}

func TestControl(t *testing.T) {
	client, roundID := newClient(t)
	ctx := context.Background()

	snap, err := client.Control(ctx, roundID, "start")
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "RUNNING", snap.State)

	snap, err = client.Control(ctx, roundID, "pause")
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "PAUSED", snap.State)

	_, err = client.Control(ctx, roundID, "explode")
	testza.AssertNotNil(t, err)
}

func TestUnknownRoundMapsToNotFound(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.RoundState(context.Background(), uuid.New())
	testza.AssertTrue(t, errors.Is(err, rounds.ErrRoundNotFound))

	_, err = client.Control(context.Background(), uuid.New(), "stop")
	testza.AssertTrue(t, errors.Is(err, rounds.ErrRoundNotFound))
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewQuizClockClient(server.URL).ListRounds(context.Background())
	var apiErr *APIError
	testza.AssertTrue(t, errors.As(err, &apiErr))
	testza.AssertEqual(t, http.StatusBadGateway, apiErr.StatusCode)
}
