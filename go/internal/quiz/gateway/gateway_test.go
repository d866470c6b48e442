package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarvinJWendt/testza"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizclock/go/internal/quiz/events"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
)

type fixture struct {
	server  *httptest.Server
	cm      *ConnectionManager
	manager *rounds.Manager
	clock   *clockwork.FakeClock
	roundID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	f := &fixture{
		cm:      NewConnectionManager(DefaultConnectionConfig()),
		clock:   clockwork.NewFakeClock(),
		roundID: uuid.New(),
	}
	f.manager = rounds.NewManager(
		rounds.WithClock(f.clock),
		rounds.WithSinks(NewLocalBroadcaster(f.cm)),
	)
	testza.AssertNoError(t, f.manager.Open(rounds.Round{ID: f.roundID, Name: "Opening round", DurationSec: 3}))

	go f.cm.Start(ctx)
	go f.manager.Run(ctx)

	mux := http.NewServeMux()
	NewWebSocketHandler(f.cm, f.manager).RegisterRoutes(mux)
	NewStateHandler(f.manager).RegisterStateRoutes(mux)
	f.server = httptest.NewServer(mux)

	t.Cleanup(func() {
		f.manager.Shutdown()
		cancel()
		f.server.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T, roundID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/round?round_id=" + roundID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	testza.AssertNoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// the handshake completes before the connection is registered
	deadline := time.Now().Add(2 * time.Second)
	for f.cm.GetConnectionStats().RoundConnections[roundID.String()] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func (f *fixture) post(t *testing.T, path string) (*http.Response, rounds.RoundSnapshot) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", nil)
	testza.AssertNoError(t, err)
	defer resp.Body.Close()

	var snap rounds.RoundSnapshot
	if resp.StatusCode == http.StatusOK {
		testza.AssertNoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	}
	return resp, snap
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *events.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env events.Envelope
	testza.AssertNoError(t, conn.ReadJSON(&env))
	return &env
}

func TestWebSocketReceivesSnapshotThenLiveEvents(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, f.roundID)

	env := readEnvelope(t, conn)
	testza.AssertEqual(t, events.EventTypeCountdownSnapshot, env.Type)
	payload, err := events.ParsePayload(env)
	testza.AssertNoError(t, err)
	snap := payload.(events.CountdownSnapshotPayload)
	testza.AssertEqual(t, "IDLE", snap.State)
	testza.AssertEqual(t, 3, snap.RemainingSec)
	testza.AssertEqual(t, "Opening round", snap.RoundName)

	resp, state := f.post(t, "/api/rounds/"+f.roundID.String()+"/start")
	testza.AssertEqual(t, http.StatusOK, resp.StatusCode)
	testza.AssertEqual(t, "RUNNING", state.State)
	testza.AssertTrue(t, state.Running)

	testza.AssertEqual(t, events.EventTypeCountdownStarted, readEnvelope(t, conn).Type)
	tick := readEnvelope(t, conn)
	testza.AssertEqual(t, events.EventTypeCountdownTick, tick.Type)
	payload, err = events.ParsePayload(tick)
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, 3, payload.(events.CountdownTickPayload).RemainingSec)

	resp, state = f.post(t, "/api/rounds/"+f.roundID.String()+"/pause")
	testza.AssertEqual(t, http.StatusOK, resp.StatusCode)
	testza.AssertEqual(t, "PAUSED", state.State)
	testza.AssertEqual(t, events.EventTypeCountdownPaused, readEnvelope(t, conn).Type)
}

func TestWebSocketRejectsUnknownOrMalformedRounds(t *testing.T) {
	f := newFixture(t)
	base := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/round"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?round_id="+uuid.NewString(), nil)
	testza.AssertEqual(t, websocket.ErrBadHandshake, err)
	testza.AssertEqual(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?round_id=nope", nil)
	testza.AssertEqual(t, websocket.ErrBadHandshake, err)
	testza.AssertEqual(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base, nil)
	testza.AssertEqual(t, websocket.ErrBadHandshake, err)
	testza.AssertEqual(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStateRoutes(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/rounds")
	testza.AssertNoError(t, err)
	var list []rounds.RoundSnapshot
	testza.AssertNoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	testza.AssertLen(t, list, 1)
	testza.AssertEqual(t, f.roundID, list[0].RoundID)

	resp, err = http.Get(f.server.URL + "/api/rounds/" + f.roundID.String() + "/state")
	testza.AssertNoError(t, err)
	var snap rounds.RoundSnapshot
	testza.AssertNoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	testza.AssertEqual(t, "IDLE", snap.State)
	testza.AssertEqual(t, 3, snap.TotalSec)

	resp, err = http.Get(f.server.URL + "/api/rounds/" + uuid.NewString() + "/state")
	testza.AssertNoError(t, err)
	resp.Body.Close()
	testza.AssertEqual(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.post(t, "/api/rounds/"+uuid.NewString()+"/start")
	testza.AssertEqual(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.post(t, "/api/rounds/not-a-uuid/stop")
	testza.AssertEqual(t, http.StatusBadRequest, resp.StatusCode)

	// control routes only accept POST
	resp, err = http.Get(f.server.URL + "/api/rounds/" + f.roundID.String() + "/start")
	testza.AssertNoError(t, err)
	resp.Body.Close()
	testza.AssertEqual(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestResetAndStopRoutes(t *testing.T) {
	f := newFixture(t)
	path := "/api/rounds/" + f.roundID.String()

	_, snap := f.post(t, path+"/start")
	testza.AssertEqual(t, "RUNNING", snap.State)

	f.clock.Advance(time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := f.manager.Snapshot(f.roundID)
		testza.AssertNoError(t, err)
		if got.RemainingSec == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("countdown never ticked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, snap = f.post(t, path+"/stop")
	testza.AssertEqual(t, "PAUSED", snap.State)
	testza.AssertEqual(t, 2, snap.RemainingSec)
	testza.AssertFalse(t, snap.Running)

	_, snap = f.post(t, path+"/reset")
	testza.AssertEqual(t, "IDLE", snap.State)
	testza.AssertEqual(t, 3, snap.RemainingSec)
}

func TestZeroConnectionConfigGetsDefaults(t *testing.T) {
	cm := NewConnectionManager(ConnectionConfig{})
	defaults := DefaultConnectionConfig()

	testza.AssertEqual(t, defaults.PingInterval, cm.config.PingInterval)
	testza.AssertEqual(t, defaults.WriteTimeout, cm.config.WriteTimeout)
	testza.AssertEqual(t, defaults.ReadTimeout, cm.config.ReadTimeout)
	testza.AssertEqual(t, defaults.MaxMessageSize, cm.config.MaxMessageSize)
	testza.AssertEqual(t, 256, cm.config.SendBufferSize)
	testza.AssertNotNil(t, cm.clock)

	// a socket served with the zero config must not panic on its ping ticker
	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)
	roundID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := cm.UpgradeConnection(w, r, "", roundID, nil); err != nil {
			t.Errorf("upgrade failed: %v", err)
		}
	}))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	testza.AssertNoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		cancel()
		server.Close()
	})

	deadline := time.Now().Add(2 * time.Second)
	for cm.GetConnectionStats().TotalConnections != 1 {
		if time.Now().After(deadline) {
			t.Fatal("connection was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectionStatsRoute(t *testing.T) {
	f := newFixture(t)
	f.dial(t, f.roundID)

	resp, err := http.Get(f.server.URL + "/ws/stats")
	testza.AssertNoError(t, err)
	defer resp.Body.Close()

	var stats ConnectionStats
	testza.AssertNoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	testza.AssertEqual(t, 1, stats.TotalConnections)
	testza.AssertEqual(t, 1, stats.ActiveRounds)
	testza.AssertEqual(t, 1, stats.RoundConnections[f.roundID.String()])
}

func TestDecodeEnvelope(t *testing.T) {
	roundID := uuid.New()
	env, err := events.NewEnvelope(roundID, events.EventTypeCountdownTick, time.Now(), events.CountdownTickPayload{
		RoundID:      roundID.String(),
		RemainingSec: 7,
		TotalSec:     10,
	})
	testza.AssertNoError(t, err)
	data, err := json.Marshal(env)
	testza.AssertNoError(t, err)

	decoded, gotID, err := decodeEnvelope(data)
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, roundID, gotID)
	testza.AssertEqual(t, env.ID, decoded.ID)
	testza.AssertEqual(t, events.EventTypeCountdownTick, decoded.Type)

	_, _, err = decodeEnvelope([]byte("{not json"))
	testza.AssertNotNil(t, err)

	_, _, err = decodeEnvelope([]byte(`{"id":"x","round_id":"bad","type":"CountdownTick"}`))
	testza.AssertNotNil(t, err)
}

func TestLocalBroadcasterRejectsBadRoundID(t *testing.T) {
	b := NewLocalBroadcaster(NewConnectionManager(DefaultConnectionConfig()))
	err := b.Publish(context.Background(), &events.Envelope{ID: "x", RoundID: "bad"})
	testza.AssertNotNil(t, err)
}

func TestPingsFollowInjectedClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultConnectionConfig()
	cfg.Clock = clock
	cm := NewConnectionManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	roundID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := cm.UpgradeConnection(w, r, "host", roundID, nil); err != nil {
			t.Errorf("upgrade failed: %v", err)
		}
	}))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	testza.AssertNoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		cancel()
		server.Close()
	})

	// the client answers pings while it reads
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// the write pump's ping ticker
	testza.AssertNoError(t, clock.BlockUntilContext(ctx, 1))
	connectedAt := clock.Now()
	clock.Advance(cfg.PingInterval)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var lastPing time.Time
		cm.mu.RLock()
		for c := range cm.roundConnections[roundID] {
			lastPing = c.LastPing()
		}
		cm.mu.RUnlock()
		if lastPing.After(connectedAt) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pong was never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
