package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/MarvinJWendt/testza"
	"github.com/mcdev12/quizclock/go/internal/config"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/mcdev12/quizclock/go/internal/quiz/rpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const testQuiz = `
title: Smoke test
rounds:
  - name: Lightning
    duration_sec: 45
  - name: Anagrams
    duration_sec: 90
`

func newTestServer(t *testing.T) (*httptest.Server, *Services) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quiz.yaml")
	testza.AssertNoError(t, os.WriteFile(path, []byte(testQuiz), 0o600))

	cfg := &config.Config{Port: "0", QuizFile: path, Stream: "QUIZ_EVENTS"}
	ctx, cancel := context.WithCancel(context.Background())

	services, err := setupServices(ctx, cfg)
	testza.AssertNoError(t, err)
	testza.AssertNoError(t, openRounds(ctx, cfg, services))
	go services.Rounds.Run(ctx)
	go services.Gateway.Start(ctx)

	server := httptest.NewServer(setupServer(cfg, services).Handler)
	t.Cleanup(func() {
		services.Rounds.Shutdown()
		cancel()
		server.Close()
		services.Close()
	})
	return server, services
}

func TestHealthCheck(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	testza.AssertNoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, http.StatusOK, resp.StatusCode)
	testza.AssertEqual(t, "OK", string(body))
}

func TestRoundsFromQuizFileAreServed(t *testing.T) {
	server, services := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/rounds")
	testza.AssertNoError(t, err)
	defer resp.Body.Close()

	var list []rounds.RoundSnapshot
	testza.AssertNoError(t, json.NewDecoder(resp.Body).Decode(&list))
	testza.AssertLen(t, list, 2)
	testza.AssertEqual(t, "Anagrams", list[0].Name)
	testza.AssertEqual(t, "Lightning", list[1].Name)

	client := rpc.NewRoundServiceClient(server.Client(), server.URL)
	got, err := client.Start(context.Background(), connect.NewRequest(wrapperspb.String(list[1].RoundID.String())))
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "RUNNING", got.Msg.GetFields()["state"].GetStringValue())

	snap, err := services.Rounds.Snapshot(list[1].RoundID)
	testza.AssertNoError(t, err)
	testza.AssertTrue(t, snap.Running)
}

func TestCORSPreflight(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, server.URL+rpc.RoundServiceGetProcedure, nil)
	testza.AssertNoError(t, err)
	req.Header.Set("Origin", "http://quiz.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	testza.AssertNoError(t, err)
	resp.Body.Close()
	testza.AssertEqual(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMissingQuizFileStartsEmpty(t *testing.T) {
	cfg := &config.Config{QuizFile: filepath.Join(t.TempDir(), "absent.yaml")}
	list, err := loadRounds(context.Background(), cfg, &Services{})
	testza.AssertNoError(t, err)
	testza.AssertLen(t, list, 0)
}

func TestReadinessAndMetrics(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health/ready")
	testza.AssertNoError(t, err)
	var status map[string]interface{}
	testza.AssertNoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	testza.AssertEqual(t, http.StatusOK, resp.StatusCode)
	testza.AssertEqual(t, true, status["healthy"])
	testza.AssertEqual(t, float64(2), status["open_rounds"])

	resp, err = http.Get(server.URL + "/metrics")
	testza.AssertNoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	testza.AssertNoError(t, err)
	testza.AssertTrue(t, strings.Contains(string(body), "quizclock_rounds_open 2"))
}
