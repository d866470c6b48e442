package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
)

// Actions accepted by QuizClockClient.Control
var Actions = []string{"start", "pause", "resume", "stop", "reset"}

// QuizClockClient talks to the quizclock REST state API
type QuizClockClient struct {
	*BaseClient
}

func NewQuizClockClient(baseURL string) *QuizClockClient {
	client := &QuizClockClient{
		BaseClient: NewBaseClient(strings.TrimRight(baseURL, "/")),
	}
	client.SetHeader("Accept", "application/json")
	return client
}

func (c *QuizClockClient) ListRounds(ctx context.Context) ([]rounds.RoundSnapshot, error) {
	body, err := c.Get(ctx, "/api/rounds")
	if err != nil {
		return nil, err
	}

	var list []rounds.RoundSnapshot
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rounds: %w", err)
	}
	return list, nil
}

func (c *QuizClockClient) RoundState(ctx context.Context, roundID uuid.UUID) (*rounds.RoundSnapshot, error) {
	body, err := c.Get(ctx, fmt.Sprintf("/api/rounds/%s/state", roundID))
	if err != nil {
		return nil, mapNotFound(roundID, err)
	}
	return decodeSnapshot(body)
}

// Control applies one of Actions to a round and returns its new state
func (c *QuizClockClient) Control(ctx context.Context, roundID uuid.UUID, action string) (*rounds.RoundSnapshot, error) {
	if !isAction(action) {
		return nil, fmt.Errorf("unknown action %q (want one of %s)", action, strings.Join(Actions, ", "))
	}

	body, err := c.Post(ctx, fmt.Sprintf("/api/rounds/%s/%s", roundID, action), nil)
	if err != nil {
		return nil, mapNotFound(roundID, err)
	}
	return decodeSnapshot(body)
}

func isAction(action string) bool {
	for _, a := range Actions {
		if a == action {
			return true
		}
	}
	return false
}

func decodeSnapshot(body []byte) (*rounds.RoundSnapshot, error) {
	var snap rounds.RoundSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round state: %w", err)
	}
	return &snap, nil
}

func mapNotFound(roundID uuid.UUID, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", rounds.ErrRoundNotFound, roundID)
	}
	return err
}
