package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MarvinJWendt/testza"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})
	testza.AssertTrue(t, isUniqueViolation(wrapped))

	testza.AssertFalse(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	testza.AssertFalse(t, isUniqueViolation(errors.New("connection reset")))
	testza.AssertFalse(t, isUniqueViolation(nil))
}

func TestRoundRecordToRound(t *testing.T) {
	id := uuid.New()
	record := RoundRecord{
		ID:          id,
		Name:        "General knowledge",
		DurationSec: 45,
		Position:    2,
		Metadata:    []byte(`{"points":10}`),
	}

	round := record.Round()
	testza.AssertEqual(t, id, round.ID)
	testza.AssertEqual(t, "General knowledge", round.Name)
	testza.AssertEqual(t, 45, round.DurationSec)
}
