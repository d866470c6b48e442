package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MarvinJWendt/testza"
	"github.com/google/uuid"
	"github.com/mcdev12/quizclock/go/internal/dbconfig"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
)

// openDB connects to the DB_* database, skipping when none is reachable.
func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", dbconfig.NewConfigFromEnv().DSN())
	testza.AssertNoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.ExecContext(context.Background(), stmt)
		testza.AssertNoError(t, err)
	}
	return db
}

func insertRound(t *testing.T, db *sql.DB, name string, seconds int, metadata []byte) uuid.UUID {
	t.Helper()
	id := uuid.New()
	var meta interface{}
	if metadata != nil {
		meta = string(metadata)
	}
	_, err := db.Exec(
		`INSERT INTO quiz_rounds (id, name, duration_sec, position, metadata) VALUES ($1, $2, $3, 0, $4)`,
		id, name, seconds, meta,
	)
	testza.AssertNoError(t, err)
	t.Cleanup(func() {
		db.Exec(`DELETE FROM quiz_rounds WHERE id = $1`, id)
	})
	return id
}

func TestGetRoundMapsMissingRowToNotFound(t *testing.T) {
	repo := NewRepository(openDB(t))

	_, err := repo.GetRound(context.Background(), uuid.New())
	testza.AssertTrue(t, errors.Is(err, rounds.ErrRoundNotFound))
}

func TestListAndGetRound(t *testing.T) {
	db := openDB(t)
	repo := NewRepository(db)
	id := insertRound(t, db, "Picture round", 75, []byte(`{"points": 3}`))

	record, err := repo.GetRound(context.Background(), id)
	testza.AssertNoError(t, err)
	testza.AssertEqual(t, "Picture round", record.Name)
	testza.AssertEqual(t, 75, record.DurationSec)
	testza.AssertEqual(t, "", record.Description)
	testza.AssertNotNil(t, record.Metadata)
	testza.AssertNil(t, record.LastCompletedAt)

	records, err := repo.ListRounds(context.Background())
	testza.AssertNoError(t, err)
	found := false
	for _, r := range records {
		if r.ID == id {
			found = true
		}
	}
	testza.AssertTrue(t, found)
}

func TestRecordResultStampsRoundAndRejectsDuplicates(t *testing.T) {
	db := openDB(t)
	repo := NewRepository(db)
	id := insertRound(t, db, "Final", 60, nil)

	completedAt := time.Now().UTC().Truncate(time.Second)
	result := rounds.Result{
		RoundID:     id,
		RoundName:   "Final",
		DurationSec: 60,
		Pauses:      2,
		StartedAt:   completedAt.Add(-70 * time.Second),
		CompletedAt: completedAt,
	}
	testza.AssertNoError(t, repo.RecordResult(context.Background(), result))

	record, err := repo.GetRound(context.Background(), id)
	testza.AssertNoError(t, err)
	testza.AssertNotNil(t, record.LastCompletedAt)
	testza.AssertTrue(t, record.LastCompletedAt.Equal(completedAt))

	err = repo.RecordResult(context.Background(), result)
	testza.AssertTrue(t, errors.Is(err, ErrDuplicateResult))
}
