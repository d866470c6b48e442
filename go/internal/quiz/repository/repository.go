package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/mcdev12/quizclock/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// Schema creates the quiz tables. Statements are idempotent.
//
//go:embed schema.sql
var Schema string

// RoundsChangedChannel is the NOTIFY channel carrying the ID of a changed
// quiz_rounds row.
const RoundsChangedChannel = "quiz_rounds_changed"

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var ErrDuplicateResult = errors.New("round result already recorded")

// RoundRecord is a row of the quiz_rounds table
type RoundRecord struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	DurationSec     int             `json:"duration_sec"`
	Position        int             `json:"position"`
	Description     string          `json:"description"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	LastCompletedAt *time.Time      `json:"last_completed_at,omitempty"`
}

// Round converts the record into the manager's round type.
func (r RoundRecord) Round() rounds.Round {
	return rounds.Round{
		ID:          r.ID,
		Name:        r.Name,
		DurationSec: r.DurationSec,
	}
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

const listRounds = `
SELECT id, name, duration_sec, position, description, metadata, last_completed_at
FROM quiz_rounds
ORDER BY position, name`

func (r *Repository) ListRounds(ctx context.Context) ([]RoundRecord, error) {
	rows, err := r.db.QueryContext(ctx, listRounds)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var records []RoundRecord
	for rows.Next() {
		record, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}
	return records, nil
}

const getRound = `
SELECT id, name, duration_sec, position, description, metadata, last_completed_at
FROM quiz_rounds
WHERE id = $1`

func (r *Repository) GetRound(ctx context.Context, id uuid.UUID) (*RoundRecord, error) {
	record, err := scanRound(r.db.QueryRowContext(ctx, getRound, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", rounds.ErrRoundNotFound, id)
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return &record, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRound(row scanner) (RoundRecord, error) {
	var (
		record      RoundRecord
		description sql.NullString
		metadata    pqtype.NullRawMessage
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&record.ID,
		&record.Name,
		&record.DurationSec,
		&record.Position,
		&description,
		&metadata,
		&completedAt,
	); err != nil {
		return RoundRecord{}, err
	}

	record.Description = sqlutil.FromSqlString(description, "")
	record.Metadata = sqlutil.FromRawMessage(metadata)
	record.LastCompletedAt = sqlutil.FromSqlTime(completedAt)
	return record, nil
}

const insertResult = `
INSERT INTO quiz_round_results (id, round_id, duration_sec, pauses, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6)`

const touchRound = `
UPDATE quiz_rounds SET last_completed_at = $2 WHERE id = $1`

// RecordResult stores a completed round and stamps the round row, in one
// transaction.
func (r *Repository) RecordResult(ctx context.Context, result rounds.Result) error {
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertResult,
			uuid.New(),
			result.RoundID,
			result.DurationSec,
			result.Pauses,
			sqlutil.ToSqlTime(result.StartedAt),
			result.CompletedAt,
		); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, touchRound, result.RoundID, result.CompletedAt)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			log.Warn().
				Str("round_id", result.RoundID.String()).
				Msg("result recorded for a round missing from the catalogue")
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s at %s", ErrDuplicateResult, result.RoundID, result.CompletedAt.Format(time.RFC3339))
		}
		return fmt.Errorf("failed to record round result: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
