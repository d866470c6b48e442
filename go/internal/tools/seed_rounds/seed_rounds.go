package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/quizclock/go/internal/config"
	"github.com/mcdev12/quizclock/go/internal/dbconfig"
	"github.com/mcdev12/quizclock/go/internal/quiz/repository"
)

// Seeds quiz_rounds from a quiz YAML file. Rounds are upserted by ID so the
// tool can be re-run after editing names or durations.
func main() {
	ctx := context.Background()

	appConfig, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	path := appConfig.QuizFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the quiz file
	quiz, err := config.LoadQuiz(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", path, err)
		os.Exit(1)
	}

	// 2) Connect to DB
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Make sure the tables exist
	if err := applySchema(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 4) Seed rounds
	total, inserted, updated, errs := len(quiz.Rounds), 0, 0, 0
	for position, def := range quiz.Rounds {
		id, wasInsert, err := seedRound(ctx, pool, def, position)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			errs++
			continue
		}
		if wasInsert {
			inserted++
		} else {
			updated++
		}

		// running servers pick the round up without a restart
		if _, err := pool.Exec(ctx, `SELECT pg_notify($1, $2)`, repository.RoundsChangedChannel, id.String()); err != nil {
			fmt.Fprintf(os.Stderr, "notify %q: %v\n", def.Name, err)
		}
	}

	fmt.Printf(
		"Rounds seed: total=%d inserted=%d updated=%d errors=%d\n",
		total, inserted, updated, errs,
	)
	if errs > 0 {
		os.Exit(1)
	}
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range strings.Split(repository.Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const upsertRound = `
INSERT INTO quiz_rounds (id, name, duration_sec, position, description, metadata)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  duration_sec = EXCLUDED.duration_sec,
  position = EXCLUDED.position,
  description = EXCLUDED.description,
  metadata = EXCLUDED.metadata
RETURNING (xmax = 0)`

// seedRound upserts one round and reports whether the row was new.
func seedRound(ctx context.Context, pool *pgxpool.Pool, def config.RoundDef, position int) (uuid.UUID, bool, error) {
	id, err := def.RoundID()
	if err != nil {
		return uuid.Nil, false, err
	}

	var metadata []byte
	if len(def.Metadata) > 0 {
		if metadata, err = json.Marshal(def.Metadata); err != nil {
			return id, false, fmt.Errorf("round %q metadata: %w", def.Name, err)
		}
	}

	var description *string
	if def.Description != "" {
		description = &def.Description
	}

	var wasInsert bool
	err = pool.QueryRow(ctx, upsertRound,
		id, def.Name, def.DurationSec, position, description, metadata,
	).Scan(&wasInsert)
	if err != nil {
		return id, false, fmt.Errorf("round %q: %w", def.Name, err)
	}
	return id, wasInsert, nil
}
