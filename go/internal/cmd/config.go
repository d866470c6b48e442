package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mcdev12/quizclock/go/internal/config"
	"github.com/mcdev12/quizclock/go/internal/quiz/rounds"
	"github.com/rs/zerolog/log"
)

// loadRounds returns the rounds to open at startup: the database catalogue
// when one is configured, otherwise the quiz file.
func loadRounds(ctx context.Context, cfg *config.Config, services *Services) ([]rounds.Round, error) {
	if services.Repository != nil {
		records, err := services.Repository.ListRounds(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list rounds: %w", err)
		}
		if len(records) > 0 {
			list := make([]rounds.Round, 0, len(records))
			for _, record := range records {
				list = append(list, record.Round())
			}
			log.Info().Int("rounds", len(list)).Msg("loaded rounds from database")
			return list, nil
		}
		log.Warn().Msg("no rounds in database, falling back to quiz file")
	}

	quiz, err := config.LoadQuiz(cfg.QuizFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", cfg.QuizFile).Msg("quiz file not found, starting with no rounds")
			return nil, nil
		}
		return nil, err
	}

	list, err := quiz.RoundList()
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("path", cfg.QuizFile).
		Str("title", quiz.Title).
		Int("rounds", len(list)).
		Msg("loaded rounds from quiz file")
	return list, nil
}

func openRounds(ctx context.Context, cfg *config.Config, services *Services) error {
	list, err := loadRounds(ctx, cfg, services)
	if err != nil {
		return err
	}
	for _, round := range list {
		if err := services.Rounds.Open(round); err != nil {
			return err
		}
	}
	return nil
}
