package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mcdev12/quizclock/go/internal/dbconfig"
	"github.com/mcdev12/quizclock/go/internal/quiz/catalog"
	"github.com/rs/zerolog/log"
)

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	dbConfig := dbconfig.NewConfigFromEnv()

	database, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	dbConfig.ApplyPool(database)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("dsn", dbConfig.Redacted()).
		Int("max_open_conns", dbConfig.MaxOpenConns).
		Msg("connected to database")
	return database, nil
}

// startCatalogListener opens rounds added to the database after startup.
// Without a database it does nothing.
func startCatalogListener(ctx context.Context, services *Services) {
	if services.Repository == nil {
		return
	}

	cfg := catalog.DefaultListenerConfig()
	cfg.DatabaseURL = dbconfig.NewConfigFromEnv().DSN()

	listener, err := catalog.NewListener(services.Repository, services.Rounds, cfg, services.Clock)
	if err != nil {
		log.Warn().Err(err).Msg("catalogue listener unavailable, new rounds need a restart")
		return
	}

	go func() {
		if err := listener.Start(ctx); err != nil {
			log.Error().Err(err).Msg("catalogue listener stopped with error")
		}
	}()
}
