package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"studyroom/backend/internal/config"
	"studyroom/backend/internal/db"
	"studyroom/backend/internal/logging"
)

func main() {
	status := flag.Bool("status", false, "list pending migrations without applying them")
	flag.Parse()

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	if *status {
		pending, err := db.PendingMigrations(context.Background(), database, cfg.MigrationsDir)
		if err != nil {
			log.Fatal().Err(err).Msg("list migrations")
		}
		log.Info().Strs("pending", pending).Int("count", len(pending)).Msg("migration status")
		return
	}

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}
	log.Info().Str("db", cfg.DBPath).Msg("migrations applied")
}
