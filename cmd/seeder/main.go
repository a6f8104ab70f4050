// cmd/seeder/main.go
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/hyggeo/campaign-service/internal/app"
	"github.com/hyggeo/campaign-service/internal/config"
	"github.com/hyggeo/campaign-service/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal := zerolog.New(os.Stderr)
		fatal.Fatal().Err(err).Msg("failed to load config")
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fatal := zerolog.New(os.Stderr)
		fatal.Fatal().Err(err).Msg("failed to build logger")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, log, false)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate")
	}

	created, err := a.Templates.SeedSampleTemplates(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed templates")
	}

	issued, err := a.Subscriptions.EnsureUnsubscribeTokens(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to issue unsubscribe tokens")
	}

	log.Info().Int("created", created).Int("tokens_issued", issued).Msg("database seeding completed")
}
