// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/hyggeo/campaign-service/internal/app"
	"github.com/hyggeo/campaign-service/internal/config"
	"github.com/hyggeo/campaign-service/internal/logger"
)

// The worker consumes queued campaign sends and starts scheduled campaigns
// when they fall due.
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
	log = log.With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, true)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	if err := a.StartConsumer(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to register consumer")
	}

	log.Info().Str("queue", cfg.Queue.Backend).Msg("worker running, waiting for messages")
	a.Scheduler.Run(ctx)
}
