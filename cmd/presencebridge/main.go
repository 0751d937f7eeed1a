// Package main runs the presence bridge daemon: it accepts media player
// events over HTTP and mirrors playback into a presence gateway session.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"presencebridge/internal/config"
	"presencebridge/internal/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv("PRESENCE_CONFIG"), "path to configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("presence bridge failed", zap.Error(err))
	}
}
