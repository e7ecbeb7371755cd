// Command trainscope serves the interactive decision-boundary dashboards.
//
// Configuration comes from TRAINSCOPE_* environment variables; see
// internal/config.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/comalice/trainscope/internal/config"
	"github.com/comalice/trainscope/internal/server"
)

func main() {
	cfg, err := config.ParseEnv()
	if err != nil {
		slog.Error("configuration", "error", err)
		os.Exit(2)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("failed to serve", "error", err)
		os.Exit(1)
	}
}
