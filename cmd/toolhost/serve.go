package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"toolhost/internal/channel"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP host (and Telegram when enabled)",
		Long:  "Serves POST /query, GET /health, GET /tools and GET /metrics. Press Ctrl+C to stop.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildContainer(ctx, false)
	if err != nil {
		return err
	}
	cfg := c.Config()
	logger := c.Logger()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown", "err", err)
		}
		logger.Info("shutdown complete")
	}()

	requestTimeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	channels := []channel.Channel{
		channel.NewHTTP(channel.HTTPConfig{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			CORSOrigins:    cfg.Server.CORSOrigins,
			RequestTimeout: requestTimeout,
			Handler:        c.Orchestrator(),
			Catalogue:      c.Registry(),
			Model:          c.Model,
			MetricsEnabled: cfg.Metrics.Enabled,
			Logger:         logger,
		}),
	}
	if cfg.Telegram.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:          cfg.Telegram.Token,
			AllowFrom:      cfg.Telegram.AllowFrom,
			RequestTimeout: requestTimeout,
			Handler:        c.Orchestrator(),
			Catalogue:      c.Registry(),
			Logger:         logger,
		}))
	}

	if err := c.WatchRules(ctx); err != nil {
		logger.Warn("rules watcher not started", "err", err)
	}

	logger.Info("toolhost started",
		"version", version,
		"providers", c.Registry().Names(),
		"planner", c.Model(),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range channels {
		g.Go(func() error {
			return ch.Start(gctx)
		})
	}
	return g.Wait()
}
