package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"toolhost/internal/app"
	"toolhost/internal/config"
)

var (
	version    = "0.1.0"
	configPath string // --config
	logLevel   string // --log-level
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolhost",
		Short:         "toolhost: route natural-language requests to tool providers",
		Long:          "toolhost selects one tool per request (planner first, keyword heuristics as fallback), runs it through a validating bridge and summarizes the result.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.toolhost/config.json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.logLevel (debug, info, warn, error)")

	root.AddCommand(
		serveCmd(),
		queryCmd(),
		chatCmd(),
		toolsCmd(),
		auditCmd(),
		initCmd(),
		statusCmd(),
		configCmd(),
	)

	return root
}

// resolveConfigPath returns the config path from --config or the default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file. A missing file yields defaults so the
// host runs out of the box; any other problem is an error.
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = config.Defaults()
	config.Finalize(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the command logger. One-shot commands stay quiet at
// warn unless --log-level says otherwise.
func newLogger(cfg *config.Config, quiet bool) *slog.Logger {
	level := cfg.General.LogLevel
	if quiet {
		level = "warn"
	}
	if logLevel != "" {
		level = logLevel
	}
	return app.NewLogger(level, os.Stderr)
}

// buildContainer loads config and wires services. The caller closes it.
func buildContainer(ctx context.Context, quiet bool) (*app.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, quiet)
	slog.SetDefault(logger)
	return app.New(ctx, cfg, logger, app.Options{})
}
