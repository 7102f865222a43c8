package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"orbnews/internal/config"
	"orbnews/internal/providers/registry"
	"orbnews/internal/reliability"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "orbnews",
	Short:         "Positive news story service for the orb game",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("orbnews %s (commit: %s, built: %s)", version, commit, date)
}

// loadConfig parses the environment and installs the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log.Level)
	return cfg, nil
}

func newRegistry(cfg *config.Config) *registry.Registry {
	return registry.FromConfig(cfg, &http.Client{Timeout: cfg.HTTP.ClientTimeout})
}

func newProber(cfg *config.Config, reg *registry.Registry) *reliability.Prober {
	return reliability.New(reliability.Config{
		Registry:  reg,
		Timeout:   cfg.Generation.Timeout,
		MaxTokens: cfg.Generation.ProbeMaxTokens,
		Logger:    log.Logger,
	})
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
