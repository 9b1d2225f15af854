// Package main provides the orion command line: the worker server and
// one-shot clustering, layout and graph export commands.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"github.com/thebtf/orion/internal/config"
	gormdb "github.com/thebtf/orion/internal/db/gorm"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	settingsPath string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:           "orion",
	Short:         "Clustering job orchestrator and layout engine for driving forces",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Settings file (default: ~/.orion/settings.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(exportGraphCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// setupLogging sends logs to stderr; stdout is reserved for command output.
func setupLogging(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
}

// loadConfig reads settings and applies the configured log level unless
// --debug already raised it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !debug && cfg.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		} else {
			log.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, keeping info")
		}
	}
	config.Set(cfg)
	return cfg, nil
}

// openStore opens the configured database and runs migrations.
func openStore(cfg *config.Config) (*gormdb.Store, error) {
	level := logger.Silent
	if debug {
		level = logger.Info
	}
	store, err := gormdb.NewStore(gormdb.Config{
		Driver:   cfg.DB.Driver,
		DSN:      cfg.DB.DSN,
		Path:     cfg.DB.Path,
		MaxConns: cfg.DB.MaxConns,
		LogLevel: level,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DB.Driver, err)
	}
	return store, nil
}
