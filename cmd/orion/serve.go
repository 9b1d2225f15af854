package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/orion/internal/config"
	"github.com/thebtf/orion/internal/orchestrator"
	"github.com/thebtf/orion/internal/watcher"
	"github.com/thebtf/orion/internal/worker"
	"github.com/thebtf/orion/internal/worker/sse"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker: clustering jobs, layout views and job events over HTTP and gRPC health",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: worker_host:worker_port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	path := settingsPath
	if path == "" {
		path = config.SettingsPath()
	}
	if err := config.EnsureSettings(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write default settings")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broadcaster := sse.NewBroadcaster()
	a, err := newApp(cfg, orchestrator.WithNotifier(broadcaster))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close connections")
		}
	}()

	svc := worker.NewService(Version, cfg, worker.Deps{
		Jobs:        a.repo,
		Runner:      a.runner,
		Views:       a.views,
		Broadcaster: broadcaster,
		DB:          a.store,
	})
	srv := worker.NewServer(svc)

	if w := startConfigWatcher(path, stop); w != nil {
		defer w.Stop()
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Addr()
	}
	srv.SetReady(true)
	log.Info().Str("version", Version).Str("addr", addr).Str("db", cfg.DB.Driver).Msg("Starting orion worker")

	serveErr := srv.ListenAndServe(ctx, addr)

	log.Info().Msg("Waiting for running jobs to finish")
	a.runner.Wait()
	return serveErr
}

// startConfigWatcher stops the server when the settings file changes so a
// supervisor can restart it with the new configuration.
func startConfigWatcher(path string, stop context.CancelFunc) *watcher.Watcher {
	w, err := watcher.New(path, func() {
		log.Warn().Str("path", path).Msg("Config file changed, shutting down for restart")
		stop()
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher")
		return nil
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
		_ = w.Stop()
		return nil
	}
	log.Info().Str("path", path).Msg("Config file watcher started")
	return w
}
