package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/thebtf/orion/internal/cache"
	"github.com/thebtf/orion/internal/config"
	gormdb "github.com/thebtf/orion/internal/db/gorm"
	"github.com/thebtf/orion/internal/engine"
	"github.com/thebtf/orion/internal/graphsink"
	"github.com/thebtf/orion/internal/layout"
	"github.com/thebtf/orion/internal/orchestrator"
	"github.com/thebtf/orion/internal/visualize"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg    *config.Config
	store  *gormdb.Store
	repo   *gormdb.Repository
	orch   *orchestrator.Orchestrator
	runner *orchestrator.Runner
	views  *visualize.Service
	cache  cache.Cache
	sink   *graphsink.Sink // nil unless graph.addr is set
}

// newApp wires persistence, the engine client, the orchestrator and the
// view service from cfg. Extra options are passed to the orchestrator.
func newApp(cfg *config.Config, opts ...orchestrator.Option) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store, repo: gormdb.NewRepository(store)}

	eng, err := engine.NewHTTPEngine(engine.HTTPConfig{
		URL:               cfg.Engine.URL,
		Timeout:           cfg.Engine.Timeout,
		MaxTokensPerForce: cfg.Engine.MaxTokensPerForce,
		RequestsPerSecond: cfg.Engine.RequestsPerSecond,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create engine client: %w", err)
	}

	if cfg.Graph.Enabled() {
		a.sink = graphsink.New(cfg.Graph)
		opts = append(opts, orchestrator.WithCompletionHook(a.sink))
		log.Info().Str("addr", cfg.Graph.Addr).Str("graph", cfg.Graph.Graph).Msg("Graph export enabled")
	}

	a.orch = orchestrator.New(a.repo, eng, orchestrator.Config{
		PageSize:           cfg.Clustering.PageSize,
		LoadBudget:         cfg.Clustering.LoadBudget,
		TargetClusters:     cfg.Clustering.TargetClusters,
		MinCoveragePercent: cfg.Clustering.MinCoveragePercent,
		IncludeSignals:     cfg.Clustering.IncludeSignals,
	}, opts...)
	a.runner = orchestrator.NewRunner(a.orch, a.repo, cfg.Clustering.MaxConcurrentJobs)

	a.cache = cache.New(cfg.Cache)
	a.views = visualize.NewService(a.repo, layout.New(cfg.Layout), a.cache, cfg.Cache.TTL)
	return a, nil
}

// params builds run parameters, falling back to the configured algorithm.
func (a *app) params(algorithm, method string, maxIterations int) orchestrator.Params {
	if algorithm == "" {
		algorithm = a.cfg.Clustering.Algorithm
	}
	return orchestrator.Params{Algorithm: algorithm, Method: method, MaxIterations: maxIterations}
}

// Close releases every connection the app opened.
func (a *app) Close() error {
	var err error
	if a.sink != nil {
		err = multierr.Append(err, a.sink.Close())
	}
	err = multierr.Append(err, a.cache.Close())
	err = multierr.Append(err, a.store.Close())
	return err
}
