// Package orchestrator runs clustering jobs: paged force loading, the engine
// call, validation, full-replace persistence, verification and job updates.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/orion/internal/engine"
	"github.com/thebtf/orion/pkg/models"
)

// Defaults for Config and Params.
const (
	DefaultLoadBudget        = 25 * time.Second
	DefaultProgressLoadStart = 10
	DefaultProgressLoadEnd   = 25
	DefaultTargetClusters    = 37
	DefaultAlgorithm         = "louvain"
	DefaultMaxIterations     = 100
)

// Progress checkpoints after the load phase.
const (
	progressRefetched = 30
	progressClustered = 40
	progressValidated = 70
	progressPersisted = 80
	progressVerified  = 90
)

// Store is the persistence the orchestrator needs.
type Store interface {
	GetDrivingForcesForClustering(ctx context.Context, projectID string, opts models.PageOptions) (models.ForcePager, error)
	GetDrivingForces(ctx context.Context, ids []string) ([]*models.Force, error)
	ReplaceClusters(ctx context.Context, projectID, method string, clusters []*models.Cluster) error
	GetClusters(ctx context.Context, projectID, method string) ([]*models.Cluster, error)
	CreateClusteringReport(ctx context.Context, report *models.ClusteringReport) error
	UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) (*models.Job, error)
}

// JobNotifier receives every job state written by the orchestrator.
type JobNotifier interface {
	JobUpdated(job *models.Job)
}

// CompletionHook is invoked with the persisted clusters after a job is done.
// method is the replacement scope of the run. Hook errors and panics are
// logged and never fail the job.
type CompletionHook interface {
	ClusteringCompleted(ctx context.Context, projectID, method string, clusters []*models.Cluster) error
}

// HookFunc adapts a function to CompletionHook.
type HookFunc func(ctx context.Context, projectID, method string, clusters []*models.Cluster) error

// ClusteringCompleted calls f.
func (f HookFunc) ClusteringCompleted(ctx context.Context, projectID, method string, clusters []*models.Cluster) error {
	return f(ctx, projectID, method, clusters)
}

// Config holds the pipeline tunables.
type Config struct {
	PageSize           int
	LoadBudget         time.Duration
	ProgressLoadStart  int
	ProgressLoadEnd    int
	TargetClusters     int
	MinCoveragePercent float64
	IncludeSignals     bool
}

// DefaultConfig returns the standard pipeline configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:          models.DefaultPageSize,
		LoadBudget:        DefaultLoadBudget,
		ProgressLoadStart: DefaultProgressLoadStart,
		ProgressLoadEnd:   DefaultProgressLoadEnd,
		TargetClusters:    DefaultTargetClusters,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.LoadBudget <= 0 {
		c.LoadBudget = d.LoadBudget
	}
	if c.ProgressLoadStart <= 0 && c.ProgressLoadEnd <= 0 {
		c.ProgressLoadStart, c.ProgressLoadEnd = d.ProgressLoadStart, d.ProgressLoadEnd
	}
	if c.ProgressLoadEnd < c.ProgressLoadStart {
		c.ProgressLoadEnd = c.ProgressLoadStart
	}
	if c.TargetClusters <= 0 {
		c.TargetClusters = d.TargetClusters
	}
	return c
}

// Params are the caller-supplied parameters of one run.
type Params struct {
	// Algorithm requested from the engine. Defaults to DefaultAlgorithm.
	Algorithm string `json:"algorithm,omitempty"`
	// Method scopes cluster replacement. Defaults to Algorithm.
	Method        string `json:"method,omitempty"`
	MaxIterations int    `json:"maxIterations,omitempty"`
}

func (p Params) withDefaults() Params {
	if p.Algorithm == "" {
		p.Algorithm = DefaultAlgorithm
	}
	if p.Method == "" {
		p.Method = p.Algorithm
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	return p
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier publishes job updates to n.
func WithNotifier(n JobNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithCompletionHook registers a hook run after successful jobs.
func WithCompletionHook(h CompletionHook) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, h) }
}

// WithClock replaces the wall clock used for the load budget and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithYield replaces the cooperative yield performed between pages.
func WithYield(yield func()) Option {
	return func(o *Orchestrator) { o.yield = yield }
}

// Orchestrator executes clustering jobs to a terminal state.
type Orchestrator struct {
	store    Store
	engine   engine.Engine
	notifier JobNotifier
	now      func() time.Time
	yield    func()
	hooks    []CompletionHook
	cfg      Config
}

// New creates an orchestrator over the given store and engine.
func New(store Store, eng engine.Engine, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		engine: eng,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		yield:  runtime.Gosched,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// run carries the per-job state through the pipeline stages.
type run struct {
	started  time.Time
	logger   zerolog.Logger
	jobID    string
	project  string
	params   Params
	ids      []string
	pages    int
	forces   []*models.Force
	result   *engine.Result
	clusters []*models.Cluster
	coverage float64
	progress int
}

// ProcessProject runs one clustering job and returns its terminal status.
// It never returns with the job left running: every error and panic is turned
// into a single failed update.
func (o *Orchestrator) ProcessProject(ctx context.Context, jobID, projectID string, params Params) (status models.JobStatus) {
	r := &run{
		started: o.now(),
		jobID:   jobID,
		project: projectID,
		params:  params.withDefaults(),
		logger: log.With().
			Str("job_id", jobID).
			Str("project_id", projectID).
			Logger(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			status = o.fail(ctx, r, errors.Newf("internal panic: %v", rec))
		}
	}()

	r.logger.Info().
		Str("algorithm", r.params.Algorithm).
		Str("method", r.params.Method).
		Int("max_iterations", r.params.MaxIterations).
		Msg("Clustering job started")

	if err := o.execute(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}
	return models.JobStatusDone
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	if err := o.update(ctx, r, models.Running(o.cfg.ProgressLoadStart)); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{"load", o.load},
		{"refetch", o.refetch},
		{"cluster", o.cluster},
		{"validate", o.validate},
		{"persist", o.persist},
		{"verify", o.verify},
		{"complete", o.complete},
	}
	for _, step := range steps {
		if err := step.fn(ctx, r); err != nil {
			r.logger.Debug().Str("stage", step.name).Err(err).Msg("Clustering stage failed")
			return err
		}
	}
	return nil
}

// load walks the pager under the wall-clock budget. The budget is checked at
// each iteration boundary; an in-flight page fetch always completes.
func (o *Orchestrator) load(ctx context.Context, r *run) error {
	pager, err := o.store.GetDrivingForcesForClustering(ctx, r.project, models.PageOptions{
		PageSize:       o.cfg.PageSize,
		IncludeSignals: o.cfg.IncludeSignals,
	})
	if err != nil {
		return persistenceError(err, "open force pager")
	}
	total, err := pager.TotalCount(ctx)
	if err != nil {
		return persistenceError(err, "count forces")
	}
	if total == 0 {
		return inputErrorf("No driving forces found for project %s", r.project)
	}

	pageSize := pager.PageSize()
	if pageSize <= 0 {
		pageSize = o.cfg.PageSize
	}
	pages := (total + pageSize - 1) / pageSize
	seen := make(map[string]bool, total)
	r.ids = make([]string, 0, total)

	loadStart := o.now()
	for i := 0; i < pages; i++ {
		if elapsed := o.now().Sub(loadStart); elapsed > o.cfg.LoadBudget {
			return timeoutErrorf("loading forces exceeded %s at page %d of %d (%d forces loaded)",
				o.cfg.LoadBudget, i, pages, len(r.ids))
		}

		page, err := pager.GetPage(ctx, i)
		if err != nil {
			return persistenceError(err, "load page %d", i)
		}
		for _, ref := range page {
			if !seen[ref.ID] {
				seen[ref.ID] = true
				r.ids = append(r.ids, ref.ID)
			}
		}
		r.pages = i + 1

		span := o.cfg.ProgressLoadEnd - o.cfg.ProgressLoadStart
		if err := o.setProgress(ctx, r, o.cfg.ProgressLoadStart+span*(i+1)/pages); err != nil {
			return err
		}

		r.logger.Debug().Int("page", i).Int("loaded", len(r.ids)).Int("total", total).Msg("Loaded force page")

		if len(page) < pageSize {
			break
		}
		if i+1 < pages {
			o.yield()
		}
	}

	if len(r.ids) == 0 {
		return inputErrorf("No driving forces found for project %s", r.project)
	}
	recordForcesLoaded(ctx, len(r.ids))
	return nil
}

// refetch loads full records for every paged id.
func (o *Orchestrator) refetch(ctx context.Context, r *run) error {
	forces, err := o.store.GetDrivingForces(ctx, r.ids)
	if err != nil {
		return persistenceError(err, "refetch forces")
	}
	index := models.ForceIndex(forces)
	r.forces = make([]*models.Force, 0, len(r.ids))
	for _, id := range r.ids {
		f, ok := index[id]
		if !ok {
			return inputErrorf("driving force %s disappeared during load", id)
		}
		r.forces = append(r.forces, f)
	}
	return o.setProgress(ctx, r, progressRefetched)
}

// cluster calls the engine. Engine panics are contained here so they are
// classified as upstream failures.
func (o *Orchestrator) cluster(ctx context.Context, r *run) (err error) {
	inputs := make([]engine.ForceInput, len(r.forces))
	for i, f := range r.forces {
		inputs[i] = engine.ForceInput{ID: f.ID, Title: f.Title, Text: f.Text, Embedding: f.Embedding}
	}
	params := engine.Params{
		Algorithm:     r.params.Algorithm,
		NumClusters:   o.cfg.TargetClusters,
		MaxIterations: r.params.MaxIterations,
	}

	if err := o.setProgress(ctx, r, progressClustered); err != nil {
		return err
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = upstreamError(fmt.Errorf("panic: %v", rec), "clustering engine")
		}
	}()

	result, err := o.engine.Cluster(ctx, inputs, params, r.jobID)
	if err != nil {
		return upstreamError(err, "clustering engine")
	}
	if result == nil {
		return upstreamError(errors.New("empty response"), "clustering engine")
	}
	r.result = result
	return nil
}

func (o *Orchestrator) validate(ctx context.Context, r *run) error {
	known := make(map[string]bool, len(r.forces))
	for _, f := range r.forces {
		known[f.ID] = true
	}
	if err := validateResult(r.result, known); err != nil {
		return err
	}

	r.coverage = coveragePercent(r.result, len(r.forces))
	if o.cfg.MinCoveragePercent > 0 && r.coverage < o.cfg.MinCoveragePercent {
		return validationError(fmt.Errorf("coverage %.2f%% is below the required %.2f%%",
			r.coverage, o.cfg.MinCoveragePercent))
	}

	now := o.now()
	r.clusters = make([]*models.Cluster, len(r.result.Clusters))
	for i, c := range r.result.Clusters {
		r.clusters[i] = &models.Cluster{
			ID:        uuid.NewString(),
			ProjectID: r.project,
			Method:    r.params.Method,
			Label:     c.Label,
			Algorithm: c.Algorithm,
			ForceIDs:  models.JSONStringArray(c.ForceIDs),
			Size:      c.Size,
			Centroid:  models.JSONFloatArray(c.Centroid),
			Params:    models.JSONObject(c.Params),
			Quality: models.ClusterQuality{
				Silhouette: c.Quality.SilhouetteScore,
				Cohesion:   c.Quality.Cohesion,
				Separation: c.Quality.Separation,
				Inertia:    c.Quality.Inertia,
			},
			CreatedAt: now,
		}
	}
	return o.setProgress(ctx, r, progressValidated)
}

// persist fully replaces the project+method cluster set.
func (o *Orchestrator) persist(ctx context.Context, r *run) error {
	if err := o.store.ReplaceClusters(ctx, r.project, r.params.Method, r.clusters); err != nil {
		return persistenceError(err, "replace clusters")
	}
	return o.setProgress(ctx, r, progressPersisted)
}

// verify re-reads the persisted set and checks it against what was written.
func (o *Orchestrator) verify(ctx context.Context, r *run) error {
	stored, err := o.store.GetClusters(ctx, r.project, r.params.Method)
	if err != nil {
		return persistenceError(err, "re-read clusters")
	}
	if len(stored) != len(r.clusters) {
		return persistenceErrorf("verification failed: wrote %d clusters, found %d", len(r.clusters), len(stored))
	}
	byID := make(map[string]*models.Cluster, len(stored))
	for _, c := range stored {
		byID[c.ID] = c
	}
	for i, c := range r.clusters {
		got, ok := byID[c.ID]
		if !ok {
			return persistenceErrorf("verification failed: cluster %d (%s) missing after write", i, c.ID)
		}
		if missing := got.MissingFields(); len(missing) > 0 {
			return persistenceErrorf("verification failed: cluster %d (%s) missing fields %v", i, c.ID, missing)
		}
	}
	return o.setProgress(ctx, r, progressVerified)
}

// complete writes the report, marks the job done and runs completion hooks.
func (o *Orchestrator) complete(ctx context.Context, r *run) error {
	elapsed := o.now().Sub(r.started)
	execMs := int64(r.result.ExecutionTime)
	if execMs <= 0 {
		execMs = elapsed.Milliseconds()
	}

	reportParams := models.JSONObject{
		"algorithm":     r.params.Algorithm,
		"method":        r.params.Method,
		"numClusters":   o.cfg.TargetClusters,
		"maxIterations": r.params.MaxIterations,
	}
	for k, v := range r.result.Params {
		if _, ok := reportParams[k]; !ok {
			reportParams[k] = v
		}
	}

	algorithm := r.result.Algorithm
	if algorithm == "" {
		algorithm = r.params.Algorithm
	}
	report := &models.ClusteringReport{
		ProjectID:       r.project,
		JobID:           r.jobID,
		Algorithm:       algorithm,
		Params:          reportParams,
		ExecutionTimeMs: execMs,
		Quality: models.ClusteringQuality{
			AverageSilhouette:     r.result.OverallQuality.AverageSilhouette,
			DaviesBouldinIndex:    r.result.OverallQuality.DaviesBouldinIndex,
			CalinskiHarabaszIndex: r.result.OverallQuality.CalinskiHarabaszIndex,
			TotalInertia:          r.result.OverallQuality.TotalInertia,
		},
		ClusterCount:        len(r.clusters),
		ForceCount:          len(r.forces),
		RecommendedClusters: r.result.RecommendedClusters,
	}
	if err := o.store.CreateClusteringReport(ctx, report); err != nil {
		return persistenceError(err, "create clustering report")
	}

	meta := models.JSONObject{
		"clusters":          len(r.clusters),
		"forces":            len(r.forces),
		"pages":             r.pages,
		"algorithm":         algorithm,
		"method":            r.params.Method,
		"executionTimeMs":   execMs,
		"averageSilhouette": r.result.OverallQuality.AverageSilhouette,
		"coveragePercent":   r.coverage,
		"reportId":          report.ID,
	}
	if err := o.update(ctx, r, models.Done(meta, o.now())); err != nil {
		return err
	}

	recordJob(ctx, models.JobStatusDone, "", elapsed)
	r.logger.Info().
		Int("clusters", len(r.clusters)).
		Int("forces", len(r.forces)).
		Int("pages", r.pages).
		Float64("coverage", r.coverage).
		Dur("elapsed", elapsed).
		Msg("Clustering job done")

	for _, h := range o.hooks {
		if err := runHook(ctx, h, r); err != nil {
			r.logger.Warn().Err(err).Msg("Completion hook failed")
		}
	}
	return nil
}

// runHook calls h, turning a panic into an error. The job is already done
// when hooks run, so nothing a hook does may reach the job's failure path.
func runHook(ctx context.Context, h CompletionHook, r *run) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf("completion hook panic: %v", rec)
		}
	}()
	return h.ClusteringCompleted(ctx, r.project, r.params.Method, r.clusters)
}

// fail writes the single terminal failure. The write uses a context detached
// from cancellation so a canceled caller still leaves a terminal job.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) models.JobStatus {
	kind := ErrorKind(err)
	elapsed := o.now().Sub(r.started)

	r.logger.Error().
		Err(err).
		Str("error_kind", kind).
		Dur("elapsed", elapsed).
		Msg("Clustering job failed")

	writeCtx := context.WithoutCancel(ctx)
	if uerr := o.update(writeCtx, r, models.Failed(err.Error(), o.now())); uerr != nil {
		r.logger.Error().Err(uerr).Msg("Failed to record job failure")
	}
	recordJob(writeCtx, models.JobStatusFailed, kind, elapsed)
	return models.JobStatusFailed
}

func (o *Orchestrator) setProgress(ctx context.Context, r *run, progress int) error {
	if progress <= r.progress {
		return nil
	}
	return o.update(ctx, r, models.ProgressTo(progress))
}

func (o *Orchestrator) update(ctx context.Context, r *run, patch models.JobPatch) error {
	job, err := o.store.UpdateJob(ctx, r.jobID, patch)
	if err != nil {
		return persistenceError(err, "update job %s", r.jobID)
	}
	if patch.Progress != nil {
		r.progress = models.ClampProgress(*patch.Progress)
	}
	if o.notifier != nil && job != nil {
		o.notifier.JobUpdated(job)
	}
	return nil
}
