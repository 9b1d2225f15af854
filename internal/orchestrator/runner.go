package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/thebtf/orion/pkg/models"
)

// DefaultMaxConcurrentJobs bounds concurrently running jobs.
const DefaultMaxConcurrentJobs = 2

// JobCreator creates pending job records.
type JobCreator interface {
	CreateJob(ctx context.Context, projectID, jobType string) (*models.Job, error)
}

// Runner submits clustering jobs and runs each in its own goroutine.
// There is no cancellation API: a submitted job always runs to a terminal state.
type Runner struct {
	orch     *Orchestrator
	jobs     JobCreator
	notifier JobNotifier
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

// NewRunner creates a runner allowing maxConcurrent jobs at once.
func NewRunner(orch *Orchestrator, jobs JobCreator, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	return &Runner{
		orch:     orch,
		jobs:     jobs,
		notifier: orch.notifier,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Submit creates a pending job for projectID and starts it in the background.
// The returned job is the pending record; poll the store for progress.
func (r *Runner) Submit(ctx context.Context, projectID string, params Params) (*models.Job, error) {
	job, err := r.jobs.CreateJob(ctx, projectID, models.JobTypeClustering)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if r.notifier != nil {
		r.notifier.JobUpdated(job)
	}

	// The job outlives the request that submitted it.
	runCtx := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(runCtx, 1); err != nil {
			// Unreachable with a non-cancelable context.
			log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to acquire job slot")
			return
		}
		defer r.sem.Release(1)

		status := r.orch.ProcessProject(runCtx, job.ID, projectID, params)
		log.Debug().Str("job_id", job.ID).Str("status", string(status)).Msg("Clustering job finished")
	}()

	return job, nil
}

// Run executes a job synchronously on the calling goroutine.
func (r *Runner) Run(ctx context.Context, projectID string, params Params) (*models.Job, models.JobStatus, error) {
	job, err := r.jobs.CreateJob(ctx, projectID, models.JobTypeClustering)
	if err != nil {
		return nil, "", fmt.Errorf("create job: %w", err)
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		msg := fmt.Sprintf("acquire job slot: %v", err)
		if _, uerr := r.orch.store.UpdateJob(context.WithoutCancel(ctx), job.ID, models.Failed(msg, r.orch.now())); uerr != nil {
			log.Error().Err(uerr).Str("job_id", job.ID).Msg("Failed to record job failure")
		}
		return job, models.JobStatusFailed, fmt.Errorf("acquire job slot: %w", err)
	}
	defer r.sem.Release(1)
	return job, r.orch.ProcessProject(ctx, job.ID, projectID, params), nil
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
