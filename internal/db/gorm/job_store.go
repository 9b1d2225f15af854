// Package gorm provides GORM-based database operations for orion.
package gorm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/orion/pkg/models"
)

// JobStore provides job database operations using GORM.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new job store.
func NewJobStore(store *Store) *JobStore {
	return &JobStore{db: store.DB}
}

// CreateJob inserts a pending job for a project. An empty jobType defaults to clustering.
func (s *JobStore) CreateJob(ctx context.Context, projectID, jobType string) (*models.Job, error) {
	if jobType == "" {
		jobType = models.JobTypeClustering
	}
	row := &Job{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      jobType,
		Status:    models.JobStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", classifyError(err))
	}
	return toModelJob(row), nil
}

// GetJob retrieves a job by id. Returns nil, nil when not found.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var row Job
	err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelJob(&row), nil
}

// ListJobs returns the most recent jobs of a project, newest first.
func (s *JobStore) ListJobs(ctx context.Context, projectID string, limit int) ([]*models.Job, error) {
	var rows []Job
	query := s.db.WithContext(ctx).
		Scopes(projectFilter(projectID)).
		Order("created_at_epoch DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Job, len(rows))
	for i := range rows {
		out[i] = toModelJob(&rows[i])
	}
	return out, nil
}

// UpdateJob applies a partial update and returns the updated job.
// Terminal jobs are final: any patch against them fails with ErrInvalidTransition.
func (s *JobStore) UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) (*models.Job, error) {
	var updated *models.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Job
		err := tx.Where("id = ?", jobID).First(&row).Error
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		if err != nil {
			return err
		}

		current := toModelJob(&row)
		next := current.Status
		if patch.Status != nil {
			next = *patch.Status
		}
		if !models.CanTransition(current.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
		}

		job := patch.Apply(*current)
		updates := map[string]interface{}{
			"status":   job.Status,
			"progress": job.Progress,
			"error":    nullString(job.Error),
		}
		if patch.Meta != nil {
			updates["meta_json"] = job.Meta
		}
		if job.FinishedAt != nil {
			updates["finished_at"] = nullString(job.FinishedAt.Format(time.RFC3339))
			updates["finished_at_epoch"] = job.FinishedAt.UnixMilli()
		}
		if err := tx.Model(&Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
			return err
		}
		updated = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return updated, nil
}
