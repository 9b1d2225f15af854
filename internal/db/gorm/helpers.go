// Package gorm provides GORM-based database operations for orion.
package gorm

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/thebtf/orion/pkg/models"
)

var (
	// ErrDuplicate is returned when an insert collides with an existing primary or unique key.
	ErrDuplicate = errors.New("duplicate key")
	// ErrJobNotFound is returned when a job update targets an unknown job.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a job patch breaks the status state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// classifyError maps driver-specific constraint errors onto package sentinels.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// projectFilter restricts a query to one project.
func projectFilter(projectID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("project_id = ?", projectID)
	}
}

// curatedFilter excludes raw signals unless includeSignals is set.
func curatedFilter(includeSignals bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if includeSignals {
			return db
		}
		return db.Where("type <> ?", models.ForceTypeSignal)
	}
}

// methodFilter restricts clusters to one method; empty means all methods.
func methodFilter(method string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if method == "" {
			return db
		}
		return db.Where("method = ?", method)
	}
}

// nullString creates a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromEpoch(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toModelForce(f *DrivingForce) *models.Force {
	return &models.Force{
		ID:        f.ID,
		ProjectID: f.ProjectID,
		Title:     f.Title,
		Text:      f.Text,
		Type:      f.Type,
		Steep:     f.Steep,
		Sentiment: f.Sentiment.String,
		Impact:    f.Impact,
		Embedding: []float64(f.Embedding),
		CreatedAt: fromEpoch(f.CreatedAtEpoch),
	}
}

func toModelForces(rows []DrivingForce) []*models.Force {
	out := make([]*models.Force, len(rows))
	for i := range rows {
		out[i] = toModelForce(&rows[i])
	}
	return out
}

func fromModelForce(f *models.Force) *DrivingForce {
	row := &DrivingForce{
		ID:        f.ID,
		ProjectID: f.ProjectID,
		Type:      f.Type,
		Steep:     f.Steep,
		Title:     f.Title,
		Text:      f.Text,
		Sentiment: nullString(f.Sentiment),
		Impact:    models.ClampImpact(f.Impact),
		Embedding: models.JSONFloatArray(f.Embedding),
	}
	if !f.CreatedAt.IsZero() {
		row.CreatedAt = f.CreatedAt.Format(time.RFC3339)
		row.CreatedAtEpoch = f.CreatedAt.UnixMilli()
	}
	return row
}

func toModelCluster(c *Cluster) *models.Cluster {
	return &models.Cluster{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		Label:     c.Label,
		Method:    c.Method,
		Algorithm: c.Algorithm,
		ForceIDs:  c.ForceIDs,
		Size:      c.Size,
		Centroid:  c.Centroid,
		Params:    c.Params,
		Quality: models.ClusterQuality{
			Silhouette: c.Silhouette,
			Cohesion:   c.Cohesion,
			Separation: c.Separation,
			Inertia:    c.Inertia,
		},
		CreatedAt: fromEpoch(c.CreatedAtEpoch),
	}
}

func toModelClusters(rows []Cluster) []*models.Cluster {
	out := make([]*models.Cluster, len(rows))
	for i := range rows {
		out[i] = toModelCluster(&rows[i])
	}
	return out
}

func fromModelCluster(c *models.Cluster) Cluster {
	row := Cluster{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		Method:     c.Method,
		Label:      c.Label,
		Algorithm:  c.Algorithm,
		ForceIDs:   c.ForceIDs,
		Size:       c.Size,
		Centroid:   c.Centroid,
		Params:     c.Params,
		Silhouette: c.Quality.Silhouette,
		Cohesion:   c.Quality.Cohesion,
		Separation: c.Quality.Separation,
		Inertia:    c.Quality.Inertia,
	}
	if !c.CreatedAt.IsZero() {
		row.CreatedAt = c.CreatedAt.Format(time.RFC3339)
		row.CreatedAtEpoch = c.CreatedAt.UnixMilli()
	}
	return row
}

func toModelReport(r *ClusteringReport) *models.ClusteringReport {
	return &models.ClusteringReport{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		JobID:           r.JobID,
		Algorithm:       r.Algorithm,
		Params:          r.Params,
		ExecutionTimeMs: r.ExecutionTimeMs,
		Quality: models.ClusteringQuality{
			AverageSilhouette:     r.AverageSilhouette,
			DaviesBouldinIndex:    r.DaviesBouldinIndex,
			CalinskiHarabaszIndex: r.CalinskiHarabaszIndex,
			TotalInertia:          r.TotalInertia,
		},
		ClusterCount:        r.ClusterCount,
		ForceCount:          r.ForceCount,
		RecommendedClusters: r.RecommendedClusters,
		CreatedAt:           fromEpoch(r.CreatedAtEpoch),
	}
}

func toModelJob(j *Job) *models.Job {
	job := &models.Job{
		ID:        j.ID,
		ProjectID: j.ProjectID,
		Type:      j.Type,
		Status:    j.Status,
		Progress:  j.Progress,
		Error:     j.Error.String,
		Meta:      j.Meta,
		CreatedAt: fromEpoch(j.CreatedAtEpoch),
	}
	if j.FinishedAtEpoch.Valid {
		t := fromEpoch(j.FinishedAtEpoch.Int64)
		job.FinishedAt = &t
	}
	return job
}

// ParseLimitParam parses the "limit" query parameter from an HTTP request.
// Returns defaultLimit if the parameter is missing or invalid.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultLimit
}
