// Package gorm provides GORM-based database operations for orion.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/orion/pkg/models"
)

// GORM Models

// Note: JSON column types (JSONStringArray, JSONFloatArray, JSONObject) come from
// pkg/models and already implement sql.Scanner and driver.Valuer.

// DrivingForce represents a stored driving force.
type DrivingForce struct {
	ID        string                `gorm:"primaryKey;type:varchar(64)"`
	ProjectID string                `gorm:"type:varchar(64);index:idx_forces_project_type,priority:1;not null"`
	Type      models.ForceType      `gorm:"type:varchar(16);index:idx_forces_project_type,priority:2;not null"`
	Steep     models.Steep          `gorm:"type:varchar(16)"`
	Title     string                `gorm:"type:text;not null"`
	Text      string                `gorm:"type:text"`
	Sentiment sql.NullString        `gorm:"type:varchar(32)"`
	Impact    float64               `gorm:"type:real;default:5"`
	Embedding models.JSONFloatArray `gorm:"type:text"` // JSON array

	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_forces_created,sort:desc;not null"`
}

func (DrivingForce) TableName() string { return "driving_forces" }

// BeforeCreate hook to ensure timestamps are set.
func (f *DrivingForce) BeforeCreate(tx *gorm.DB) error {
	if f.CreatedAtEpoch == 0 {
		f.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if f.CreatedAt == "" {
		f.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Cluster represents one persisted cluster of a clustering run.
type Cluster struct {
	ID        string                 `gorm:"primaryKey;type:varchar(64)"`
	ProjectID string                 `gorm:"type:varchar(64);index:idx_clusters_project_method,priority:1;not null"`
	Method    string                 `gorm:"type:varchar(64);index:idx_clusters_project_method,priority:2;not null"`
	Label     string                 `gorm:"type:text;not null"`
	Algorithm string                 `gorm:"type:varchar(64);not null"`
	ForceIDs  models.JSONStringArray `gorm:"column:force_ids;type:text;not null"` // JSON array
	Size      int                    `gorm:"not null"`
	Centroid  models.JSONFloatArray  `gorm:"type:text"`                           // JSON array
	Params    models.JSONObject      `gorm:"type:text"`                           // JSON object

	// Quality metrics
	Silhouette float64 `gorm:"type:real;default:0"`
	Cohesion   float64 `gorm:"type:real;default:0"`
	Separation float64 `gorm:"type:real;default:0"`
	Inertia    float64 `gorm:"type:real;default:0"`

	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"not null"`
}

func (Cluster) TableName() string { return "clusters" }

// BeforeCreate hook to ensure timestamps are set.
func (c *Cluster) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// ClusteringReport represents the append-only record of one clustering run.
type ClusteringReport struct {
	ID                    int64             `gorm:"primaryKey;autoIncrement"`
	ProjectID             string            `gorm:"type:varchar(64);index:idx_reports_project_created,priority:1;not null"`
	JobID                 string            `gorm:"type:varchar(64);index"`
	Algorithm             string            `gorm:"type:varchar(64);not null"`
	Params                models.JSONObject `gorm:"type:text"`
	ExecutionTimeMs       int64             `gorm:"default:0"`
	AverageSilhouette     float64           `gorm:"type:real;default:0"`
	DaviesBouldinIndex    float64           `gorm:"type:real;default:0"`
	CalinskiHarabaszIndex float64           `gorm:"type:real;default:0"`
	TotalInertia          float64           `gorm:"type:real;default:0"`
	ClusterCount          int               `gorm:"default:0"`
	ForceCount            int               `gorm:"default:0"`
	RecommendedClusters   int               `gorm:"default:0"`

	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_reports_project_created,priority:2,sort:desc;not null"`
}

func (ClusteringReport) TableName() string { return "clustering_reports" }

// BeforeCreate hook to ensure timestamps are set.
func (r *ClusteringReport) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Job represents the polling record of one orchestrator run.
type Job struct {
	ID              string            `gorm:"primaryKey;type:varchar(64)"`
	ProjectID       string            `gorm:"type:varchar(64);index:idx_jobs_project_created,priority:1;not null"`
	Type            string            `gorm:"type:varchar(32);not null"`
	Status          models.JobStatus  `gorm:"type:varchar(16);check:status IN ('pending', 'running', 'done', 'failed');default:'pending';index"`
	Progress        int               `gorm:"default:0"`
	Error           sql.NullString    `gorm:"type:text"`
	Meta            models.JSONObject `gorm:"column:meta_json;type:text"`
	CreatedAt       string            `gorm:"not null"`
	CreatedAtEpoch  int64             `gorm:"index:idx_jobs_project_created,priority:2,sort:desc;not null"`
	FinishedAt      sql.NullString
	FinishedAtEpoch sql.NullInt64
}

func (Job) TableName() string { return "jobs" }

// BeforeCreate hook to ensure timestamps are set.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.CreatedAtEpoch == 0 {
		j.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if j.CreatedAt == "" {
		j.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if j.Status == "" {
		j.Status = models.JobStatusPending
	}
	return nil
}
