// Package gorm provides GORM-based database operations for orion.
package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/orion/pkg/models"
)

// ClusterStore provides cluster and clustering-report operations using GORM.
type ClusterStore struct {
	db *gorm.DB
}

// NewClusterStore creates a new cluster store.
func NewClusterStore(store *Store) *ClusterStore {
	return &ClusterStore{db: store.DB}
}

// DeleteClustersByProject removes every cluster of a project for one method.
// An empty method removes the clusters of all methods. Returns the number deleted.
func (s *ClusterStore) DeleteClustersByProject(ctx context.Context, projectID, method string) (int64, error) {
	result := s.db.WithContext(ctx).
		Scopes(projectFilter(projectID), methodFilter(method)).
		Delete(&Cluster{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete clusters: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CreateClusters inserts a batch of clusters in one statement set.
func (s *ClusterStore) CreateClusters(ctx context.Context, clusters []*models.Cluster) error {
	return createClusters(s.db.WithContext(ctx), clusters)
}

// ReplaceClusters deletes the clusters of projectID+method and inserts the new batch
// in one transaction, so readers never observe a partially written set.
func (s *ClusterStore) ReplaceClusters(ctx context.Context, projectID, method string, clusters []*models.Cluster) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(projectFilter(projectID), methodFilter(method)).Delete(&Cluster{}).Error; err != nil {
			return fmt.Errorf("delete clusters: %w", err)
		}
		return createClusters(tx, clusters)
	})
}

func createClusters(db *gorm.DB, clusters []*models.Cluster) error {
	if len(clusters) == 0 {
		return nil
	}
	rows := make([]Cluster, len(clusters))
	for i, c := range clusters {
		rows[i] = fromModelCluster(c)
	}
	if err := db.CreateInBatches(rows, createBatchSize).Error; err != nil {
		return fmt.Errorf("create clusters: %w", classifyError(err))
	}
	return nil
}

// GetClusters returns the clusters of a project ordered by id.
// An empty method returns clusters of every method.
func (s *ClusterStore) GetClusters(ctx context.Context, projectID, method string) ([]*models.Cluster, error) {
	var rows []Cluster
	err := s.db.WithContext(ctx).
		Scopes(projectFilter(projectID), methodFilter(method)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelClusters(rows), nil
}

// CreateClusteringReport appends a report row and sets its ID.
func (s *ClusterStore) CreateClusteringReport(ctx context.Context, report *models.ClusteringReport) error {
	row := &ClusteringReport{
		ProjectID:             report.ProjectID,
		JobID:                 report.JobID,
		Algorithm:             report.Algorithm,
		Params:                report.Params,
		ExecutionTimeMs:       report.ExecutionTimeMs,
		AverageSilhouette:     report.Quality.AverageSilhouette,
		DaviesBouldinIndex:    report.Quality.DaviesBouldinIndex,
		CalinskiHarabaszIndex: report.Quality.CalinskiHarabaszIndex,
		TotalInertia:          report.Quality.TotalInertia,
		ClusterCount:          report.ClusterCount,
		ForceCount:            report.ForceCount,
		RecommendedClusters:   report.RecommendedClusters,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create clustering report: %w", err)
	}
	report.ID = row.ID
	report.CreatedAt = fromEpoch(row.CreatedAtEpoch)
	return nil
}

// GetClusteringReports returns a project's reports, oldest first.
func (s *ClusterStore) GetClusteringReports(ctx context.Context, projectID string) ([]*models.ClusteringReport, error) {
	var rows []ClusteringReport
	err := s.db.WithContext(ctx).
		Scopes(projectFilter(projectID)).
		Order("created_at_epoch ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.ClusteringReport, len(rows))
	for i := range rows {
		out[i] = toModelReport(&rows[i])
	}
	return out, nil
}
