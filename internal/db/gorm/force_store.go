// Package gorm provides GORM-based database operations for orion.
package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/orion/pkg/models"
)

// createBatchSize bounds the rows per INSERT statement.
const createBatchSize = 200

// ForceStore provides driving-force database operations using GORM.
type ForceStore struct {
	db *gorm.DB
}

// NewForceStore creates a new force store.
func NewForceStore(store *Store) *ForceStore {
	return &ForceStore{db: store.DB}
}

// CreateForces inserts forces in batches.
func (s *ForceStore) CreateForces(ctx context.Context, forces []*models.Force) error {
	if len(forces) == 0 {
		return nil
	}
	rows := make([]*DrivingForce, len(forces))
	for i, f := range forces {
		rows[i] = fromModelForce(f)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, createBatchSize).Error; err != nil {
		return fmt.Errorf("create forces: %w", classifyError(err))
	}
	return nil
}

// GetDrivingForce retrieves one force by id. Returns nil, nil when not found.
func (s *ForceStore) GetDrivingForce(ctx context.Context, id string) (*models.Force, error) {
	var row DrivingForce
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelForce(&row), nil
}

// GetDrivingForces retrieves the forces with the given ids, ordered by id.
// Unknown ids are silently skipped; callers compare lengths.
func (s *ForceStore) GetDrivingForces(ctx context.Context, ids []string) ([]*models.Force, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []DrivingForce
	// Chunk the IN list to stay under driver parameter limits.
	for start := 0; start < len(ids); start += models.DefaultPageSize {
		end := min(start+models.DefaultPageSize, len(ids))
		var chunk []DrivingForce
		err := s.db.WithContext(ctx).
			Where("id IN ?", ids[start:end]).
			Find(&chunk).Error
		if err != nil {
			return nil, err
		}
		rows = append(rows, chunk...)
	}
	return toModelForces(rows), nil
}

// ListForces returns every force of a project ordered by id.
func (s *ForceStore) ListForces(ctx context.Context, projectID string, curatedOnly bool) ([]*models.Force, error) {
	var rows []DrivingForce
	err := s.db.WithContext(ctx).
		Scopes(projectFilter(projectID), curatedFilter(!curatedOnly)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelForces(rows), nil
}

// GetDrivingForcesForClustering returns a pager over the project's forces.
func (s *ForceStore) GetDrivingForcesForClustering(ctx context.Context, projectID string, opts models.PageOptions) (models.ForcePager, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = models.DefaultPageSize
	}
	return &forcePager{db: s.db, projectID: projectID, opts: opts}, nil
}

// forcePager pages through forces ordered by id so page boundaries are stable.
type forcePager struct {
	db        *gorm.DB
	projectID string
	opts      models.PageOptions
}

func (p *forcePager) PageSize() int { return p.opts.PageSize }

func (p *forcePager) TotalCount(ctx context.Context) (int, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&DrivingForce{}).
		Scopes(projectFilter(p.projectID), curatedFilter(p.opts.IncludeSignals)).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (p *forcePager) GetPage(ctx context.Context, index int) ([]models.ForceRef, error) {
	if index < 0 {
		return nil, fmt.Errorf("negative page index %d", index)
	}
	var refs []models.ForceRef
	err := p.db.WithContext(ctx).
		Model(&DrivingForce{}).
		Select("id", "title").
		Scopes(projectFilter(p.projectID), curatedFilter(p.opts.IncludeSignals)).
		Order("id ASC").
		Offset(index * p.opts.PageSize).
		Limit(p.opts.PageSize).
		Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}
