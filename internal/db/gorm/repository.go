// Package gorm provides GORM-based database operations for orion.
package gorm

// Repository bundles the per-table stores behind one value so callers can
// depend on a single persistence collaborator.
type Repository struct {
	*ForceStore
	*ClusterStore
	*JobStore
}

// NewRepository creates all stores over one connection.
func NewRepository(store *Store) *Repository {
	return &Repository{
		ForceStore:   NewForceStore(store),
		ClusterStore: NewClusterStore(store),
		JobStore:     NewJobStore(store),
	}
}
