// Package gorm provides GORM-based database operations for orion.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (driving forces, clusters)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				if err := tx.AutoMigrate(&DrivingForce{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Cluster{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("clusters", "driving_forces")
			},
		},

		// Migration 002: Clustering reports
		{
			ID: "002_clustering_reports",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ClusteringReport{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("clustering_reports")
			},
		},

		// Migration 003: Jobs
		{
			ID: "003_jobs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Job{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("jobs")
			},
		},

		// Migration 004: Lookup index for the verification re-read and layout queries
		{
			ID: "004_forces_project_id_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_forces_project_id ON driving_forces(project_id, id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_forces_project_id`).Error
			},
		},
	})

	return m.Migrate()
}
