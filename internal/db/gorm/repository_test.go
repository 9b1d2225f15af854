// Package gorm provides GORM-based database operations for orion.
package gorm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/orion/pkg/models"
)

// testRepository creates a Repository with a temporary database for testing.
func testRepository(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "gorm_repo_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store, err := NewStore(Config{
		Path:     filepath.Join(tmpDir, "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("NewStore failed: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return NewRepository(store), cleanup
}

func seedForces(t *testing.T, repo *Repository, projectID string, n int, signals int) []*models.Force {
	t.Helper()
	forces := make([]*models.Force, 0, n+signals)
	for i := 0; i < n; i++ {
		forces = append(forces, &models.Force{
			ID:        fmt.Sprintf("%s-f%03d", projectID, i),
			ProjectID: projectID,
			Title:     fmt.Sprintf("Force %d", i),
			Type:      models.ForceTypeTrend,
			Steep:     models.SteepCategories[i%len(models.SteepCategories)],
			Impact:    float64(i%10 + 1),
		})
	}
	for i := 0; i < signals; i++ {
		forces = append(forces, &models.Force{
			ID:        fmt.Sprintf("%s-s%03d", projectID, i),
			ProjectID: projectID,
			Title:     fmt.Sprintf("Signal %d", i),
			Type:      models.ForceTypeSignal,
			Impact:    3,
		})
	}
	require.NoError(t, repo.CreateForces(context.Background(), forces))
	return forces
}

func TestForceStore_PagerWalksAllForces(t *testing.T) {
	repo, cleanup := testRepository(t)
	defer cleanup()
	ctx := context.Background()

	seedForces(t, repo, "p1", 23, 4)
	seedForces(t, repo, "p2", 5, 0)

	pager, err := repo.GetDrivingForcesForClustering(ctx, "p1", models.PageOptions{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, pager.PageSize())

	total, err := pager.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 23, total)

	var ids []string
	for i := 0; ; i++ {
		page, err := pager.GetPage(ctx, i)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, ref := range page {
			assert.NotEmpty(t, ref.Title)
			ids = append(ids, ref.ID)
		}
	}
	require.Len(t, ids, 23)
	assert.Equal(t, "p1-f000", ids[0])
	assert.Equal(t, "p1-f022", ids[22])

	withSignals, err := repo.GetDrivingForcesForClustering(ctx, "p1", models.PageOptions{IncludeSignals: true})
	require.NoError(t, err)
	total, err = withSignals.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 27, total)
	assert.Equal(t, models.DefaultPageSize, withSignals.PageSize())
}

func TestForceStore_Lookups(t *testing.T) {
	repo, cleanup := testRepository(t)
	defer cleanup()
	ctx := context.Background()

	seedForces(t, repo, "p1", 3, 2)

	f, err := repo.GetDrivingForce(ctx, "p1-f001")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "Force 1", f.Title)
	assert.Equal(t, models.SteepTechnological, f.Steep)
	assert.Equal(t, 2.0, f.Impact)

	missing, err := repo.GetDrivingForce(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	batch, err := repo.GetDrivingForces(ctx, []string{"p1-f000", "p1-f002", "ghost"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	curated, err := repo.ListForces(ctx, "p1", true)
	require.NoError(t, err)
	assert.Len(t, curated, 3)

	all, err := repo.ListForces(ctx, "p1", false)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	err = repo.CreateForces(ctx, []*models.Force{{ID: "p1-f000", ProjectID: "p1", Title: "dup", Type: models.ForceTypeTrend}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func testClusters(projectID, method string, ids ...[]string) []*models.Cluster {
	out := make([]*models.Cluster, len(ids))
	for i, forceIDs := range ids {
		out[i] = &models.Cluster{
			ID:        fmt.Sprintf("%s-%s-c%d", projectID, method, i),
			ProjectID: projectID,
			Method:    method,
			Label:     fmt.Sprintf("Cluster %d", i),
			Algorithm: method,
			ForceIDs:  models.JSONStringArray(forceIDs),
			Size:      len(forceIDs),
			Centroid:  models.JSONFloatArray{float64(i), 1},
			Quality:   models.ClusterQuality{Silhouette: 0.25 * float64(i)},
		}
	}
	return out
}

func TestClusterStore_ReplaceIsScopedToMethod(t *testing.T) {
	repo, cleanup := testRepository(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.CreateClusters(ctx, testClusters("p1", "louvain", []string{"a", "b"}, []string{"c"})))
	require.NoError(t, repo.CreateClusters(ctx, testClusters("p1", "kmeans", []string{"a"})))

	replacement := testClusters("p1", "louvain", []string{"a"}, []string{"b"}, []string{"c"})
	replacement[0].ID = "fresh-0"
	replacement[1].ID = "fresh-1"
	replacement[2].ID = "fresh-2"
	require.NoError(t, repo.ReplaceClusters(ctx, "p1", "louvain", replacement))

	louvain, err := repo.GetClusters(ctx, "p1", "louvain")
	require.NoError(t, err)
	require.Len(t, louvain, 3)
	assert.Equal(t, "fresh-0", louvain[0].ID)
	assert.Equal(t, models.JSONStringArray{"a"}, louvain[0].ForceIDs)
	assert.Equal(t, models.JSONFloatArray{0, 1}, louvain[0].Centroid)
	assert.Equal(t, 0.5, louvain[2].Quality.Silhouette)

	kmeans, err := repo.GetClusters(ctx, "p1", "kmeans")
	require.NoError(t, err)
	assert.Len(t, kmeans, 1)

	all, err := repo.GetClusters(ctx, "p1", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	deleted, err := repo.DeleteClustersByProject(ctx, "p1", "kmeans")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestClusterStore_ReplaceRollsBackOnFailure(t *testing.T) {
	repo, cleanup := testRepository(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.CreateClusters(ctx, testClusters("p1", "louvain", []string{"a"}, []string{"b"})))

	// Two rows with the same primary key make the insert fail after the delete.
	dup := testClusters("p1", "louvain", []string{"x"}, []string{"y"})
	dup[1].ID = dup[0].ID + "-new"
	dup[0].ID = dup[1].ID
	err := repo.ReplaceClusters(ctx, "p1", "louvain", dup)
	require.Error(t, err)

	kept, err := repo.GetClusters(ctx, "p1", "louvain")
	require.NoError(t, err)
	assert.Len(t, kept, 2, "prior clusters survive a failed replace")
}

func TestClusterStore_Reports(t *testing.T) {
	repo, cleanup := testRepository(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		report := &models.ClusteringReport{
			ProjectID:       "p1",
			JobID:           fmt.Sprintf("job-%d", i),
			Algorithm:       "louvain",
			ExecutionTimeMs: int64(100 * i),
			ClusterCount:    37,
			ForceCount:      400,
			Quality:         models.ClusteringQuality{AverageSilhouette: 0.1 * float64(i)},
			Params:          models.JSONObject{"maxIterations": float64(100)},
		}
		require.NoError(t, repo.CreateClusteringReport(ctx, report))
		assert.Positive(t, report.ID)
	}

	reports, err := repo.GetClusteringReports(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "job-0", reports[0].JobID)
	assert.Equal(t, 37, reports[2].ClusterCount)
	assert.InDelta(t, 0.2, reports[2].Quality.AverageSilhouette, 1e-9)
	assert.Equal(t, float64(100), reports[1].Params["maxIterations"])

	none, err := repo.GetClusteringReports(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJobStore_Lifecycle(t *testing.T) {
	repo, cleanup := testRepository(t)
	defer cleanup()
	ctx := context.Background()

	job, err := repo.CreateJob(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.JobTypeClustering, job.Type)

	job, err = repo.UpdateJob(ctx, job.ID, models.Running(10))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 10, job.Progress)

	_, err = repo.UpdateJob(ctx, job.ID, models.ProgressTo(25))
	require.NoError(t, err)

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	_, err = repo.UpdateJob(ctx, job.ID, models.Done(models.JSONObject{"clusters": float64(37)}, at))
	require.NoError(t, err)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.JobStatusDone, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, float64(37), stored.Meta["clusters"])
	require.NotNil(t, stored.FinishedAt)
	assert.True(t, at.Equal(*stored.FinishedAt))

	// Terminal states are final.
	_, err = repo.UpdateJob(ctx, job.ID, models.Failed("late", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = repo.UpdateJob(ctx, job.ID, models.ProgressTo(50))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.UpdateJob(ctx, "missing", models.Running(10))
	assert.ErrorIs(t, err, ErrJobNotFound)

	missing, err := repo.GetJob(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobStore_ListJobs(t *testing.T) {
	repo, cleanup := testRepository(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := repo.CreateJob(ctx, "p1", models.JobTypeClustering)
		require.NoError(t, err)
	}
	_, err := repo.CreateJob(ctx, "p2", models.JobTypeClustering)
	require.NoError(t, err)

	jobs, err := repo.ListJobs(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 4)

	limited, err := repo.ListJobs(ctx, "p1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
