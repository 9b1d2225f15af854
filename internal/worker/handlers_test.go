package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/orion/internal/cache"
	"github.com/thebtf/orion/internal/config"
	gormdb "github.com/thebtf/orion/internal/db/gorm"
	"github.com/thebtf/orion/internal/engine"
	"github.com/thebtf/orion/internal/layout"
	"github.com/thebtf/orion/internal/orchestrator"
	"github.com/thebtf/orion/internal/visualize"
	"github.com/thebtf/orion/internal/worker/sse"
	"github.com/thebtf/orion/pkg/models"
)

const testProject = "proj-1"

type testEnv struct {
	svc    *Service
	repo   *gormdb.Repository
	runner *orchestrator.Runner
}

// roundRobin assigns forces to k clusters in input order.
func roundRobin(k int) engine.Func {
	return func(_ context.Context, forces []engine.ForceInput, params engine.Params, _ string) (*engine.Result, error) {
		clusters := make([]engine.ClusterResult, k)
		for i := range clusters {
			clusters[i] = engine.ClusterResult{
				Label:     fmt.Sprintf("Theme %d", i),
				Algorithm: params.Algorithm,
				Quality:   engine.ClusterQuality{SilhouetteScore: 0.4},
			}
		}
		for i, f := range forces {
			c := &clusters[i%k]
			c.ForceIDs = append(c.ForceIDs, f.ID)
			c.Size++
		}
		return &engine.Result{Algorithm: params.Algorithm, Clusters: clusters}, nil
	}
}

// testService wires a Service over a temporary SQLite database.
func testService(t *testing.T) *testEnv {
	t.Helper()

	store, err := gormdb.NewStore(gormdb.Config{
		Path:     filepath.Join(t.TempDir(), "worker.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	repo := gormdb.NewRepository(store)

	forces := make([]*models.Force, 12)
	for i := range forces {
		forces[i] = &models.Force{
			ID:        fmt.Sprintf("f%02d", i),
			ProjectID: testProject,
			Title:     fmt.Sprintf("Force %d", i),
			Type:      models.ForceTypeTrend,
			Steep:     models.SteepCategories[i%len(models.SteepCategories)],
			Impact:    float64(i%10 + 1),
		}
	}
	require.NoError(t, repo.CreateForces(context.Background(), forces))

	broadcaster := sse.NewBroadcaster()
	orch := orchestrator.New(repo, roundRobin(3), orchestrator.DefaultConfig(), orchestrator.WithNotifier(broadcaster))
	runner := orchestrator.NewRunner(orch, repo, 1)
	t.Cleanup(runner.Wait)

	views := visualize.NewService(repo, layout.New(layout.DefaultOptions()), cache.NewMemory(), time.Minute)
	svc := NewService("test-version", config.Default(), Deps{
		Jobs:        repo,
		Runner:      runner,
		Views:       views,
		Broadcaster: broadcaster,
		DB:          store,
	})
	svc.SetReady(true)
	return &testEnv{svc: svc, repo: repo, runner: runner}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.svc.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// submitAndWait submits a job over HTTP and waits for the runner to finish it.
func (e *testEnv) submitAndWait(t *testing.T, body string) *models.Job {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/projects/"+testProject+"/clustering", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var job models.Job
	decode(t, rec, &job)
	assert.Equal(t, "/api/jobs/"+job.ID, rec.Header().Get("Location"))
	e.runner.Wait()
	return &job
}

func TestHandleHealth(t *testing.T) {
	env := testService(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, "ready", resp["status"])
	assert.Equal(t, "test-version", resp["version"])
	assert.Equal(t, "ok", resp["database"])
}

func TestHandleVersion(t *testing.T) {
	env := testService(t)

	rec := env.do(t, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decode(t, rec, &resp)
	assert.Equal(t, "test-version", resp["version"])
}

func TestRequireReady(t *testing.T) {
	env := testService(t)
	env.svc.SetReady(false)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"ready endpoint reports starting", "/api/ready", http.StatusServiceUnavailable},
		{"health stays reachable", "/health", http.StatusOK},
		{"jobs are gated", "/api/projects/" + testProject + "/jobs", http.StatusServiceUnavailable},
		{"views are gated", "/api/projects/" + testProject + "/network", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	env.svc.SetReady(true)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/ready", "").Code)
}

func TestHandleSubmitClustering(t *testing.T) {
	env := testService(t)

	submitted := env.submitAndWait(t, `{"algorithm":"kmeans","maxIterations":50}`)
	assert.Equal(t, testProject, submitted.ProjectID)

	rec := env.do(t, http.MethodGet, "/api/jobs/"+submitted.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	decode(t, rec, &job)
	assert.Equal(t, models.JobStatusDone, job.Status, job.Error)
	assert.Equal(t, 100, job.Progress)

	clusters, err := env.repo.GetClusters(context.Background(), testProject, "kmeans")
	require.NoError(t, err)
	assert.Len(t, clusters, 3)
}

func TestHandleSubmitClustering_EmptyBodyUsesConfiguredAlgorithm(t *testing.T) {
	env := testService(t)

	env.submitAndWait(t, "")

	clusters, err := env.repo.GetClusters(context.Background(), testProject, config.Default().Clustering.Algorithm)
	require.NoError(t, err)
	assert.Len(t, clusters, 3)
}

func TestHandleSubmitClustering_BadRequests(t *testing.T) {
	env := testService(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"algorithm":`},
		{"negative iterations", `{"maxIterations":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/projects/"+testProject+"/clustering", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	env := testService(t)

	rec := env.do(t, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListJobs(t *testing.T) {
	env := testService(t)
	env.submitAndWait(t, "")
	env.submitAndWait(t, "")

	rec := env.do(t, http.MethodGet, "/api/projects/"+testProject+"/jobs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []models.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Jobs, 1)

	rec = env.do(t, http.MethodGet, "/api/projects/other/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Zero(t, resp.Count)
}

func TestHandleView(t *testing.T) {
	env := testService(t)
	env.submitAndWait(t, "")

	rec := env.do(t, http.MethodGet, "/api/projects/"+testProject+"/network?layout3d=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var network layout.Network
	decode(t, rec, &network)
	assert.Len(t, network.Nodes, 3)
	assert.Equal(t, 3, network.Metrics.TotalClusters)

	// A second render is served from cache and is byte-identical.
	again := env.do(t, http.MethodGet, "/api/projects/"+testProject+"/network?layout3d=true", "")
	assert.Equal(t, rec.Body.String(), again.Body.String())

	for _, view := range visualize.Views {
		rec := env.do(t, http.MethodGet, "/api/projects/"+testProject+"/"+string(view), "")
		assert.Equal(t, http.StatusOK, rec.Code, "view %s: %s", view, rec.Body.String())
	}
}

func TestHandleView_Errors(t *testing.T) {
	env := testService(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"unknown view", "/api/projects/" + testProject + "/galaxy", http.StatusNotFound},
		{"bad curated flag", "/api/projects/" + testProject + "/radar?curated=maybe", http.StatusBadRequest},
		{"bad layout3d flag", "/api/projects/" + testProject + "/network?layout3d=2x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, rec.Code)

			var resp map[string]string
			decode(t, rec, &resp)
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestParseViewOptions(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?curated=false&layout3d=1&method=kmeans", nil)
	opts, err := parseViewOptions(req)
	require.NoError(t, err)
	assert.False(t, opts.CuratedOnly)
	assert.True(t, opts.Layout3D)
	assert.Equal(t, "kmeans", opts.Method)

	opts, err = parseViewOptions(httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NoError(t, err)
	assert.True(t, opts.CuratedOnly)
	assert.False(t, opts.Layout3D)
}
