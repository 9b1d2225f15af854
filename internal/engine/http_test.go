package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"
)

type HTTPEngineSuite struct {
	suite.Suite
	server   *httptest.Server
	received clusterRequest
	status   int
	response Result
}

func TestHTTPEngineSuite(t *testing.T) {
	suite.Run(t, new(HTTPEngineSuite))
}

func (s *HTTPEngineSuite) SetupTest() {
	s.status = http.StatusOK
	s.received = clusterRequest{}
	s.response = Result{
		Algorithm:           "louvain",
		ExecutionTime:       1250,
		RecommendedClusters: 2,
		OverallQuality:      Quality{AverageSilhouette: 0.42},
		Clusters: []ClusterResult{
			{Label: "Cluster 1", Algorithm: "louvain", ForceIDs: []string{"f1", "f2"}, Size: 2},
			{Label: "Energy transition", Algorithm: "louvain", ForceIDs: []string{"f3"}, Size: 1},
			{Label: "  ", Algorithm: "louvain", ForceIDs: []string{"f4"}, Size: 1},
		},
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cluster" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&s.received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if s.status != http.StatusOK {
			http.Error(w, "engine exploded", s.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.response)
	}))
}

func (s *HTTPEngineSuite) TearDownTest() {
	s.server.Close()
}

func (s *HTTPEngineSuite) newEngine(maxTokens int) *HTTPEngine {
	e, err := NewHTTPEngine(HTTPConfig{
		URL:               s.server.URL + "/",
		MaxTokensPerForce: maxTokens,
		RequestsPerSecond: 100,
		Timeout:           5 * time.Second,
	})
	s.Require().NoError(err)
	return e
}

func (s *HTTPEngineSuite) forces() []ForceInput {
	return []ForceInput{
		{ID: "f1", Title: "Battery storage growth", Text: "Grid <private>internal memo</private> batteries"},
		{ID: "f2", Title: "Battery recycling", Text: "Recycling\tloops"},
		{ID: "f3", Title: "Solar", Text: "Solar"},
		{ID: "f4", Title: "Hydrogen", Text: "Hydrogen", Embedding: []float64{0.1, 0.2}},
	}
}

func (s *HTTPEngineSuite) TestClusterRoundTrip() {
	e := s.newEngine(0)
	params := Params{Algorithm: "louvain", NumClusters: 37, MaxIterations: 100}

	res, err := e.Cluster(context.Background(), s.forces(), params, "job-1")
	s.Require().NoError(err)

	s.Equal("job-1", s.received.JobID)
	s.Equal(params, s.received.Params)
	s.Require().Len(s.received.Forces, 4)
	s.Equal("Grid batteries", s.received.Forces[0].Text)
	s.Equal("Recycling loops", s.received.Forces[1].Text)
	s.Equal([]float64{0.1, 0.2}, s.received.Forces[3].Embedding)

	s.Equal("louvain", res.Algorithm)
	s.Equal(1250.0, res.ExecutionTime)
	s.Require().Len(res.Clusters, 3)
	s.Equal("Battery & Recycling", res.Clusters[0].Label)
	s.Equal("Energy transition", res.Clusters[1].Label)
	s.Equal("  ", res.Clusters[2].Label, "blank labels are left for validation")
}

func (s *HTTPEngineSuite) TestTruncatesLongText() {
	e := s.newEngine(8)
	long := strings.Repeat("decarbonisation of heavy industry accelerates ", 50)
	forces := []ForceInput{{ID: "f1", Title: "Industry", Text: long}}

	_, err := e.Cluster(context.Background(), forces, Params{Algorithm: "louvain"}, "job-2")
	s.Require().NoError(err)

	s.Require().Len(s.received.Forces, 1)
	got := s.received.Forces[0].Text
	s.NotEmpty(got)
	s.Less(len(got), len(long))
	s.True(strings.HasPrefix(long, got))
}

func (s *HTTPEngineSuite) TestEngineErrorStatus() {
	s.status = http.StatusInternalServerError
	e := s.newEngine(0)

	_, err := e.Cluster(context.Background(), s.forces(), Params{}, "job-3")
	s.Require().Error(err)
	s.Contains(err.Error(), "500")
	s.Contains(err.Error(), "engine exploded")
}

func (s *HTTPEngineSuite) TestCanceledContext() {
	e := s.newEngine(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Cluster(ctx, s.forces(), Params{}, "job-4")
	s.Error(err)
}

func (s *HTTPEngineSuite) TestRequiresURL() {
	_, err := NewHTTPEngine(HTTPConfig{})
	s.Error(err)
}

func TestFuncAdapter(t *testing.T) {
	called := false
	var e Engine = Func(func(ctx context.Context, forces []ForceInput, params Params, jobID string) (*Result, error) {
		called = true
		return &Result{Algorithm: params.Algorithm}, nil
	})
	res, err := e.Cluster(context.Background(), nil, Params{Algorithm: "kmeans"}, "j")
	if err != nil || !called || res.Algorithm != "kmeans" {
		t.Fatalf("adapter did not forward call: %v %v", res, err)
	}
}
