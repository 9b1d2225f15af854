package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/thebtf/orion/pkg/models"
)

// memStore is an in-memory Store with the same job state machine as the GORM store.
type memStore struct {
	mu       sync.Mutex
	forces   map[string][]*models.Force
	clusters map[string][]*models.Cluster
	reports  []*models.ClusteringReport
	jobs     map[string]*models.Job
	history  map[string][]models.Job
	nextJob  int

	// Fault injection.
	onPage          func(index int)
	pageErr         error
	dropOnRefetch   string
	replaceErr      error
	dropAfterWrite  bool
	reportErr       error
	failJobUpdateAt int
	jobUpdates      int
}

func newMemStore() *memStore {
	return &memStore{
		forces:   make(map[string][]*models.Force),
		clusters: make(map[string][]*models.Cluster),
		jobs:     make(map[string]*models.Job),
		history:  make(map[string][]models.Job),
	}
}

func clusterKey(projectID, method string) string { return projectID + "/" + method }

func (s *memStore) addForces(projectID string, forces ...*models.Force) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forces[projectID] = append(s.forces[projectID], forces...)
	sort.Slice(s.forces[projectID], func(i, j int) bool {
		return s.forces[projectID][i].ID < s.forces[projectID][j].ID
	})
}

func (s *memStore) GetDrivingForcesForClustering(_ context.Context, projectID string, opts models.PageOptions) (models.ForcePager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var visible []*models.Force
	for _, f := range s.forces[projectID] {
		if opts.IncludeSignals || f.Type.IsCurated() {
			visible = append(visible, f)
		}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = models.DefaultPageSize
	}
	return &memPager{store: s, forces: visible, size: opts.PageSize}, nil
}

type memPager struct {
	store  *memStore
	forces []*models.Force
	size   int
}

func (p *memPager) PageSize() int { return p.size }

func (p *memPager) TotalCount(context.Context) (int, error) { return len(p.forces), nil }

func (p *memPager) GetPage(_ context.Context, index int) ([]models.ForceRef, error) {
	if p.store.onPage != nil {
		p.store.onPage(index)
	}
	if p.store.pageErr != nil {
		return nil, p.store.pageErr
	}
	start := index * p.size
	if start >= len(p.forces) {
		return nil, nil
	}
	end := min(start+p.size, len(p.forces))
	refs := make([]models.ForceRef, 0, end-start)
	for _, f := range p.forces[start:end] {
		refs = append(refs, models.ForceRef{ID: f.ID, Title: f.Title})
	}
	return refs, nil
}

func (s *memStore) GetDrivingForces(_ context.Context, ids []string) ([]*models.Force, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != s.dropOnRefetch {
			want[id] = true
		}
	}
	var out []*models.Force
	for _, forces := range s.forces {
		for _, f := range forces {
			if want[f.ID] {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (s *memStore) ReplaceClusters(_ context.Context, projectID, method string, clusters []*models.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	stored := make([]*models.Cluster, len(clusters))
	for i, c := range clusters {
		cp := *c
		stored[i] = &cp
	}
	if s.dropAfterWrite && len(stored) > 0 {
		stored = stored[1:]
	}
	s.clusters[clusterKey(projectID, method)] = stored
	return nil
}

func (s *memStore) GetClusters(_ context.Context, projectID, method string) ([]*models.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if method != "" {
		return append([]*models.Cluster(nil), s.clusters[clusterKey(projectID, method)]...), nil
	}
	var out []*models.Cluster
	for key, cs := range s.clusters {
		if len(key) > len(projectID) && key[:len(projectID)+1] == projectID+"/" {
			out = append(out, cs...)
		}
	}
	return out, nil
}

func (s *memStore) CreateClusteringReport(_ context.Context, report *models.ClusteringReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reportErr != nil {
		return s.reportErr
	}
	report.ID = int64(len(s.reports) + 1)
	cp := *report
	s.reports = append(s.reports, &cp)
	return nil
}

func (s *memStore) CreateJob(_ context.Context, projectID, jobType string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJob++
	job := &models.Job{
		ID:        fmt.Sprintf("job-%d", s.nextJob),
		ProjectID: projectID,
		Type:      jobType,
		Status:    models.JobStatusPending,
	}
	s.jobs[job.ID] = job
	s.history[job.ID] = append(s.history[job.ID], *job)
	cp := *job
	return &cp, nil
}

func (s *memStore) UpdateJob(_ context.Context, jobID string, patch models.JobPatch) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobUpdates++
	if s.failJobUpdateAt > 0 && s.jobUpdates == s.failJobUpdateAt {
		return nil, errors.New("job table unavailable")
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	next := job.Status
	if patch.Status != nil {
		next = *patch.Status
	}
	if !models.CanTransition(job.Status, next) {
		return nil, fmt.Errorf("invalid transition %s -> %s", job.Status, next)
	}
	updated := patch.Apply(*job)
	s.jobs[jobID] = &updated
	s.history[jobID] = append(s.history[jobID], updated)
	cp := updated
	return &cp, nil
}

func (s *memStore) job(id string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memStore) progressHistory(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.history[id]))
	for _, j := range s.history[id] {
		out = append(out, j.Progress)
	}
	return out
}

func (s *memStore) reportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}
