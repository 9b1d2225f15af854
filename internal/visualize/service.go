// Package visualize serves layout views for a project: it loads cluster and
// force state, renders it with the layout engine and caches the encoded
// result under a fingerprint of its inputs.
package visualize

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/orion/internal/cache"
	"github.com/thebtf/orion/internal/layout"
	"github.com/thebtf/orion/pkg/models"
)

// View names a renderable layout.
type View string

const (
	ViewNetwork         View = "network"
	ViewForceNetwork    View = "force-network"
	ViewRadar           View = "radar"
	ViewHeatmap         View = "heatmap"
	ViewTreemap         View = "treemap"
	ViewQualityTimeline View = "quality-timeline"
	ViewAssignments     View = "assignments"
	ViewDashboard       View = "dashboard"
)

// Views lists every supported view.
var Views = []View{
	ViewNetwork, ViewForceNetwork, ViewRadar, ViewHeatmap,
	ViewTreemap, ViewQualityTimeline, ViewAssignments, ViewDashboard,
}

// ErrUnknownView is returned for a view name not in Views.
var ErrUnknownView = errors.New("unknown view")

// ParseView validates a view name.
func ParseView(name string) (View, error) {
	for _, v := range Views {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, name)
}

// Store is the read side of persistence the views need.
type Store interface {
	GetClusters(ctx context.Context, projectID, method string) ([]*models.Cluster, error)
	ListForces(ctx context.Context, projectID string, curatedOnly bool) ([]*models.Force, error)
	GetClusteringReports(ctx context.Context, projectID string) ([]*models.ClusteringReport, error)
}

// DefaultCacheTTL bounds how long a rendered view is kept.
const DefaultCacheTTL = 10 * time.Minute

// Service renders views.
type Service struct {
	store  Store
	engine *layout.Engine
	cache  cache.Cache
	group  singleflight.Group
	ttl    time.Duration
}

// NewService creates a view service. A nil cache disables caching.
func NewService(store Store, engine *layout.Engine, c cache.Cache, ttl time.Duration) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{store: store, engine: engine, cache: c, ttl: ttl}
}

// Engine returns the layout engine.
func (s *Service) Engine() *layout.Engine {
	return s.engine
}

// Load reads the project state a view is computed from.
func (s *Service) Load(ctx context.Context, projectID string, opts layout.ViewOptions) (layout.Input, error) {
	clusters, err := s.store.GetClusters(ctx, projectID, "")
	if err != nil {
		return layout.Input{}, fmt.Errorf("load clusters: %w", err)
	}
	forces, err := s.store.ListForces(ctx, projectID, opts.CuratedOnly)
	if err != nil {
		return layout.Input{}, fmt.Errorf("load forces: %w", err)
	}
	reports, err := s.store.GetClusteringReports(ctx, projectID)
	if err != nil {
		return layout.Input{}, fmt.Errorf("load reports: %w", err)
	}
	return layout.Input{Clusters: clusters, Forces: forces, Reports: reports}, nil
}

// Compute renders view from in without caching.
func (s *Service) Compute(view View, in layout.Input, opts layout.ViewOptions) (interface{}, error) {
	switch view {
	case ViewNetwork:
		return s.engine.Network(in, opts)
	case ViewForceNetwork:
		return s.engine.ForceNetwork(in, opts)
	case ViewRadar:
		return s.engine.Radar(in, opts), nil
	case ViewHeatmap:
		return s.engine.Heatmap(in, opts), nil
	case ViewTreemap:
		return s.engine.Treemap(in, opts), nil
	case ViewQualityTimeline:
		return s.engine.QualityTimeline(in, opts), nil
	case ViewAssignments:
		return s.engine.AssignmentMatrix(in, opts), nil
	case ViewDashboard:
		return s.engine.Dashboard(in, opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
}

// Render returns the JSON encoding of view for projectID. Concurrent
// identical requests share one computation.
func (s *Service) Render(ctx context.Context, view View, projectID string, opts layout.ViewOptions) ([]byte, error) {
	if _, err := ParseView(string(view)); err != nil {
		return nil, err
	}
	flightKey := string(view) + "|" + projectID + "|" + opts.Method + "|" +
		strconv.FormatBool(opts.CuratedOnly) + "|" + strconv.FormatBool(opts.Layout3D)

	// The flight outlives any one caller; each caller still stops waiting
	// when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(flightKey, func() (interface{}, error) {
		return s.render(flightCtx, view, projectID, opts)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug().Str("view", string(view)).Str("project_id", projectID).Msg("Shared in-flight render")
		}
		return res.Val.([]byte), nil
	}
}

func (s *Service) render(ctx context.Context, view View, projectID string, opts layout.ViewOptions) ([]byte, error) {
	start := time.Now()
	in, err := s.Load(ctx, projectID, opts)
	if err != nil {
		return nil, err
	}

	key, err := s.cacheKey(view, in, opts)
	if err != nil {
		return nil, err
	}
	if data, hit, err := s.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("view", string(view)).Msg("Layout cache read failed")
	} else if hit {
		recordRender(ctx, view, true, time.Since(start))
		return data, nil
	}

	result, err := s.Compute(view, in, opts)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", view, err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", view, err)
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		log.Warn().Err(err).Str("view", string(view)).Msg("Layout cache write failed")
	}
	recordRender(ctx, view, false, time.Since(start))
	return data, nil
}

// cacheKey fingerprints everything the rendered bytes depend on, so stale
// entries are never served after clusters or forces change.
func (s *Service) cacheKey(view View, in layout.Input, opts layout.ViewOptions) (string, error) {
	fp, err := layout.Fingerprint(struct {
		View    View               `json:"view"`
		Input   layout.Input       `json:"input"`
		Opts    layout.ViewOptions `json:"opts"`
		Options layout.Options     `json:"layout"`
	}{view, in, opts, s.engine.Options()})
	if err != nil {
		return "", err
	}
	return string(view) + ":" + fp, nil
}
