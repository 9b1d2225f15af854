package layout

import (
	"sort"

	"github.com/thebtf/orion/pkg/models"
)

// Input is the cluster and force state of one project.
type Input struct {
	Clusters []*models.Cluster
	Forces   []*models.Force
	Reports  []*models.ClusteringReport
}

// ViewOptions selects what a view renders.
type ViewOptions struct {
	// CuratedOnly drops raw signals.
	CuratedOnly bool
	// Layout3D selects 3D placement; otherwise positions lie in the XY plane.
	Layout3D bool
	// Method restricts clusters to one method or algorithm. Empty keeps all.
	Method string
}

// clusterView is a cluster restricted to the visible forces.
type clusterView struct {
	cluster *models.Cluster
	members []string
	steep   models.Steep
}

func (c *clusterView) size() int {
	if len(c.members) > 0 {
		return len(c.members)
	}
	return c.cluster.Size
}

// view is the filtered, sorted projection every layout starts from.
type view struct {
	forces   []*models.Force
	index    map[string]*models.Force
	clusters []*clusterView
}

// prepare filters forces and clusters and sorts both by id so the result is
// independent of upstream query order.
func prepare(in Input, opts ViewOptions) *view {
	v := &view{index: make(map[string]*models.Force, len(in.Forces))}
	for _, f := range in.Forces {
		if f == nil || (opts.CuratedOnly && !f.Type.IsCurated()) {
			continue
		}
		if _, dup := v.index[f.ID]; dup {
			continue
		}
		v.index[f.ID] = f
		v.forces = append(v.forces, f)
	}
	sort.Slice(v.forces, func(i, j int) bool { return v.forces[i].ID < v.forces[j].ID })

	haveForces := len(in.Forces) > 0
	for _, c := range in.Clusters {
		if c == nil {
			continue
		}
		if opts.Method != "" && c.Method != opts.Method && c.Algorithm != opts.Method {
			continue
		}
		cv := &clusterView{cluster: c}
		for _, id := range c.ForceIDs {
			if !haveForces {
				cv.members = append(cv.members, id)
				continue
			}
			if _, ok := v.index[id]; ok {
				cv.members = append(cv.members, id)
			}
		}
		sort.Strings(cv.members)
		if opts.CuratedOnly && len(cv.members) == 0 {
			continue
		}
		cv.steep = dominantSteep(cv.members, v.index)
		v.clusters = append(v.clusters, cv)
	}
	sort.Slice(v.clusters, func(i, j int) bool { return v.clusters[i].cluster.ID < v.clusters[j].cluster.ID })
	return v
}

// totalForces counts visible forces, or distinct member ids when no force
// records were supplied.
func (v *view) totalForces() int {
	if len(v.forces) > 0 {
		return len(v.forces)
	}
	seen := make(map[string]struct{})
	for _, c := range v.clusters {
		for _, id := range c.members {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// assignments maps each visible force id to the first cluster (by id) listing it.
func (v *view) assignments() map[string]*clusterView {
	out := make(map[string]*clusterView, len(v.forces))
	for _, c := range v.clusters {
		for _, id := range c.members {
			if _, taken := out[id]; !taken {
				out[id] = c
			}
		}
	}
	return out
}

// dominantSteep returns the most common STEEP category among members.
// Ties resolve to canonical STEEP order; clusters without records are Unknown.
func dominantSteep(members []string, index map[string]*models.Force) models.Steep {
	counts := make(map[models.Steep]int)
	for _, id := range members {
		if f, ok := index[id]; ok {
			counts[models.NormalizeSteep(f.Steep)]++
		}
	}
	best := models.SteepUnknown
	bestCount := 0
	for steep, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount = steep, n
		case n == bestCount && steepLess(steep, best):
			best = steep
		}
	}
	return best
}

// steepLess orders categories canonically, unknown values alphabetically after.
func steepLess(a, b models.Steep) bool {
	ra, rb := models.SteepRank(a), models.SteepRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

// steepGroups buckets forces by normalized STEEP category in canonical order.
func steepGroups(forces []*models.Force) ([]models.Steep, map[models.Steep][]*models.Force) {
	groups := make(map[models.Steep][]*models.Force)
	for _, f := range forces {
		s := models.NormalizeSteep(f.Steep)
		groups[s] = append(groups[s], f)
	}
	keys := make([]models.Steep, 0, len(groups))
	for s := range groups {
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool { return steepLess(keys[i], keys[j]) })
	return keys, groups
}
