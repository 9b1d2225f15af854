package layout

import (
	"math"
	"sort"

	"github.com/thebtf/orion/pkg/geometry"
	"github.com/thebtf/orion/pkg/models"
	"github.com/thebtf/orion/pkg/similarity"
)

// ForceNode is one force in the force scatter network.
type ForceNode struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Type      string        `json:"type"`
	Steep     string        `json:"steep"`
	Sentiment string        `json:"sentiment,omitempty"`
	ClusterID string        `json:"clusterId"`
	Color     string        `json:"color"`
	Position  geometry.Vec3 `json:"position"`
	Impact    float64       `json:"impact"`
	Size      float64       `json:"size"`
	Fallback  bool          `json:"fallback"`
}

// ForceEdge links two similar forces of the same cluster.
type ForceEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Score  float64 `json:"score"`
}

// ForceCluster is a real cluster or a synthetic STEEP fallback group.
type ForceCluster struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Color    string        `json:"color"`
	Center   geometry.Vec3 `json:"center"`
	Size     int           `json:"size"`
	Fallback bool          `json:"fallback"`
}

// ForceMetrics summarizes a force network.
type ForceMetrics struct {
	TotalForces      int  `json:"totalForces"`
	AssignedForces   int  `json:"assignedForces"`
	UnassignedForces int  `json:"unassignedForces"`
	TotalClusters    int  `json:"totalClusters"`
	FallbackGroups   int  `json:"fallbackGroups"`
	TotalEdges       int  `json:"totalEdges"`
	EdgesTruncated   bool `json:"edgesTruncated"`
}

// ForceNetwork is the force-level scatter graph of a project.
type ForceNetwork struct {
	Nodes        []ForceNode     `json:"nodes"`
	Edges        []ForceEdge     `json:"edges"`
	Clusters     []ForceCluster  `json:"clusters"`
	Metrics      ForceMetrics    `json:"metrics"`
	LayoutBounds geometry.Bounds `json:"layoutBounds"`
}

const fallbackPrefix = "steep:"

// ForceNetwork places each force at its cluster center plus a deterministic
// jitter. Forces without a cluster are grouped by STEEP category around
// centers at FallbackRadius.
func (e *Engine) ForceNetwork(in Input, opts ViewOptions) (*ForceNetwork, error) {
	v := prepare(in, opts)
	out := &ForceNetwork{
		Nodes:    make([]ForceNode, 0, len(v.forces)),
		Edges:    make([]ForceEdge, 0),
		Clusters: make([]ForceCluster, 0, len(v.clusters)),
	}

	ids := make([]string, len(v.clusters))
	for i, c := range v.clusters {
		ids[i] = c.cluster.ID
	}
	centers := e.ClusterCenters(ids, opts.Layout3D)
	colorIndex := algorithmColorIndex(v.clusters)
	for _, c := range v.clusters {
		out.Clusters = append(out.Clusters, ForceCluster{
			ID:     c.cluster.ID,
			Label:  c.cluster.Label,
			Color:  ColorFor(colorIndex[groupKey(c.cluster)], QualityAlpha(c.cluster.Quality.Silhouette)),
			Center: centers[c.cluster.ID],
			Size:   c.size(),
		})
	}

	assigned := v.assignments()
	var unassigned []*models.Force
	positions := make([]geometry.Vec3, 0, len(v.forces))
	for _, f := range v.forces {
		c, ok := assigned[f.ID]
		if !ok {
			unassigned = append(unassigned, f)
			continue
		}
		p := e.forcePosition(centers[c.cluster.ID], f, opts.Layout3D)
		out.Nodes = append(out.Nodes, e.forceNode(f, c.cluster.ID, p, false))
		positions = append(positions, p)
	}

	keys, groups := steepGroups(unassigned)
	fallbackCenters := e.fallbackCenters(len(keys), opts.Layout3D)
	for i, s := range keys {
		id := fallbackPrefix + string(s)
		out.Clusters = append(out.Clusters, ForceCluster{
			ID:       id,
			Label:    string(s),
			Color:    fallbackTypeColor,
			Center:   fallbackCenters[i],
			Size:     len(groups[s]),
			Fallback: true,
		})
		for _, f := range groups[s] {
			p := e.forcePosition(fallbackCenters[i], f, opts.Layout3D)
			out.Nodes = append(out.Nodes, e.forceNode(f, id, p, true))
			positions = append(positions, p)
		}
	}
	// Assigned and fallback nodes were appended in two passes.
	sort.SliceStable(out.Nodes, func(i, j int) bool { return out.Nodes[i].ID < out.Nodes[j].ID })

	out.Edges, out.Metrics.EdgesTruncated = e.forceEdges(v)

	out.Metrics.TotalForces = len(v.forces)
	out.Metrics.UnassignedForces = len(unassigned)
	out.Metrics.AssignedForces = len(v.forces) - len(unassigned)
	out.Metrics.TotalClusters = len(v.clusters)
	out.Metrics.FallbackGroups = len(keys)
	out.Metrics.TotalEdges = len(out.Edges)
	out.LayoutBounds = geometry.BoundsOf(positions)
	return out, nil
}

func (e *Engine) forcePosition(center geometry.Vec3, f *models.Force, layout3D bool) geometry.Vec3 {
	j := e.Jitter(f.ID, f.Impact)
	if !layout3D {
		j = j.Flatten()
	}
	return center.Add(j)
}

func (e *Engine) forceNode(f *models.Force, clusterID string, p geometry.Vec3, fallback bool) ForceNode {
	impact := models.ClampImpact(f.Impact)
	return ForceNode{
		ID:        f.ID,
		Title:     f.Title,
		Type:      string(f.Type),
		Steep:     string(models.NormalizeSteep(f.Steep)),
		Sentiment: f.Sentiment,
		ClusterID: clusterID,
		Color:     TypeColor(f.Type),
		Position:  p,
		Impact:    impact,
		Size:      geometry.Round(2+impact*0.6, 3),
		Fallback:  fallback,
	}
}

// fallbackCenters places n STEEP groups on a ring of FallbackRadius: the XY
// plane in 2D, a Fibonacci sphere in 3D. A single group still sits on the ring.
func (e *Engine) fallbackCenters(n int, layout3D bool) []geometry.Vec3 {
	if n == 0 {
		return nil
	}
	if layout3D {
		return geometry.FibonacciSphere(n, e.opts.FallbackRadius)
	}
	out := make([]geometry.Vec3, n)
	for i := range out {
		a := 2 * math.Pi * float64(i) / float64(n)
		out[i] = geometry.Vec3{X: math.Cos(a) * e.opts.FallbackRadius, Y: math.Sin(a) * e.opts.FallbackRadius}
	}
	return out
}

// forceEdges emits intra-cluster pairs scoring above ForceEdgeThreshold, in
// cluster then id order, stopping at MaxForceEdges.
func (e *Engine) forceEdges(v *view) ([]ForceEdge, bool) {
	edges := make([]ForceEdge, 0)
	for _, c := range v.clusters {
		members := make([]*models.Force, 0, len(c.members))
		for _, id := range c.members {
			if f, ok := v.index[id]; ok {
				members = append(members, f)
			}
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				score := similarity.PairScore(members[i], members[j])
				if score <= *e.opts.ForceEdgeThreshold {
					continue
				}
				if len(edges) >= e.opts.MaxForceEdges {
					return edges, true
				}
				edges = append(edges, ForceEdge{
					Source: members[i].ID,
					Target: members[j].ID,
					Score:  geometry.Round(score, 4),
				})
			}
		}
	}
	return edges, false
}
