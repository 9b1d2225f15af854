package layout

import (
	"math"
	"sort"

	"github.com/thebtf/orion/pkg/geometry"
	"github.com/thebtf/orion/pkg/models"
)

// Strategy names the placement used for a cluster network.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyCircle    Strategy = "circle"
	StrategySpherical Strategy = "spherical"
	StrategyGrouped   Strategy = "grouped"
	StrategySteep     Strategy = "clustered-spherical"
)

// SelectStrategy picks the placement for n cluster nodes.
func (e *Engine) SelectStrategy(n int, layout3D bool) Strategy {
	switch {
	case n == 0:
		return StrategyNone
	case !layout3D:
		return StrategyCircle
	case n <= e.opts.SphericalMaxNodes:
		return StrategySpherical
	case n <= e.opts.GroupedMaxNodes:
		return StrategyGrouped
	}
	return StrategySteep
}

// place computes one position per cluster, in the (id-sorted) order given.
func (e *Engine) place(clusters []*clusterView, strategy Strategy) []geometry.Vec3 {
	switch strategy {
	case StrategyCircle:
		return geometry.CirclePoints(len(clusters), e.opts.SphereRadius, geometry.Vec3{})
	case StrategySpherical:
		return e.spherical(len(clusters))
	case StrategyGrouped:
		return e.grouped(clusters)
	case StrategySteep:
		return e.bySteep(clusters)
	}
	return nil
}

// spherical places 1 node at the origin, 2 on opposite poles of the y axis and
// 3 or more on a golden-angle Fibonacci sphere, all at SphereRadius.
func (e *Engine) spherical(n int) []geometry.Vec3 {
	r := e.opts.SphereRadius
	switch n {
	case 0:
		return nil
	case 1:
		return []geometry.Vec3{{}}
	case 2:
		return []geometry.Vec3{{Y: r}, {Y: -r}}
	}
	return geometry.FibonacciSphere(n, r)
}

func groupKey(c *models.Cluster) string {
	switch {
	case c.Algorithm != "":
		return c.Algorithm
	case c.Method != "":
		return c.Method
	}
	return "unknown"
}

// grouped places groups of same-algorithm clusters evenly on a horizontal
// circle and members on a ring around their group center. Height follows quality.
func (e *Engine) grouped(clusters []*clusterView) []geometry.Vec3 {
	members := make(map[string][]int)
	for i, c := range clusters {
		k := groupKey(c.cluster)
		members[k] = append(members[k], i)
	}
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	centers := []geometry.Vec3{{}}
	if len(keys) > 1 {
		centers = geometry.RingPoints(len(keys), e.opts.GroupRadius, geometry.Vec3{})
	}

	out := make([]geometry.Vec3, len(clusters))
	for g, k := range keys {
		idx := members[k]
		ring := []geometry.Vec3{centers[g]}
		if len(idx) > 1 {
			ring = geometry.RingPoints(len(idx), e.opts.GroupMemberRadius, centers[g])
		}
		for m, i := range idx {
			p := ring[m]
			p.Y += clusters[i].cluster.Quality.Silhouette * e.opts.HeightScale
			out[i] = p
		}
	}
	return out
}

// bySteep places clusters by dominant STEEP category: each category gets an
// angular slot on OuterRadius and its members are hash-scattered inside a disc
// of ScatterRadius around the slot, lifted by quality.
func (e *Engine) bySteep(clusters []*clusterView) []geometry.Vec3 {
	slots := make(map[models.Steep]int)
	var keys []models.Steep
	for _, c := range clusters {
		if _, ok := slots[c.steep]; !ok {
			slots[c.steep] = 0
			keys = append(keys, c.steep)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return steepLess(keys[i], keys[j]) })
	for i, k := range keys {
		slots[k] = i
	}

	out := make([]geometry.Vec3, len(clusters))
	for i, c := range clusters {
		a := 2 * math.Pi * float64(slots[c.steep]) / float64(len(keys))
		center := geometry.Vec3{X: math.Cos(a) * e.opts.OuterRadius, Z: math.Sin(a) * e.opts.OuterRadius}

		id := c.cluster.ID
		r := e.opts.ScatterRadius * math.Sqrt(geometry.HashUnit(id, "scatter-r"))
		theta := 2 * math.Pi * geometry.HashUnit(id, "scatter-a")
		out[i] = geometry.Vec3{
			X: center.X + r*math.Cos(theta),
			Y: c.cluster.Quality.Silhouette * e.opts.HeightScale,
			Z: center.Z + r*math.Sin(theta),
		}
	}
	return out
}

// ClusterCenters distributes cluster centers over the sorted id list: a circle
// of ClusterRadius in 2D, a Fibonacci sphere of ClusterRadius in 3D.
func (e *Engine) ClusterCenters(ids []string, layout3D bool) map[string]geometry.Vec3 {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var points []geometry.Vec3
	if layout3D {
		points = geometry.FibonacciSphere(len(sorted), e.opts.ClusterRadius)
	} else {
		points = geometry.CirclePoints(len(sorted), e.opts.ClusterRadius, geometry.Vec3{})
	}
	out := make(map[string]geometry.Vec3, len(sorted))
	for i, id := range sorted {
		out[id] = points[i]
	}
	return out
}

// Jitter returns the deterministic displacement of a force inside its cluster.
// Each axis comes from an independently salted hash of the id. The magnitude is
// at most MaxJitter and shrinks to 30% of it as impact rises from 1 to 10.
func (e *Engine) Jitter(id string, impact float64) geometry.Vec3 {
	impact = models.ClampImpact(impact)
	scale := e.opts.MaxJitter * (1 - 0.7*(impact-1)/9)
	unit := geometry.Vec3{
		X: geometry.HashSigned(id, "x"),
		Y: geometry.HashSigned(id, "y"),
		Z: geometry.HashSigned(id, "z"),
	}
	// Each component is in [-1, 1), so |unit| < sqrt(3).
	return unit.Scale(scale / math.Sqrt(3))
}
