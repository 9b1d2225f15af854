package layout

import (
	"fmt"
	"math"
	"sort"

	"github.com/thebtf/orion/pkg/geometry"
	"github.com/thebtf/orion/pkg/similarity"
)

// NetworkNode is one cluster in the cluster network.
type NetworkNode struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Algorithm  string        `json:"algorithm"`
	Method     string        `json:"method"`
	Steep      string        `json:"steep"`
	Color      string        `json:"color"`
	ForceIDs   []string      `json:"forceIds"`
	Position   geometry.Vec3 `json:"position"`
	Size       int           `json:"size"`
	Radius     float64       `json:"radius"`
	Silhouette float64       `json:"silhouette"`
}

// NetworkEdge links two clusters that share forces or have similar centroids.
type NetworkEdge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SharedForces int     `json:"sharedForces"`
	Similarity   float64 `json:"similarity"`
	Weight       float64 `json:"weight"`
}

// NetworkMetrics summarizes a cluster network.
type NetworkMetrics struct {
	TotalClusters    int     `json:"totalClusters"`
	TotalForces      int     `json:"totalForces"`
	IsolatedClusters int     `json:"isolatedClusters"`
	TotalEdges       int     `json:"totalEdges"`
	AvgClusterSize   float64 `json:"avgClusterSize"`
	AvgSilhouette    float64 `json:"avgSilhouette"`
	Density          float64 `json:"density"`
}

// Network is the cluster-level graph of a project.
type Network struct {
	Nodes        []NetworkNode   `json:"nodes"`
	Edges        []NetworkEdge   `json:"edges"`
	Metrics      NetworkMetrics  `json:"metrics"`
	LayoutBounds geometry.Bounds `json:"layoutBounds"`
	Strategy     Strategy        `json:"strategy"`
}

// Network builds the cluster network. Output depends only on the set of
// clusters and forces, not on their order.
func (e *Engine) Network(in Input, opts ViewOptions) (*Network, error) {
	v := prepare(in, opts)
	n := len(v.clusters)

	net := &Network{
		Nodes:    make([]NetworkNode, 0, n),
		Edges:    make([]NetworkEdge, 0),
		Strategy: e.SelectStrategy(n, opts.Layout3D),
	}
	net.Metrics.TotalForces = v.totalForces()
	if n == 0 {
		return net, nil
	}

	colorIndex := algorithmColorIndex(v.clusters)
	maxSize := 0
	for _, c := range v.clusters {
		if s := c.size(); s > maxSize {
			maxSize = s
		}
	}

	positions := e.place(v.clusters, net.Strategy)
	silSum := 0.0
	sizeSum := 0
	for i, c := range v.clusters {
		sil := c.cluster.Quality.Silhouette
		net.Nodes = append(net.Nodes, NetworkNode{
			ID:         c.cluster.ID,
			Label:      c.cluster.Label,
			Algorithm:  c.cluster.Algorithm,
			Method:     c.cluster.Method,
			Steep:      string(c.steep),
			Color:      ColorFor(colorIndex[groupKey(c.cluster)], QualityAlpha(sil)),
			ForceIDs:   append([]string{}, c.members...),
			Position:   positions[i],
			Size:       c.size(),
			Radius:     e.nodeRadius(c.size(), maxSize),
			Silhouette: sil,
		})
		silSum += sil
		sizeSum += c.size()
	}

	degree := make([]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			edge, ok, err := e.clusterEdge(v.clusters[i], v.clusters[j])
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			net.Edges = append(net.Edges, edge)
			degree[i]++
			degree[j]++
		}
	}

	for _, d := range degree {
		if d == 0 {
			net.Metrics.IsolatedClusters++
		}
	}
	net.Metrics.TotalClusters = n
	net.Metrics.TotalEdges = len(net.Edges)
	net.Metrics.AvgClusterSize = geometry.Round(float64(sizeSum)/float64(n), 4)
	net.Metrics.AvgSilhouette = geometry.Round(silSum/float64(n), 4)
	if n > 1 {
		net.Metrics.Density = geometry.Round(2*float64(len(net.Edges))/float64(n*(n-1)), 4)
	}
	net.LayoutBounds = geometry.BoundsOf(positions)
	return net, nil
}

func (e *Engine) clusterEdge(a, b *clusterView) (NetworkEdge, bool, error) {
	shared := sharedCount(a.members, b.members)
	sim := 0.0
	if len(a.cluster.Centroid) > 0 && len(b.cluster.Centroid) > 0 {
		s, err := similarity.Cosine(a.cluster.Centroid, b.cluster.Centroid)
		if err != nil {
			return NetworkEdge{}, false, fmt.Errorf("centroids of clusters %s and %s: %w", a.cluster.ID, b.cluster.ID, err)
		}
		sim = s
	}
	if shared == 0 && sim <= *e.opts.SimilarityThreshold {
		return NetworkEdge{}, false, nil
	}
	return NetworkEdge{
		Source:       a.cluster.ID,
		Target:       b.cluster.ID,
		SharedForces: shared,
		Similarity:   geometry.Round(sim, 4),
		Weight:       geometry.Round(float64(shared)+sim*10, 4),
	}, true, nil
}

// nodeRadius scales node size by the square root of the cluster size so area
// tracks member count.
func (e *Engine) nodeRadius(size, maxSize int) float64 {
	if maxSize <= 0 {
		return e.opts.MinNodeSize
	}
	frac := math.Sqrt(float64(size) / float64(maxSize))
	return geometry.Round(e.opts.MinNodeSize+(e.opts.MaxNodeSize-e.opts.MinNodeSize)*frac, 3)
}

// algorithmColorIndex assigns palette slots to algorithms in sorted order.
func algorithmColorIndex(clusters []*clusterView) map[string]int {
	seen := make(map[string]struct{})
	for _, c := range clusters {
		seen[groupKey(c.cluster)] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]int, len(keys))
	for i, k := range keys {
		out[k] = i
	}
	return out
}

func sharedCount(a, b []string) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	n := 0
	for _, id := range b {
		if _, ok := set[id]; ok {
			n++
			delete(set, id)
		}
	}
	return n
}
