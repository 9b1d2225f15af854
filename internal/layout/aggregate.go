package layout

import (
	"sort"
	"time"

	"github.com/thebtf/orion/pkg/geometry"
	"github.com/thebtf/orion/pkg/models"
)

// HeatmapRow counts a cluster's forces per STEEP category.
type HeatmapRow struct {
	ClusterID string         `json:"clusterId"`
	Label     string         `json:"label"`
	Counts    map[string]int `json:"counts"`
	Total     int            `json:"total"`
}

// Heatmap is the cluster × STEEP count matrix.
type Heatmap struct {
	Categories []string     `json:"categories"`
	Rows       []HeatmapRow `json:"rows"`
}

// Heatmap counts each cluster's visible forces by STEEP category.
func (e *Engine) Heatmap(in Input, opts ViewOptions) *Heatmap {
	v := prepare(in, opts)
	seen := make(map[models.Steep]struct{})
	h := &Heatmap{Categories: make([]string, 0), Rows: make([]HeatmapRow, 0, len(v.clusters))}
	for _, c := range v.clusters {
		row := HeatmapRow{ClusterID: c.cluster.ID, Label: c.cluster.Label, Counts: make(map[string]int)}
		for _, id := range c.members {
			f, ok := v.index[id]
			if !ok {
				continue
			}
			s := models.NormalizeSteep(f.Steep)
			seen[s] = struct{}{}
			row.Counts[string(s)]++
			row.Total++
		}
		h.Rows = append(h.Rows, row)
	}
	cats := make([]models.Steep, 0, len(seen))
	for s := range seen {
		cats = append(cats, s)
	}
	sort.Slice(cats, func(i, j int) bool { return steepLess(cats[i], cats[j]) })
	for _, s := range cats {
		h.Categories = append(h.Categories, string(s))
	}
	return h
}

// TreemapNode is a method (with children) or a cluster leaf.
type TreemapNode struct {
	Name      string        `json:"name"`
	ID        string        `json:"id,omitempty"`
	Children  []TreemapNode `json:"children,omitempty"`
	Value     int           `json:"value"`
	AvgImpact float64       `json:"avgImpact"`
}

// Treemap groups clusters by method, each leaf sized by force count.
func (e *Engine) Treemap(in Input, opts ViewOptions) *TreemapNode {
	v := prepare(in, opts)
	byMethod := make(map[string][]TreemapNode)
	for _, c := range v.clusters {
		method := c.cluster.Method
		if method == "" {
			method = groupKey(c.cluster)
		}
		byMethod[method] = append(byMethod[method], TreemapNode{
			Name:      c.cluster.Label,
			ID:        c.cluster.ID,
			Value:     c.size(),
			AvgImpact: avgImpact(c.members, v.index),
		})
	}
	methods := make([]string, 0, len(byMethod))
	for m := range byMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	root := &TreemapNode{Name: "clusters", Children: make([]TreemapNode, 0, len(methods))}
	for _, m := range methods {
		node := TreemapNode{Name: m, Children: byMethod[m]}
		weighted := 0.0
		for _, leaf := range node.Children {
			node.Value += leaf.Value
			weighted += leaf.AvgImpact * float64(leaf.Value)
		}
		if node.Value > 0 {
			node.AvgImpact = geometry.Round(weighted/float64(node.Value), 4)
		}
		root.Value += node.Value
		root.Children = append(root.Children, node)
	}
	return root
}

func avgImpact(ids []string, index map[string]*models.Force) float64 {
	sum, n := 0.0, 0
	for _, id := range ids {
		if f, ok := index[id]; ok {
			sum += models.ClampImpact(f.Impact)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return geometry.Round(sum/float64(n), 4)
}

// TimelinePoint is one clustering run.
type TimelinePoint struct {
	CreatedAt         time.Time `json:"createdAt"`
	JobID             string    `json:"jobId"`
	Algorithm         string    `json:"algorithm"`
	ReportID          int64     `json:"reportId"`
	ClusterCount      int       `json:"clusterCount"`
	ForceCount        int       `json:"forceCount"`
	AverageSilhouette float64   `json:"averageSilhouette"`
	DaviesBouldin     float64   `json:"daviesBouldin"`
	CalinskiHarabasz  float64   `json:"calinskiHarabasz"`
	ExecutionTimeMs   int64     `json:"executionTimeMs"`
}

// QualityTimeline lists clustering reports oldest first. The method filter
// matches a report's algorithm.
func (e *Engine) QualityTimeline(in Input, opts ViewOptions) []TimelinePoint {
	out := make([]TimelinePoint, 0, len(in.Reports))
	for _, r := range in.Reports {
		if r == nil || (opts.Method != "" && r.Algorithm != opts.Method) {
			continue
		}
		out = append(out, TimelinePoint{
			CreatedAt:         r.CreatedAt,
			JobID:             r.JobID,
			Algorithm:         r.Algorithm,
			ReportID:          r.ID,
			ClusterCount:      r.ClusterCount,
			ForceCount:        r.ForceCount,
			AverageSilhouette: r.Quality.AverageSilhouette,
			DaviesBouldin:     r.Quality.DaviesBouldinIndex,
			CalinskiHarabasz:  r.Quality.CalinskiHarabaszIndex,
			ExecutionTimeMs:   r.ExecutionTimeMs,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ReportID < out[j].ReportID
	})
	return out
}

// Assignment is one force and the cluster holding it, if any.
type Assignment struct {
	ForceID   string `json:"forceId"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	ClusterID string `json:"clusterId,omitempty"`
	Label     string `json:"label,omitempty"`
}

// AssignmentMatrix lists per-force assignments and counts forces by type and cluster.
type AssignmentMatrix struct {
	Assignments []Assignment              `json:"assignments"`
	Counts      map[string]map[string]int `json:"counts"`
	Unassigned  int                       `json:"unassigned"`
}

// AssignmentMatrix maps each visible force to its cluster.
func (e *Engine) AssignmentMatrix(in Input, opts ViewOptions) *AssignmentMatrix {
	v := prepare(in, opts)
	assigned := v.assignments()
	m := &AssignmentMatrix{
		Assignments: make([]Assignment, 0, len(v.forces)),
		Counts:      make(map[string]map[string]int),
	}
	for _, f := range v.forces {
		a := Assignment{ForceID: f.ID, Title: f.Title, Type: string(f.Type)}
		if c, ok := assigned[f.ID]; ok {
			a.ClusterID = c.cluster.ID
			a.Label = c.cluster.Label
			row := m.Counts[a.Type]
			if row == nil {
				row = make(map[string]int)
				m.Counts[a.Type] = row
			}
			row[a.ClusterID]++
		} else {
			m.Unassigned++
		}
		m.Assignments = append(m.Assignments, a)
	}
	return m
}

// Dashboard is the project overview.
type Dashboard struct {
	LatestReport    *TimelinePoint `json:"latestReport,omitempty"`
	ByType          map[string]int `json:"byType"`
	BySteep         map[string]int `json:"bySteep"`
	ByMethod        map[string]int `json:"byMethod"`
	TotalForces     int            `json:"totalForces"`
	TotalClusters   int            `json:"totalClusters"`
	AssignedForces  int            `json:"assignedForces"`
	CoveragePercent float64        `json:"coveragePercent"`
	AvgSilhouette   float64        `json:"avgSilhouette"`
	AvgImpact       float64        `json:"avgImpact"`
}

// Dashboard totals forces and clusters and reports assignment coverage.
func (e *Engine) Dashboard(in Input, opts ViewOptions) *Dashboard {
	v := prepare(in, opts)
	d := &Dashboard{
		ByType:        make(map[string]int),
		BySteep:       make(map[string]int),
		ByMethod:      make(map[string]int),
		TotalForces:   len(v.forces),
		TotalClusters: len(v.clusters),
	}
	impactSum := 0.0
	for _, f := range v.forces {
		d.ByType[string(f.Type)]++
		d.BySteep[string(models.NormalizeSteep(f.Steep))]++
		impactSum += models.ClampImpact(f.Impact)
	}
	silSum := 0.0
	for _, c := range v.clusters {
		d.ByMethod[groupKey(c.cluster)]++
		silSum += c.cluster.Quality.Silhouette
	}
	assigned := v.assignments()
	for _, f := range v.forces {
		if _, ok := assigned[f.ID]; ok {
			d.AssignedForces++
		}
	}
	if d.TotalForces > 0 {
		d.CoveragePercent = geometry.Round(100*float64(d.AssignedForces)/float64(d.TotalForces), 2)
		d.AvgImpact = geometry.Round(impactSum/float64(d.TotalForces), 4)
	}
	if d.TotalClusters > 0 {
		d.AvgSilhouette = geometry.Round(silSum/float64(d.TotalClusters), 4)
	}
	if tl := e.QualityTimeline(in, opts); len(tl) > 0 {
		latest := tl[len(tl)-1]
		d.LatestReport = &latest
	}
	return d
}
