// Package layout turns persisted clusters and forces into deterministic
// presentation geometry: cluster networks, force scatter networks, radar
// offsets and aggregate views. Everything here is pure and synchronous.
package layout

// Options holds every threshold and radius used by the layout strategies.
// Zero or negative counts and radii take the value from DefaultOptions. The
// two similarity thresholds are pointers because 0 and negative cosines are
// meaningful cutoffs; only nil takes the default.
type Options struct {
	// Node-count thresholds selecting the 3D strategy.
	SphericalMaxNodes int `mapstructure:"spherical_max_nodes" yaml:"spherical_max_nodes"`
	GroupedMaxNodes   int `mapstructure:"grouped_max_nodes" yaml:"grouped_max_nodes"`

	SphereRadius      float64 `mapstructure:"sphere_radius" yaml:"sphere_radius"`
	GroupRadius       float64 `mapstructure:"group_radius" yaml:"group_radius"`
	GroupMemberRadius float64 `mapstructure:"group_member_radius" yaml:"group_member_radius"`
	OuterRadius       float64 `mapstructure:"outer_radius" yaml:"outer_radius"`
	ScatterRadius     float64 `mapstructure:"scatter_radius" yaml:"scatter_radius"`
	HeightScale       float64 `mapstructure:"height_scale" yaml:"height_scale"`

	MaxJitter      float64 `mapstructure:"max_jitter" yaml:"max_jitter"`
	ClusterRadius  float64 `mapstructure:"cluster_radius" yaml:"cluster_radius"`
	FallbackRadius float64 `mapstructure:"fallback_radius" yaml:"fallback_radius"`

	SimilarityThreshold *float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	ForceEdgeThreshold  *float64 `mapstructure:"force_edge_threshold" yaml:"force_edge_threshold"`
	MaxForceEdges       int      `mapstructure:"max_force_edges" yaml:"max_force_edges"`

	// Radar segment bounds, in degrees and as a fraction of the per-group slot.
	RadarMaxSegment   float64 `mapstructure:"radar_max_segment" yaml:"radar_max_segment"`
	RadarSlotFraction float64 `mapstructure:"radar_slot_fraction" yaml:"radar_slot_fraction"`

	MinNodeSize float64 `mapstructure:"min_node_size" yaml:"min_node_size"`
	MaxNodeSize float64 `mapstructure:"max_node_size" yaml:"max_node_size"`
}

// DefaultOptions returns the standard layout parameters.
func DefaultOptions() Options {
	return Options{
		SphericalMaxNodes:   10,
		GroupedMaxNodes:     50,
		SphereRadius:        100,
		GroupRadius:         150,
		GroupMemberRadius:   40,
		OuterRadius:         250,
		ScatterRadius:       60,
		HeightScale:         50,
		MaxJitter:           8,
		ClusterRadius:       100,
		FallbackRadius:      160,
		SimilarityThreshold: Threshold(0.3),
		ForceEdgeThreshold:  Threshold(0.4),
		MaxForceEdges:       5000,
		RadarMaxSegment:     30,
		RadarSlotFraction:   0.8,
		MinNodeSize:         10,
		MaxNodeSize:         50,
	}
}

// Threshold returns a pointer for the SimilarityThreshold and
// ForceEdgeThreshold fields.
func Threshold(v float64) *float64 {
	return &v
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setFloat := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	setInt(&o.SphericalMaxNodes, d.SphericalMaxNodes)
	setInt(&o.GroupedMaxNodes, d.GroupedMaxNodes)
	setInt(&o.MaxForceEdges, d.MaxForceEdges)
	setFloat(&o.SphereRadius, d.SphereRadius)
	setFloat(&o.GroupRadius, d.GroupRadius)
	setFloat(&o.GroupMemberRadius, d.GroupMemberRadius)
	setFloat(&o.OuterRadius, d.OuterRadius)
	setFloat(&o.ScatterRadius, d.ScatterRadius)
	setFloat(&o.HeightScale, d.HeightScale)
	setFloat(&o.MaxJitter, d.MaxJitter)
	setFloat(&o.ClusterRadius, d.ClusterRadius)
	setFloat(&o.FallbackRadius, d.FallbackRadius)
	if o.SimilarityThreshold == nil {
		o.SimilarityThreshold = d.SimilarityThreshold
	}
	if o.ForceEdgeThreshold == nil {
		o.ForceEdgeThreshold = d.ForceEdgeThreshold
	}
	setFloat(&o.RadarMaxSegment, d.RadarMaxSegment)
	setFloat(&o.RadarSlotFraction, d.RadarSlotFraction)
	setFloat(&o.MinNodeSize, d.MinNodeSize)
	setFloat(&o.MaxNodeSize, d.MaxNodeSize)
	if o.GroupedMaxNodes < o.SphericalMaxNodes {
		o.GroupedMaxNodes = o.SphericalMaxNodes
	}
	return o
}

// Engine computes layouts with a fixed set of options.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// New creates a layout engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}
