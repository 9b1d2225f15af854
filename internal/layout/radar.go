package layout

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/goccy/go-json"

	"github.com/thebtf/orion/pkg/geometry"
	"github.com/thebtf/orion/pkg/models"
)

// RadarForce is one force on the radar with its angular offset, in degrees,
// from the center of its group's segment.
type RadarForce struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Steep       string  `json:"steep"`
	Sentiment   string  `json:"sentiment"`
	Impact      float64 `json:"impact"`
	ThetaOffset float64 `json:"thetaOffset"`
}

// RadarGroup is one cluster, or STEEP group when no clusters exist.
type RadarGroup struct {
	ClusterID string       `json:"clusterId"`
	Forces    []RadarForce `json:"forces"`
	AvgImpact float64      `json:"avgImpact"`
}

// RadarData maps group labels to groups and keeps insertion order when
// serialized.
type RadarData struct {
	labels []string
	groups map[string]*RadarGroup
}

func newRadarData() *RadarData {
	return &RadarData{groups: make(map[string]*RadarGroup)}
}

// add stores g under label, suffixing " (n)" when the label is taken.
func (r *RadarData) add(label string, g *RadarGroup) {
	key := label
	for n := 2; ; n++ {
		if _, taken := r.groups[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s (%d)", label, n)
	}
	r.labels = append(r.labels, key)
	r.groups[key] = g
}

// Labels returns the group labels in order.
func (r *RadarData) Labels() []string {
	return append([]string(nil), r.labels...)
}

// Get returns the group stored under label.
func (r *RadarData) Get(label string) (*RadarGroup, bool) {
	g, ok := r.groups[label]
	return g, ok
}

// Len returns the number of groups.
func (r *RadarData) Len() int {
	return len(r.labels)
}

// MarshalJSON writes the groups as a JSON object in label order.
func (r *RadarData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range r.labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.groups[label])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type radarSource struct {
	label     string
	clusterID string
	forces    []*models.Force
}

// Radar spreads each group's forces across an angular segment by impact rank.
// Groups are the visible clusters, or STEEP categories when there are none.
func (e *Engine) Radar(in Input, opts ViewOptions) *RadarData {
	v := prepare(in, opts)

	var sources []radarSource
	if len(v.clusters) > 0 {
		for _, c := range v.clusters {
			src := radarSource{label: c.cluster.Label, clusterID: c.cluster.ID}
			for _, id := range c.members {
				if f, ok := v.index[id]; ok {
					src.forces = append(src.forces, f)
				}
			}
			sources = append(sources, src)
		}
	} else {
		keys, groups := steepGroups(v.forces)
		for _, s := range keys {
			sources = append(sources, radarSource{
				label:     string(s),
				clusterID: fallbackPrefix + string(s),
				forces:    groups[s],
			})
		}
	}

	out := newRadarData()
	if len(sources) == 0 {
		return out
	}
	segment := e.RadarSegment(len(sources))
	for _, src := range sources {
		out.add(src.label, radarGroup(src, segment))
	}
	return out
}

// RadarSegment returns the angular width, in degrees, available to each of n groups.
func (e *Engine) RadarSegment(n int) float64 {
	if n <= 0 {
		return e.opts.RadarMaxSegment
	}
	return math.Min(e.opts.RadarMaxSegment, e.opts.RadarSlotFraction*360/float64(n))
}

func radarGroup(src radarSource, segment float64) *RadarGroup {
	forces := append([]*models.Force(nil), src.forces...)
	sort.Slice(forces, func(i, j int) bool {
		ii, ij := models.ClampImpact(forces[i].Impact), models.ClampImpact(forces[j].Impact)
		if ii != ij {
			return ii > ij
		}
		return forces[i].ID < forces[j].ID
	})

	g := &RadarGroup{ClusterID: src.clusterID, Forces: make([]RadarForce, 0, len(forces))}
	m := len(forces)
	sum := 0.0
	for k, f := range forces {
		offset := 0.0
		if m > 1 {
			offset = -segment/2 + segment*float64(k)/float64(m-1)
		}
		impact := models.ClampImpact(f.Impact)
		sum += impact
		g.Forces = append(g.Forces, RadarForce{
			ID:          f.ID,
			Title:       f.Title,
			Type:        string(f.Type),
			Steep:       string(models.NormalizeSteep(f.Steep)),
			Sentiment:   f.Sentiment,
			Impact:      impact,
			ThetaOffset: geometry.Round(offset, 6),
		})
	}
	if m > 0 {
		g.AvgImpact = geometry.Round(sum/float64(m), 4)
	}
	return g
}
