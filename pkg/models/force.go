// Package models contains domain models for orion.
package models

import (
	"time"
)

// ForceType classifies a driving force.
type ForceType string

const (
	ForceTypeMegatrend  ForceType = "Megatrend"
	ForceTypeTrend      ForceType = "Trend"
	ForceTypeWeakSignal ForceType = "WeakSignal"
	ForceTypeWildcard   ForceType = "Wildcard"
	ForceTypeSignal     ForceType = "Signal"
)

// ForceTypes lists every force type in display order.
var ForceTypes = []ForceType{
	ForceTypeMegatrend,
	ForceTypeTrend,
	ForceTypeWeakSignal,
	ForceTypeWildcard,
	ForceTypeSignal,
}

// IsValid reports whether t is a known force type.
func (t ForceType) IsValid() bool {
	switch t {
	case ForceTypeMegatrend, ForceTypeTrend, ForceTypeWeakSignal, ForceTypeWildcard, ForceTypeSignal:
		return true
	}
	return false
}

// IsCurated reports whether forces of this type belong to the curated set.
// Raw signals are excluded from curated views.
func (t ForceType) IsCurated() bool {
	return t.IsValid() && t != ForceTypeSignal
}

// Steep is the STEEP dimension of a driving force.
type Steep string

const (
	SteepSocial        Steep = "Social"
	SteepTechnological Steep = "Technological"
	SteepEconomic      Steep = "Economic"
	SteepEnvironmental Steep = "Environmental"
	SteepPolitical     Steep = "Political"
	// SteepUnknown is used for forces without a category.
	SteepUnknown Steep = "Unknown"
)

// SteepCategories lists the STEEP dimensions in canonical order.
var SteepCategories = []Steep{
	SteepSocial,
	SteepTechnological,
	SteepEconomic,
	SteepEnvironmental,
	SteepPolitical,
}

// SteepRank returns the canonical position of s; unknown categories sort last.
func SteepRank(s Steep) int {
	for i, c := range SteepCategories {
		if c == s {
			return i
		}
	}
	return len(SteepCategories)
}

// NormalizeSteep maps an empty category to SteepUnknown.
func NormalizeSteep(s Steep) Steep {
	if s == "" {
		return SteepUnknown
	}
	return s
}

// Force is a driving force: one short strategic-intelligence record.
type Force struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Type      ForceType `json:"type"`
	Steep     Steep     `json:"steep"`
	Sentiment string    `json:"sentiment,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
	Impact    float64   `json:"impact"`
}

// ClampImpact bounds an impact score to the 1–10 scale.
func ClampImpact(impact float64) float64 {
	switch {
	case impact < 1:
		return 1
	case impact > 10:
		return 10
	}
	return impact
}

// ForceIndex indexes forces by id.
func ForceIndex(forces []*Force) map[string]*Force {
	idx := make(map[string]*Force, len(forces))
	for _, f := range forces {
		if f != nil {
			idx[f.ID] = f
		}
	}
	return idx
}
