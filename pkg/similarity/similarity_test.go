package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/orion/pkg/models"
)

type SimilaritySuite struct {
	suite.Suite
}

func TestSimilaritySuite(t *testing.T) {
	suite.Run(t, new(SimilaritySuite))
}

func (s *SimilaritySuite) TestCosine_TableDrivenCases() {
	tests := []struct {
		name      string
		a         []float64
		b         []float64
		expected  float64
		tolerance float64
	}{
		{name: "identical vectors", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, expected: 1.0, tolerance: 1e-12},
		{name: "opposite vectors", a: []float64{1, 2, 3}, b: []float64{-1, -2, -3}, expected: -1.0, tolerance: 1e-12},
		{name: "orthogonal vectors", a: []float64{1, 0}, b: []float64{0, 1}, expected: 0.0, tolerance: 1e-12},
		{name: "empty slices", a: []float64{}, b: []float64{}, expected: 0.0, tolerance: 1e-12},
		{name: "zero vector", a: []float64{0, 0, 0}, b: []float64{1, 2, 3}, expected: 0.0, tolerance: 1e-12},
		{name: "known numeric", a: []float64{1, 2, 3}, b: []float64{4, 5, 6}, expected: 32.0 / math.Sqrt(1078), tolerance: 1e-12},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			got, err := Cosine(tt.a, tt.b)
			s.Require().NoError(err)
			s.InDelta(tt.expected, got, tt.tolerance)
		})
	}
}

func (s *SimilaritySuite) TestCosine_DimensionMismatch() {
	_, err := Cosine([]float64{1, 2, 3}, []float64{1, 2})
	s.Require().Error(err)
	s.ErrorIs(err, ErrDimensionMismatch)
}

func (s *SimilaritySuite) TestCosine_SelfIsOneAndSymmetric() {
	vectors := [][]float64{
		{0.1, 0.7, -0.2, 3.3},
		{1e-3, 2e-3, 5},
		{-4, 0, 9, 0.25, 1},
		{0.3333333, 0.6666667, 0.1111111},
		{1, 1},
		{1, 1, 1, 1, 1},
		{1e200, 1e200},
		{-1e-200, 3e-200},
		{1e308, -1e308, 5},
	}
	for _, v := range vectors {
		self, err := Cosine(v, v)
		s.Require().NoError(err)
		s.Equal(1.0, self, "sim(%v, %v)", v, v)
	}

	a := []float64{0.2, -1.4, 3.1}
	b := []float64{1.7, 0.4, -0.9}
	ab, err := Cosine(a, b)
	s.Require().NoError(err)
	ba, err := Cosine(b, a)
	s.Require().NoError(err)
	s.Equal(ab, ba)
}

func (s *SimilaritySuite) TestCosine_LargeMagnitudes() {
	got, err := Cosine([]float64{1e200, 0}, []float64{0, 1e200})
	s.Require().NoError(err)
	s.Equal(0.0, got)

	got, err = Cosine([]float64{1e200, 1e200}, []float64{-1e200, -1e200})
	s.Require().NoError(err)
	s.Equal(-1.0, got)

	got, err = Cosine([]float64{1e300, 2e300}, []float64{2, 4})
	s.Require().NoError(err)
	s.InDelta(1.0, got, 1e-12)
}

func (s *SimilaritySuite) TestCosine_NonFinite() {
	for _, v := range [][]float64{{math.NaN(), 1}, {math.Inf(1), 1}, {1, math.Inf(-1)}} {
		_, err := Cosine(v, []float64{1, 1})
		s.ErrorIs(err, ErrNonFinite)
		_, err = Cosine([]float64{1, 1}, v)
		s.ErrorIs(err, ErrNonFinite)
	}
}

func (s *SimilaritySuite) TestPairScore() {
	a := &models.Force{Type: models.ForceTypeTrend, Steep: models.SteepSocial, Impact: 8}
	b := &models.Force{Type: models.ForceTypeTrend, Steep: models.SteepSocial, Impact: 8}
	s.InDelta(1.0, PairScore(a, b), 1e-12)

	c := &models.Force{Type: models.ForceTypeWildcard, Steep: models.SteepPolitical, Impact: 1}
	d := &models.Force{Type: models.ForceTypeTrend, Steep: models.SteepSocial, Impact: 10}
	s.InDelta(0.0, PairScore(c, d), 1e-12)

	e := &models.Force{Type: models.ForceTypeTrend, Steep: models.SteepEconomic, Impact: 5.5}
	s.InDelta(0.3+0.5*(1-2.5/9), PairScore(a, e), 1e-12)
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		set1     map[string]bool
		set2     map[string]bool
		expected float64
	}{
		{
			name:     "identical sets",
			set1:     map[string]bool{"a": true, "b": true, "c": true},
			set2:     map[string]bool{"a": true, "b": true, "c": true},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			set1:     map[string]bool{"a": true, "b": true},
			set2:     map[string]bool{"c": true, "d": true},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			set1:     map[string]bool{"a": true, "b": true, "c": true},
			set2:     map[string]bool{"b": true, "c": true, "d": true},
			expected: 0.5, // intersection=2, union=4
		},
		{
			name:     "empty sets",
			set1:     map[string]bool{},
			set2:     map[string]bool{},
			expected: 1.0,
		},
		{
			name:     "one empty set",
			set1:     map[string]bool{"a": true},
			set2:     map[string]bool{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := JaccardSimilarity(tt.set1, tt.set2)
			assert.InDelta(t, tt.expected, result, 0.001)
		})
	}
}

func TestExtractForceTerms(t *testing.T) {
	f := &models.Force{
		Title: "Quantum computing breakthroughs",
		Text:  "The race for quantum advantage is reshaping cryptography and the chip supply chain",
	}

	terms := ExtractForceTerms(f)

	assert.Contains(t, terms, "quantum")
	assert.Contains(t, terms, "computing")
	assert.Contains(t, terms, "cryptography")
	assert.Contains(t, terms, "chip")

	assert.NotContains(t, terms, "the")
	assert.NotContains(t, terms, "and")
	assert.NotContains(t, terms, "is")
}

func TestSuggestTitle(t *testing.T) {
	titles := []string{
		"Battery storage at grid scale",
		"Solid-state battery chemistry",
		"Grid storage for renewables",
		"Battery recycling loops",
	}
	assert.Equal(t, "Battery & Storage", SuggestTitle(titles, 3))
	// Stable regardless of input order.
	reversed := []string{titles[3], titles[2], titles[1], titles[0]}
	assert.Equal(t, SuggestTitle(titles, 3), SuggestTitle(reversed, 3))

	assert.Equal(t, "Cluster 7", SuggestTitle(nil, 7))
	assert.Equal(t, "Fusion", SuggestTitle([]string{"Fusion"}, 1))
}

func TestIsGenericLabel(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"Cluster 12", true},
		{"cluster", true},
		{"Cluster of Things", false},
		{"Energy & Storage", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsGenericLabel(tt.label), "label %q", tt.label)
	}
}
