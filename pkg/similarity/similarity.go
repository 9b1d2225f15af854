// Package similarity provides vector and text similarity utilities for driving forces.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/thebtf/orion/pkg/models"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrNonFinite is returned when a vector holds NaN or Inf.
var ErrNonFinite = errors.New("vector has non-finite component")

// Cosine calculates the cosine similarity of two vectors.
// Returns 0 when either vector is empty or has zero magnitude.
// Vectors of different lengths are malformed input and produce ErrDimensionMismatch;
// vectors holding NaN or Inf produce ErrNonFinite.
// Cosine(v, v) is exactly 1 for any nonzero finite v, and Cosine(a, b) == Cosine(b, a).
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	// Scale each vector by its largest component so the squared norms cannot overflow.
	maxA, err := maxAbs(a)
	if err != nil {
		return 0, err
	}
	maxB, err := maxAbs(b)
	if err != nil {
		return 0, err
	}
	if maxA == 0 || maxB == 0 {
		return 0, nil
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := a[i]/maxA, b[i]/maxB
		dot += x * y
		normA += x * x
		normB += y * y
	}

	// One square root of the product: sqrt(fl(n*n)) == n, so sim(v, v) divides n by n.
	sim := dot / math.Sqrt(normA*normB)
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}

func maxAbs(v []float64) (float64, error) {
	m := 0.0
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: component %d is %v", ErrNonFinite, i, x)
		}
		if ax := math.Abs(x); ax > m {
			m = ax
		}
	}
	return m, nil
}

// PairScore is the heuristic similarity of two forces in the same cluster:
// same type +0.3, same STEEP category +0.2, and up to +0.5 for close impact.
func PairScore(a, b *models.Force) float64 {
	score := 0.0
	if a.Type != "" && a.Type == b.Type {
		score += 0.3
	}
	if a.Steep != "" && a.Steep == b.Steep {
		score += 0.2
	}
	diff := math.Abs(models.ClampImpact(a.Impact) - models.ClampImpact(b.Impact))
	score += 0.5 * (1 - diff/9)
	return score
}

// ExtractForceTerms extracts meaningful terms from a force's title and text.
func ExtractForceTerms(f *models.Force) map[string]bool {
	terms := make(map[string]bool)
	addTerms(terms, f.Title)
	addTerms(terms, f.Text)
	return terms
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true,
	"this": true, "that": true, "these": true, "those": true,
	"and": true, "or": true, "but": true, "if": true, "then": true,
	"for": true, "from": true, "with": true, "about": true, "into": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "by": true,
	"it": true, "its": true, "which": true, "who": true, "what": true,
	"when": true, "where": true, "how": true, "why": true, "more": true,
	"new": true, "their": true, "over": true, "across": true,
}

// tokenize splits text on anything that is not a letter or digit and drops
// short words and stop words.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if len(w) >= 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

// addTerms tokenizes text and adds meaningful terms to the set.
func addTerms(terms map[string]bool, text string) {
	for _, word := range tokenize(text) {
		terms[word] = true
	}
}

// JaccardSimilarity calculates the Jaccard similarity between two term sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func JaccardSimilarity(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// SuggestTitle builds a "Term & Term" cluster label from the titles of its forces.
// Terms are ranked by frequency, then length, then alphabetically so the result is
// stable for a given set of titles. Falls back to "Cluster <n>".
func SuggestTitle(titles []string, fallbackIndex int) string {
	counts := make(map[string]int)
	for _, t := range titles {
		seen := make(map[string]bool)
		for _, w := range tokenize(t) {
			if len(w) <= 3 || seen[w] {
				continue
			}
			seen[w] = true
			counts[w]++
		}
	}

	type candidate struct {
		term  string
		count int
	}
	candidates := make([]candidate, 0, len(counts))
	for term, n := range counts {
		candidates = append(candidates, candidate{term: term, count: n})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		if len(candidates[i].term) != len(candidates[j].term) {
			return len(candidates[i].term) > len(candidates[j].term)
		}
		return candidates[i].term < candidates[j].term
	})

	switch {
	case len(candidates) >= 2:
		return titleCase(candidates[0].term) + " & " + titleCase(candidates[1].term)
	case len(candidates) == 1:
		return titleCase(candidates[0].term)
	}
	return fmt.Sprintf("Cluster %d", fallbackIndex)
}

// IsGenericLabel reports whether a label is an engine placeholder such as "Cluster 7".
func IsGenericLabel(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return true
	}
	rest, ok := strings.CutPrefix(strings.ToLower(label), "cluster")
	if !ok {
		return false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return true
	}
	for _, r := range rest {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(word)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
