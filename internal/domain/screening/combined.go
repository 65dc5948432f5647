package screening

import "sort"

// ─────────────────────────────────────────────────────────────────────────────
// Combined hits
// ─────────────────────────────────────────────────────────────────────────────

// CombinedHit is one fully-joined (chemical, target) pair: the similarity
// score from extraction, the raw and normalized screening scores, and the
// weighted combination.  Rank is 1-based and assigned after sorting.
type CombinedHit struct {
	ChemicalID          string  `json:"chemical_id"`
	TargetID            string  `json:"target_id"`
	SimilarityScore     float64 `json:"similarity_score"`
	ScreeningScore      float64 `json:"screening_score"`
	NormalizedScreening float64 `json:"normalized_screening"`
	CombinedScore       float64 `json:"combined_score"`
	Rank                int     `json:"rank"`
}

// IncompletePair is a cross-product pair that could not be fully joined,
// surfaced in reports with the stage and reason that broke it.  Silent
// dropping of pairs is not allowed.
type IncompletePair struct {
	ChemicalID string `json:"chemical_id"`
	TargetID   string `json:"target_id"`
	// Stage is "modeling" or "screening", whichever failed first.
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// NormalizeScores min-max normalizes the raw screening scores of hits in
// place.  When all raw scores are equal every hit gets 0.5, keeping the
// combined score well-defined for degenerate runs.
func NormalizeScores(hits []CombinedHit) {
	if len(hits) == 0 {
		return
	}
	min, max := hits[0].ScreeningScore, hits[0].ScreeningScore
	for _, h := range hits[1:] {
		if h.ScreeningScore < min {
			min = h.ScreeningScore
		}
		if h.ScreeningScore > max {
			max = h.ScreeningScore
		}
	}
	span := max - min
	for i := range hits {
		if span == 0 {
			hits[i].NormalizedScreening = 0.5
			continue
		}
		hits[i].NormalizedScreening = (hits[i].ScreeningScore - min) / span
	}
}

// Combine computes the weighted combined score for every hit.  Weights are
// validated at config load time: non-negative, summing to 1.0.
func Combine(hits []CombinedHit, similarityWeight, screeningWeight float64) {
	for i := range hits {
		hits[i].CombinedScore = similarityWeight*hits[i].SimilarityScore +
			screeningWeight*hits[i].NormalizedScreening
	}
}

// SortHits orders hits by the four-level deterministic tie-break:
//
//  1. combined score, descending
//  2. raw screening score, descending
//  3. similarity score, descending
//  4. (chemical ID, target ID), ascending
//
// Level 4 makes the ordering total, so equal-scored hits never swap between
// runs.  Rank fields are rewritten 1..n after sorting.
func SortHits(hits []CombinedHit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.ScreeningScore != b.ScreeningScore {
			return a.ScreeningScore > b.ScreeningScore
		}
		if a.SimilarityScore != b.SimilarityScore {
			return a.SimilarityScore > b.SimilarityScore
		}
		if a.ChemicalID != b.ChemicalID {
			return a.ChemicalID < b.ChemicalID
		}
		return a.TargetID < b.TargetID
	})
	for i := range hits {
		hits[i].Rank = i + 1
	}
}

// TopK returns the first k hits of a ranked slice, or all of them when fewer
// exist.  The input must already be ranked by SortHits.
func TopK(hits []CombinedHit, k int) []CombinedHit {
	if len(hits) <= k {
		return hits
	}
	return hits[:k]
}
