package target

import (
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
)

// Worklist is the output of the extraction stage: the selected top-N
// candidate pairs of every chemical, and the deduplicated target list with
// provenance.  Selected keeps per-pair similarity scores for the final join;
// Targets drives the modeling stage.
type Worklist struct {
	// Selected holds every retained (chemical, target) pair in deterministic
	// order: chemical ID ascending, then rank ascending.
	Selected []chemical.CandidateTarget `json:"selected"`

	// Targets is the deduplicated target list, sorted by target ID.  This
	// ordering defines batch partition boundaries.
	Targets []UniqueTarget `json:"targets"`

	// Stats summarises the extraction.
	Stats ExtractionStats `json:"stats"`
}

// ExtractionStats summarises one extraction run.
type ExtractionStats struct {
	Chemicals        int     `json:"chemicals"`
	SkippedChemicals int     `json:"skipped_chemicals"`
	SelectedPairs    int     `json:"selected_pairs"`
	UniqueTargets    int     `json:"unique_targets"`
	MinSimilarity    float64 `json:"min_similarity"`
	MaxSimilarity    float64 `json:"max_similarity"`
	MeanSimilarity   float64 `json:"mean_similarity"`
}

// SimilarityFor returns the similarity score recorded for a (chemical,
// target) pair, or ok=false when the pair was not selected.
func (w *Worklist) SimilarityFor(chemicalID, targetID string) (float64, bool) {
	for _, c := range w.Selected {
		if c.ChemicalID == chemicalID && c.TargetID == targetID {
			return c.Similarity, true
		}
	}
	return 0, false
}

// TargetIDs returns the IDs of all unique targets in worklist order.
func (w *Worklist) TargetIDs() []string {
	ids := make([]string, len(w.Targets))
	for i, t := range w.Targets {
		ids[i] = t.ID
	}
	return ids
}
