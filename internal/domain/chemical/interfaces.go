package chemical

import "context"

// SimilaritySearcher is the collaborator that produces ranked candidate
// targets for a chemical.  Implementations are black boxes; the pipeline
// treats their scores as opaque similarity values in [0, 1] and never
// recomputes them.
//
// Search returns candidates in the searcher's own ranking; callers re-sort
// with SortCandidates before truncation so ordering is deterministic even for
// searchers with unstable tie ordering.  An empty result is not an error.
type SimilaritySearcher interface {
	Search(ctx context.Context, chem Chemical, limit int) ([]CandidateTarget, error)
}
