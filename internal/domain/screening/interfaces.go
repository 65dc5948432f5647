package screening

import (
	"context"

	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	"github.com/standardseed/pharmscreen/internal/domain/target"
)

// Scorer is the collaborator that scores one chemical against one modeled
// target.  Implementations are black boxes; the pipeline treats the returned
// value as an opaque fit score (higher is better) and never recomputes it.
//
// Score must honour ctx cancellation and deadline.  A scorer that rejects the
// chemical's SMILES should return an ErrCodeScoringInvalidSMILES error so the
// failure classifies as invalid_smiles rather than scoring_error.
type Scorer interface {
	Score(ctx context.Context, chem chemical.Chemical, model target.ModelArtifact) (float64, error)
}

// ResultStore persists per-pair screening outcomes.  Implementations must
// make LoadResult consistent with the most recent SaveResult for the same
// pair so idempotent resume can trust a prior record.
type ResultStore interface {
	// SaveResult persists one pair outcome, replacing any prior record for the
	// same (chemical, target) pair.
	SaveResult(ctx context.Context, runID string, res Result) error

	// LoadResult returns the recorded outcome for a pair, or ok=false when
	// none exists.
	LoadResult(ctx context.Context, runID, chemicalID, targetID string) (res Result, ok bool, err error)

	// ListResults returns all recorded outcomes for a run in canonical
	// (chemical ID, target ID) order.
	ListResults(ctx context.Context, runID string) ([]Result, error)
}
