package target

import "context"

// ModelBuilder is the collaborator that produces a pharmacophore model for a
// single target.  Implementations are black boxes (external tools, remote
// services); the pipeline only interprets success, failure, and timeouts.
//
// Build must honour ctx cancellation and deadline; on success it returns the
// path of the primary model artifact under outDir.
type ModelBuilder interface {
	Build(ctx context.Context, targetID, outDir string) (artifactPath string, err error)
}

// ModelStore persists per-target build outcomes.  Implementations must make
// LoadArtifact consistent with the most recent SaveArtifact for the same
// target so idempotent resume can trust a prior success.
type ModelStore interface {
	// SaveArtifact persists one build outcome, replacing any prior record for
	// the same target.
	SaveArtifact(ctx context.Context, runID string, art ModelArtifact) error

	// LoadArtifact returns the recorded outcome for a target, or ok=false when
	// none exists.
	LoadArtifact(ctx context.Context, runID, targetID string) (art ModelArtifact, ok bool, err error)

	// ListArtifacts returns all recorded outcomes for a run, in target-ID order.
	ListArtifacts(ctx context.Context, runID string) ([]ModelArtifact, error)
}
