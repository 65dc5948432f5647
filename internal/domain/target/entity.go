// Package target provides the domain model for unique protein targets, their
// cross-chemical provenance, and pharmacophore model build outcomes.
package target

import (
	"context"
	"errors"
	"sort"
	"time"

	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// UniqueTarget and provenance
// ─────────────────────────────────────────────────────────────────────────────

// Provenance records one chemical's claim on a target: which chemical proposed
// it, at which rank in that chemical's candidate list, and with what
// similarity score.  Provenance keys are stable string IDs, never object
// references, so the maps serialise losslessly.
type Provenance struct {
	ChemicalID string  `json:"chemical_id"`
	SourceRank int     `json:"source_rank"`
	Similarity float64 `json:"similarity"`
}

// UniqueTarget is one deduplicated protein target with full provenance.
// A target proposed by several chemicals appears once, carrying one
// Provenance entry per proposing chemical.
type UniqueTarget struct {
	ID         string       `json:"target_id"`
	Provenance []Provenance `json:"provenance"`
}

// SortProvenance orders provenance entries by chemical ID ascending so that
// serialised output is reproducible run over run.
func (t *UniqueTarget) SortProvenance() {
	sort.Slice(t.Provenance, func(i, j int) bool {
		return t.Provenance[i].ChemicalID < t.Provenance[j].ChemicalID
	})
}

// BestSimilarity returns the highest similarity any chemical assigned to this
// target, or 0 for a target with no provenance.
func (t *UniqueTarget) BestSimilarity() float64 {
	best := 0.0
	for _, p := range t.Provenance {
		if p.Similarity > best {
			best = p.Similarity
		}
	}
	return best
}

// SortTargets orders targets by ID ascending.  This ordering defines the
// modeling worklist and therefore batch partition boundaries.
func SortTargets(targets []UniqueTarget) {
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].ID < targets[j].ID
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Model build outcomes
// ─────────────────────────────────────────────────────────────────────────────

// ModelStatus is the terminal state of one pharmacophore model build.
type ModelStatus string

const (
	ModelSuccess ModelStatus = "success"
	ModelFailed  ModelStatus = "failed"
)

// FailureReason classifies why a model build failed.  Reasons are closed
// vocabulary; downstream statistics group by them.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonDownloadFailed   FailureReason = "download_failed"
	ReasonBuildTimeout     FailureReason = "build_timeout"
	ReasonBuildError       FailureReason = "build_error"
	ReasonInvalidStructure FailureReason = "invalid_structure"
)

// ClassifyBuildFailure maps a build error to its closed failure vocabulary.
// Timeouts are recognised both from context deadlines and from typed MDL
// codes; anything unclassified lands in build_error.
func ClassifyBuildFailure(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, context.DeadlineExceeded),
		apperrors.IsCode(err, apperrors.ErrCodeModelBuildTimeout):
		return ReasonBuildTimeout
	case apperrors.IsCode(err, apperrors.ErrCodeModelDownloadFailed):
		return ReasonDownloadFailed
	case apperrors.IsCode(err, apperrors.ErrCodeModelInvalidStructure):
		return ReasonInvalidStructure
	default:
		return ReasonBuildError
	}
}

// ModelArtifact is the persisted outcome of one build attempt.  Exactly one
// of ArtifactPaths (success) or FailureReason (failure) is meaningful.  The
// first path is the model file itself; builders may append auxiliary outputs
// such as visualizations.
type ModelArtifact struct {
	TargetID      string        `json:"target_id"`
	Status        ModelStatus   `json:"status"`
	ArtifactPaths []string      `json:"artifact_paths,omitempty"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	Error         string        `json:"error,omitempty"`
	BatchIndex    int           `json:"batch_index"`
	Duration      time.Duration `json:"duration"`
	CompletedAt   time.Time     `json:"completed_at"`
}

// Succeeded reports whether the artifact represents a usable model.
func (a *ModelArtifact) Succeeded() bool {
	return a.Status == ModelSuccess
}

// PrimaryArtifact returns the model file path, or "" for a failed build.
func (a *ModelArtifact) PrimaryArtifact() string {
	if len(a.ArtifactPaths) == 0 {
		return ""
	}
	return a.ArtifactPaths[0]
}
