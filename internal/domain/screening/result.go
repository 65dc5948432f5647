// Package screening provides the domain model for chemical-target scoring
// outcomes and combined ranked hits.
package screening

import (
	"context"
	"errors"
	"sort"
	"time"

	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Screening results
// ─────────────────────────────────────────────────────────────────────────────

// Status is the terminal state of one chemical-target scoring attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusSkipped marks a pair excluded before scoring.  The dispatcher
	// resumes by reusing prior rows rather than writing skip records, so no
	// path emits it today; pre-filters would.
	StatusSkipped Status = "skipped"
)

// FailureReason classifies why a scoring attempt failed.  Closed vocabulary;
// run statistics group by it.
type FailureReason string

const (
	ReasonNone          FailureReason = ""
	ReasonInvalidSMILES FailureReason = "invalid_smiles"
	ReasonTimeout       FailureReason = "scoring_timeout"
	ReasonError         FailureReason = "scoring_error"
)

// ClassifyScoringFailure maps a scoring error to its closed failure
// vocabulary.  Timeouts are recognised both from context deadlines and from
// typed SCR codes; anything unclassified lands in scoring_error.
func ClassifyScoringFailure(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, context.DeadlineExceeded),
		apperrors.IsCode(err, apperrors.ErrCodeScoringTimeout):
		return ReasonTimeout
	case apperrors.IsCode(err, apperrors.ErrCodeScoringInvalidSMILES):
		return ReasonInvalidSMILES
	default:
		return ReasonError
	}
}

// Result is the persisted outcome of scoring one (chemical, target) pair.
// Exactly one record exists per pair of the cross product; failed pairs carry
// a FailureReason and a zero Score.
type Result struct {
	ChemicalID    string        `json:"chemical_id"`
	TargetID      string        `json:"target_id"`
	Score         float64       `json:"score"`
	Status        Status        `json:"status"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	CompletedAt   time.Time     `json:"completed_at"`
}

// Succeeded reports whether the pair produced a usable score.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// PairKey returns the canonical join key of a result.
func (r *Result) PairKey() string {
	return r.ChemicalID + "\x00" + r.TargetID
}

// SortResults orders results by chemical ID then target ID ascending, the
// canonical persisted ordering of the master result table.
func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].ChemicalID != results[j].ChemicalID {
			return results[i].ChemicalID < results[j].ChemicalID
		}
		return results[i].TargetID < results[j].TargetID
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Run statistics
// ─────────────────────────────────────────────────────────────────────────────

// Stats summarises one screening run.  FailuresByReason uses the closed
// FailureReason vocabulary as keys.
type Stats struct {
	Attempted        int                   `json:"attempted"`
	Succeeded        int                   `json:"succeeded"`
	Failed           int                   `json:"failed"`
	FailuresByReason map[FailureReason]int `json:"failures_by_reason"`
	MinScore         float64               `json:"min_score"`
	MaxScore         float64               `json:"max_score"`
	MeanScore        float64               `json:"mean_score"`
}

// ComputeStats derives run statistics from a full result set.  Score
// aggregates consider successful pairs only; with no successes all three
// score fields are zero.
func ComputeStats(results []Result) Stats {
	s := Stats{FailuresByReason: make(map[FailureReason]int)}
	var sum float64
	for _, r := range results {
		s.Attempted++
		if r.Succeeded() {
			if s.Succeeded == 0 || r.Score < s.MinScore {
				s.MinScore = r.Score
			}
			if s.Succeeded == 0 || r.Score > s.MaxScore {
				s.MaxScore = r.Score
			}
			sum += r.Score
			s.Succeeded++
			continue
		}
		s.Failed++
		s.FailuresByReason[r.FailureReason]++
	}
	if s.Succeeded > 0 {
		s.MeanScore = sum / float64(s.Succeeded)
	}
	return s
}
