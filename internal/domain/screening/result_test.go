package screening

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

func TestClassifyScoringFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureReason
	}{
		{"nil error", nil, ReasonNone},
		{"context deadline", context.DeadlineExceeded, ReasonTimeout},
		{"typed timeout", apperrors.New(apperrors.ErrCodeScoringTimeout, "t"), ReasonTimeout},
		{"invalid smiles", apperrors.New(apperrors.ErrCodeScoringInvalidSMILES, "s"), ReasonInvalidSMILES},
		{"anything else", assert.AnError, ReasonError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyScoringFailure(tt.err))
		})
	}
}

func TestSortResults(t *testing.T) {
	results := []Result{
		{ChemicalID: "c2", TargetID: "P1"},
		{ChemicalID: "c1", TargetID: "P2"},
		{ChemicalID: "c1", TargetID: "P1"},
	}
	SortResults(results)
	assert.Equal(t, "c1/P1", results[0].ChemicalID+"/"+results[0].TargetID)
	assert.Equal(t, "c1/P2", results[1].ChemicalID+"/"+results[1].TargetID)
	assert.Equal(t, "c2/P1", results[2].ChemicalID+"/"+results[2].TargetID)
}

func TestComputeStats(t *testing.T) {
	t.Run("aggregates over successes only", func(t *testing.T) {
		results := []Result{
			{ChemicalID: "c1", TargetID: "P1", Status: StatusSuccess, Score: 2},
			{ChemicalID: "c1", TargetID: "P2", Status: StatusSuccess, Score: 6},
			{ChemicalID: "c1", TargetID: "P3", Status: StatusFailed, FailureReason: ReasonTimeout},
			{ChemicalID: "c1", TargetID: "P4", Status: StatusFailed, FailureReason: ReasonTimeout},
			{ChemicalID: "c1", TargetID: "P5", Status: StatusFailed, FailureReason: ReasonInvalidSMILES},
		}
		s := ComputeStats(results)
		assert.Equal(t, 5, s.Attempted)
		assert.Equal(t, 2, s.Succeeded)
		assert.Equal(t, 3, s.Failed)
		assert.Equal(t, 2, s.FailuresByReason[ReasonTimeout])
		assert.Equal(t, 1, s.FailuresByReason[ReasonInvalidSMILES])
		assert.InDelta(t, 2, s.MinScore, 1e-12)
		assert.InDelta(t, 6, s.MaxScore, 1e-12)
		assert.InDelta(t, 4, s.MeanScore, 1e-12)
	})

	t.Run("no successes leaves score aggregates zero", func(t *testing.T) {
		s := ComputeStats([]Result{
			{ChemicalID: "c1", TargetID: "P1", Status: StatusFailed, FailureReason: ReasonError},
		})
		assert.Zero(t, s.MinScore)
		assert.Zero(t, s.MaxScore)
		assert.Zero(t, s.MeanScore)
	})
}

func TestStatusVocabulary(t *testing.T) {
	// Only success yields a usable score; skipped and failed both exclude the
	// pair from the join.
	assert.True(t, (&Result{Status: StatusSuccess}).Succeeded())
	assert.False(t, (&Result{Status: StatusFailed}).Succeeded())
	assert.False(t, (&Result{Status: StatusSkipped}).Succeeded())
	assert.Equal(t, Status("skipped"), StatusSkipped)
}

func TestPairKey(t *testing.T) {
	a := Result{ChemicalID: "c1", TargetID: "P1"}
	b := Result{ChemicalID: "c1", TargetID: "P1"}
	c := Result{ChemicalID: "c1", TargetID: "P2"}
	assert.Equal(t, a.PairKey(), b.PairKey())
	assert.NotEqual(t, a.PairKey(), c.PairKey())
}
