package chemical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardseed/pharmscreen/pkg/errors"
)

func TestNewChemical(t *testing.T) {
	t.Run("valid record", func(t *testing.T) {
		chem, err := NewChemical("  Epigallocatechin gallate ", "C1=CC=C(C=C1)O", "Camellia sinensis", "catechin")
		require.NoError(t, err)
		assert.Equal(t, "Epigallocatechin_gallate", chem.ID)
		assert.Equal(t, "Epigallocatechin gallate", chem.Name)
		assert.Equal(t, "C1=CC=C(C=C1)O", chem.SMILES)
		assert.Equal(t, "Camellia sinensis", chem.Source)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := NewChemical("", "CCO", "", "")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInputMissingField, errors.GetCode(err))
	})

	t.Run("missing smiles", func(t *testing.T) {
		_, err := NewChemical("Quercetin", "   ", "", "")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInputMissingField, errors.GetCode(err))
	})

	t.Run("invalid smiles characters", func(t *testing.T) {
		_, err := NewChemical("Quercetin", "CCO{bad}", "", "")
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInputMalformed, errors.GetCode(err))
		assert.True(t, errors.IsMalformedInput(err))
	})
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "Gallic_acid", CanonicalID("  Gallic   acid  "))
	assert.Equal(t, "Rutin", CanonicalID("Rutin"))
	assert.Equal(t, "", CanonicalID("   "))
}

func TestSortCandidates(t *testing.T) {
	cands := []CandidateTarget{
		{ChemicalID: "c1", TargetID: "P3", Similarity: 0.8},
		{ChemicalID: "c1", TargetID: "P1", Similarity: 0.9},
		{ChemicalID: "c1", TargetID: "P4", Similarity: 0.8},
		{ChemicalID: "c1", TargetID: "P2", Similarity: 0.9},
	}
	SortCandidates(cands)

	got := make([]string, len(cands))
	for i, c := range cands {
		got[i] = c.TargetID
	}
	// Similarity descending, target ID ascending within ties.
	assert.Equal(t, []string{"P1", "P2", "P3", "P4"}, got)
}

func TestTopN(t *testing.T) {
	cands := []CandidateTarget{
		{TargetID: "P1", Similarity: 0.9},
		{TargetID: "P2", Similarity: 0.8},
		{TargetID: "P3", Similarity: 0.7},
	}
	assert.Len(t, TopN(cands, 2), 2)
	assert.Len(t, TopN(cands, 5), 3)
	assert.Equal(t, "P1", TopN(cands, 2)[0].TargetID)
}
