package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

const sampleReport = `Similarity analysis results
===========================

MOLECULE: quercetin
----------------------------------------
Rank  Target  Score
   1  1AZ8    0.9234
   2  2XYZ    0.8011
   3  3abc    0.7500
   not a row at all
   4  TOOLONG 0.7000
   5  4DEF    bad-score

MOLECULE: curcumin
   1  1AZ8    0.6100
`

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesMoleculeBlocks(t *testing.T) {
	s, err := Load(writeReport(t, sampleReport), nil)
	require.NoError(t, err)

	cands, err := s.Search(context.Background(), chemical.Chemical{ID: "quercetin", Name: "quercetin"}, 10)
	require.NoError(t, err)
	// Separator, header, malformed and non-4-char rows are dropped.
	require.Len(t, cands, 3)
	assert.Equal(t, "1AZ8", cands[0].TargetID)
	assert.Equal(t, 1, cands[0].SourceRank)
	assert.InDelta(t, 0.9234, cands[0].Similarity, 1e-12)
	assert.Equal(t, "3abc", cands[2].TargetID)

	// Every candidate carries the querying chemical's ID.
	for _, c := range cands {
		assert.Equal(t, "quercetin", c.ChemicalID)
	}
}

func TestSearchHonoursLimit(t *testing.T) {
	s, err := Load(writeReport(t, sampleReport), nil)
	require.NoError(t, err)

	cands, err := s.Search(context.Background(), chemical.Chemical{ID: "quercetin", Name: "quercetin"}, 2)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "2XYZ", cands[1].TargetID)
}

func TestSearchUnknownChemicalReturnsEmpty(t *testing.T) {
	s, err := Load(writeReport(t, sampleReport), nil)
	require.NoError(t, err)

	cands, err := s.Search(context.Background(), chemical.Chemical{ID: "absent", Name: "absent"}, 10)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestSearchFallsBackToChemicalID(t *testing.T) {
	s, err := Load(writeReport(t, sampleReport), nil)
	require.NoError(t, err)

	// The report keys on the name the analysis used; lookup tries Name first,
	// then ID.
	cands, err := s.Search(context.Background(), chemical.Chemical{ID: "curcumin", Name: "renamed"}, 10)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "1AZ8", cands[0].TargetID)
}

func TestSearchHonoursCancellation(t *testing.T) {
	s, err := Load(writeReport(t, sampleReport), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Search(ctx, chemical.Chemical{ID: "quercetin", Name: "quercetin"}, 10)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"), nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInputParseFailed, apperrors.GetCode(err))
}

func TestLoadRejectsReportWithoutMolecules(t *testing.T) {
	content := strings.ReplaceAll(sampleReport, "MOLECULE:", "COMPOUND:")
	_, err := Load(writeReport(t, content), nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInputParseFailed, apperrors.GetCode(err))
}
