package fsstore

import (
	"encoding/csv"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/standardseed/pharmscreen/internal/domain/screening"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Aggregation outputs
// ─────────────────────────────────────────────────────────────────────────────

var combinedHeader = []string{
	"rank", "chemical_id", "target_id",
	"similarity_score", "screening_score", "normalized_screening", "combined_score",
}

func combinedRow(h screening.CombinedHit) []string {
	return []string{
		strconv.Itoa(h.Rank),
		h.ChemicalID,
		h.TargetID,
		strconv.FormatFloat(h.SimilarityScore, 'f', 6, 64),
		strconv.FormatFloat(h.ScreeningScore, 'f', 6, 64),
		strconv.FormatFloat(h.NormalizedScreening, 'f', 6, 64),
		strconv.FormatFloat(h.CombinedScore, 'f', 6, 64),
	}
}

func (s *Store) writeHitsCSV(path string, hits []screening.CombinedHit) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(combinedHeader); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to write hits header")
	}
	for _, h := range hits {
		if err := w.Write(combinedRow(h)); err != nil {
			return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to write hits row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to flush hits CSV")
	}
	return s.writeFileAtomic(path, []byte(sb.String()))
}

// SaveCombinedHits persists the full ranked hit table.
func (s *Store) SaveCombinedHits(hits []screening.CombinedHit) error {
	return s.writeHitsCSV(filepath.Join(s.root, dirReports, "combined_results.csv"), hits)
}

// SaveTopHits persists the top-K extract of an already-ranked hit table.
func (s *Store) SaveTopHits(hits []screening.CombinedHit, k int) error {
	return s.writeHitsCSV(
		filepath.Join(s.root, dirReports, "top_"+strconv.Itoa(k)+"_hits.csv"),
		screening.TopK(hits, k),
	)
}

// SaveIncompletePairs persists the pairs that could not be fully joined,
// with the stage and reason that broke each of them.
func (s *Store) SaveIncompletePairs(pairs []screening.IncompletePair) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"chemical_id", "target_id", "stage", "reason"}); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to write incomplete header")
	}
	for _, p := range pairs {
		if err := w.Write([]string{p.ChemicalID, p.TargetID, p.Stage, p.Reason}); err != nil {
			return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to write incomplete row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to flush incomplete CSV")
	}
	return s.writeFileAtomic(
		filepath.Join(s.root, dirReports, "incomplete_pairs.csv"), []byte(sb.String()))
}

// SaveReportText persists the human-readable integrated report.
func (s *Store) SaveReportText(text string) error {
	return s.writeFileAtomic(filepath.Join(s.root, dirReports, "summary_report.txt"), []byte(text))
}
