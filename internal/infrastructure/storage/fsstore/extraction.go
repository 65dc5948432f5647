package fsstore

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Extraction outputs
// ─────────────────────────────────────────────────────────────────────────────
//
// Four files are written per extraction:
//
//	extraction/worklist.json                — full worklist, the machine-readable
//	                                          source of truth for later stages
//	extraction/unique_targets.txt           — one target ID per line, sorted
//	extraction/chemical_target_mapping.csv  — per-pair provenance with rank/score
//	extraction/extraction_statistics.json   — summary statistics

// SaveWorklist persists the extraction output in all four forms.
func (s *Store) SaveWorklist(w *target.Worklist) error {
	if err := s.writeJSON(filepath.Join(s.root, dirExtraction, "worklist.json"), w); err != nil {
		return err
	}

	// Plain target list, one ID per line, already sorted by worklist contract.
	var list strings.Builder
	for _, t := range w.Targets {
		list.WriteString(t.ID)
		list.WriteByte('\n')
	}
	if err := s.writeFileAtomic(
		filepath.Join(s.root, dirExtraction, "unique_targets.txt"),
		[]byte(list.String()),
	); err != nil {
		return err
	}

	// Detailed mapping CSV.
	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	if err := cw.Write([]string{"chemical_id", "target_id", "rank", "similarity"}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write mapping header")
	}
	for _, c := range w.Selected {
		row := []string{
			c.ChemicalID,
			c.TargetID,
			strconv.Itoa(c.SourceRank),
			strconv.FormatFloat(c.Similarity, 'f', 6, 64),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write mapping row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to flush mapping CSV")
	}
	if err := s.writeFileAtomic(
		filepath.Join(s.root, dirExtraction, "chemical_target_mapping.csv"),
		[]byte(sb.String()),
	); err != nil {
		return err
	}

	return s.writeJSON(filepath.Join(s.root, dirExtraction, "extraction_statistics.json"), w.Stats)
}

// LoadWorklist returns the persisted worklist, or ok=false when the
// extraction stage has not run in this store root.
func (s *Store) LoadWorklist() (w *target.Worklist, ok bool, err error) {
	w = &target.Worklist{}
	err = s.readJSON(filepath.Join(s.root, dirExtraction, "worklist.json"), w)
	if err != nil {
		if os.IsNotExist(underlying(err)) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return w, true, nil
}
