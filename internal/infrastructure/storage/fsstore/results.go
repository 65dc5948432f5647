package fsstore

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/standardseed/pharmscreen/internal/domain/screening"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// screening.ResultStore implementation
// ─────────────────────────────────────────────────────────────────────────────

// pairRecord is the on-disk form of one pair outcome, one JSON file per pair
// under screening/results/<chemical>/.
type pairRecord struct {
	RunID  string           `json:"run_id"`
	Result screening.Result `json:"result"`
}

func (s *Store) pairPath(chemicalID, targetID string) string {
	return filepath.Join(s.root, dirPairState, chemicalID, targetID+".json")
}

// SaveResult persists one pair outcome, replacing any prior record for the
// same (chemical, target) pair.
func (s *Store) SaveResult(_ context.Context, runID string, res screening.Result) error {
	if res.ChemicalID == "" || res.TargetID == "" {
		return errors.New(errors.ErrCodeResultWriteFailed, "result has empty pair key")
	}
	rec := pairRecord{RunID: runID, Result: res}
	if err := s.writeJSON(s.pairPath(res.ChemicalID, res.TargetID), rec); err != nil {
		return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to persist screening result").
			WithDetail(fmt.Sprintf("pair=%s/%s", res.ChemicalID, res.TargetID))
	}
	return nil
}

// LoadResult returns the recorded outcome for a pair, or ok=false when none
// exists.
func (s *Store) LoadResult(_ context.Context, _ string, chemicalID, targetID string) (screening.Result, bool, error) {
	var rec pairRecord
	err := s.readJSON(s.pairPath(chemicalID, targetID), &rec)
	if err != nil {
		if os.IsNotExist(underlying(err)) {
			return screening.Result{}, false, nil
		}
		return screening.Result{}, false, err
	}
	return rec.Result, true, nil
}

// ListResults returns all recorded outcomes in canonical (chemical, target)
// order.
func (s *Store) ListResults(_ context.Context, _ string) ([]screening.Result, error) {
	base := filepath.Join(s.root, dirPairState)
	chemDirs, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to list screening results directory")
	}

	var results []screening.Result
	for _, cd := range chemDirs {
		if !cd.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(base, cd.Name()))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to list chemical results directory")
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			var rec pairRecord
			if err := s.readJSON(filepath.Join(base, cd.Name(), f.Name()), &rec); err != nil {
				return nil, err
			}
			results = append(results, rec.Result)
		}
	}
	screening.SortResults(results)
	return results, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CSV views and statistics
// ─────────────────────────────────────────────────────────────────────────────

var resultHeader = []string{
	"chemical_id", "target_id", "score", "status", "failure_reason", "duration_ms",
}

func resultRow(r screening.Result) []string {
	return []string{
		r.ChemicalID,
		r.TargetID,
		strconv.FormatFloat(r.Score, 'f', 6, 64),
		string(r.Status),
		string(r.FailureReason),
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
	}
}

// writeResultCSV renders rows into a single CSV file atomically.
func (s *Store) writeResultCSV(path string, results []screening.Result) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(resultHeader); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write CSV header")
	}
	for _, r := range results {
		if err := w.Write(resultRow(r)); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write CSV row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to flush CSV")
	}
	return s.writeFileAtomic(path, []byte(sb.String()))
}

// ExportResultViews writes the three mutually consistent views of a full
// result set: the master table, one CSV per chemical, and one CSV per target.
// All three are derived from the same in-memory slice, so their contents can
// never disagree.  The per-chemical and per-target fan-out runs concurrently
// under an errgroup; each file write is independent.
func (s *Store) ExportResultViews(ctx context.Context, results []screening.Result) error {
	sorted := make([]screening.Result, len(results))
	copy(sorted, results)
	screening.SortResults(sorted)

	byChemical := make(map[string][]screening.Result)
	byTarget := make(map[string][]screening.Result)
	for _, r := range sorted {
		byChemical[r.ChemicalID] = append(byChemical[r.ChemicalID], r)
		byTarget[r.TargetID] = append(byTarget[r.TargetID], r)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)

	g.Go(func() error {
		return s.writeResultCSV(filepath.Join(s.root, dirScreening, "master_results.csv"), sorted)
	})
	for chemID, rows := range byChemical {
		chemID, rows := chemID, rows
		g.Go(func() error {
			return s.writeResultCSV(
				filepath.Join(s.root, dirScreening, "by_chemical", chemID+".csv"), rows)
		})
	}
	for targetID, rows := range byTarget {
		targetID, rows := targetID, rows
		g.Go(func() error {
			return s.writeResultCSV(
				filepath.Join(s.root, dirScreening, "by_target", targetID+".csv"), rows)
		})
	}
	return g.Wait()
}

// SaveScreeningStats persists the run statistics JSON next to the CSV views.
func (s *Store) SaveScreeningStats(stats screening.Stats) error {
	return s.writeJSON(filepath.Join(s.root, dirScreening, "screening_statistics.json"), stats)
}

// LoadScreeningStats returns the persisted run statistics, or ok=false when
// the screening stage has not completed yet.
func (s *Store) LoadScreeningStats() (stats screening.Stats, ok bool, err error) {
	err = s.readJSON(filepath.Join(s.root, dirScreening, "screening_statistics.json"), &stats)
	if err != nil {
		if os.IsNotExist(underlying(err)) {
			return screening.Stats{}, false, nil
		}
		return screening.Stats{}, false, err
	}
	return stats, true, nil
}
