package fsstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// target.ModelStore implementation
// ─────────────────────────────────────────────────────────────────────────────

// modelRecord is the on-disk form of one build outcome, one JSON file per
// target under models/status/.
type modelRecord struct {
	RunID    string               `json:"run_id"`
	Artifact target.ModelArtifact `json:"artifact"`
}

func (s *Store) modelStatusPath(targetID string) string {
	return filepath.Join(s.root, dirModelState, targetID+".json")
}

// SaveArtifact persists one build outcome, replacing any prior record for the
// same target.
func (s *Store) SaveArtifact(_ context.Context, runID string, art target.ModelArtifact) error {
	if art.TargetID == "" {
		return errors.New(errors.ErrCodeModelStatusWriteFailed, "artifact has empty target id")
	}
	rec := modelRecord{RunID: runID, Artifact: art}
	if err := s.writeJSON(s.modelStatusPath(art.TargetID), rec); err != nil {
		return errors.Wrap(err, errors.ErrCodeModelStatusWriteFailed, "failed to persist model status").
			WithDetail("target=" + art.TargetID)
	}
	return nil
}

// LoadArtifact returns the recorded outcome for a target, or ok=false when
// none exists.
func (s *Store) LoadArtifact(_ context.Context, _ string, targetID string) (target.ModelArtifact, bool, error) {
	var rec modelRecord
	err := s.readJSON(s.modelStatusPath(targetID), &rec)
	if err != nil {
		if os.IsNotExist(underlying(err)) {
			return target.ModelArtifact{}, false, nil
		}
		return target.ModelArtifact{}, false, err
	}
	return rec.Artifact, true, nil
}

// ListArtifacts returns all recorded outcomes, in target-ID order.
func (s *Store) ListArtifacts(_ context.Context, _ string) ([]target.ModelArtifact, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dirModelState))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to list model status directory")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	arts := make([]target.ModelArtifact, 0, len(names))
	for _, name := range names {
		var rec modelRecord
		if err := s.readJSON(filepath.Join(s.root, dirModelState, name), &rec); err != nil {
			return nil, err
		}
		arts = append(arts, rec.Artifact)
	}
	return arts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch summaries
// ─────────────────────────────────────────────────────────────────────────────

// BatchSummary records the outcome of one modeling batch.
type BatchSummary struct {
	RunID            string                       `json:"run_id"`
	BatchIndex       int                          `json:"batch_index"`
	BatchCount       int                          `json:"batch_count"`
	Targets          int                          `json:"targets"`
	Succeeded        int                          `json:"succeeded"`
	Failed           int                          `json:"failed"`
	Skipped          int                          `json:"skipped"`
	FailuresByReason map[target.FailureReason]int `json:"failures_by_reason"`
	Duration         time.Duration                `json:"duration"`
	CompletedAt      time.Time                    `json:"completed_at"`
}

// SaveBatchSummary persists the summary of one batch under models/.
func (s *Store) SaveBatchSummary(sum BatchSummary) error {
	name := "batch_summary.json"
	if sum.BatchCount > 1 {
		name = "batch_summary_" + strconv.Itoa(sum.BatchIndex) + ".json"
	}
	return s.writeJSON(filepath.Join(s.root, dirModels, name), sum)
}

// LoadBatchSummaries returns every persisted batch summary, ordered by batch
// index.
func (s *Store) LoadBatchSummaries() ([]BatchSummary, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dirModels))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to list models directory")
	}
	var sums []BatchSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "batch_summary") {
			continue
		}
		var sum BatchSummary
		if err := s.readJSON(filepath.Join(s.root, dirModels, e.Name()), &sum); err != nil {
			return nil, err
		}
		sums = append(sums, sum)
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].BatchIndex < sums[j].BatchIndex })
	return sums, nil
}
