package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/standardseed/pharmscreen/internal/domain/screening"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Store implements target.ModelStore and screening.ResultStore on top of the
// shared database.  All writes are idempotent upserts keyed on the natural
// key of each table, so re-running a unit of work replaces its own row and
// nothing else.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// target.ModelStore
// ─────────────────────────────────────────────────────────────────────────────

// SaveArtifact upserts one build outcome keyed on (run_id, target_id).
func (s *Store) SaveArtifact(ctx context.Context, runID string, art target.ModelArtifact) error {
	const q = `
		INSERT INTO model_artifacts
			(run_id, target_id, status, artifact_paths, failure_reason, error, batch_index, duration_ms, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, target_id) DO UPDATE SET
			status = EXCLUDED.status,
			artifact_paths = EXCLUDED.artifact_paths,
			failure_reason = EXCLUDED.failure_reason,
			error = EXCLUDED.error,
			batch_index = EXCLUDED.batch_index,
			duration_ms = EXCLUDED.duration_ms,
			completed_at = EXCLUDED.completed_at`
	_, err := s.pool.Exec(ctx, q,
		runID, art.TargetID, string(art.Status), art.ArtifactPaths,
		string(art.FailureReason), art.Error, art.BatchIndex,
		art.Duration.Milliseconds(), art.CompletedAt)
	return errors.Wrap(err, errors.ErrCodeModelStatusWriteFailed, "failed to upsert model artifact")
}

// LoadArtifact returns the recorded outcome for a target, or ok=false.
func (s *Store) LoadArtifact(ctx context.Context, runID, targetID string) (target.ModelArtifact, bool, error) {
	const q = `
		SELECT target_id, status, artifact_paths, failure_reason, error, batch_index, duration_ms, completed_at
		FROM model_artifacts
		WHERE run_id = $1 AND target_id = $2`
	art, err := scanArtifact(s.pool.QueryRow(ctx, q, runID, targetID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return target.ModelArtifact{}, false, nil
		}
		return target.ModelArtifact{}, false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to load model artifact")
	}
	return art, true, nil
}

// ListArtifacts returns all recorded outcomes for a run, in target-ID order.
func (s *Store) ListArtifacts(ctx context.Context, runID string) ([]target.ModelArtifact, error) {
	const q = `
		SELECT target_id, status, artifact_paths, failure_reason, error, batch_index, duration_ms, completed_at
		FROM model_artifacts
		WHERE run_id = $1
		ORDER BY target_id`
	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to list model artifacts")
	}
	defer rows.Close()

	var arts []target.ModelArtifact
	for rows.Next() {
		art, err := scanArtifact(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to scan model artifact")
		}
		arts = append(arts, art)
	}
	return arts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (target.ModelArtifact, error) {
	var (
		art        target.ModelArtifact
		status     string
		reason     string
		durationMS int64
	)
	err := row.Scan(&art.TargetID, &status, &art.ArtifactPaths, &reason,
		&art.Error, &art.BatchIndex, &durationMS, &art.CompletedAt)
	if err != nil {
		return target.ModelArtifact{}, err
	}
	art.Status = target.ModelStatus(status)
	art.FailureReason = target.FailureReason(reason)
	art.Duration = time.Duration(durationMS) * time.Millisecond
	return art, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// screening.ResultStore
// ─────────────────────────────────────────────────────────────────────────────

// SaveResult upserts one pair outcome keyed on (run_id, chemical_id, target_id).
func (s *Store) SaveResult(ctx context.Context, runID string, res screening.Result) error {
	const q = `
		INSERT INTO screening_results
			(run_id, chemical_id, target_id, score, status, failure_reason, error, duration_ms, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, chemical_id, target_id) DO UPDATE SET
			score = EXCLUDED.score,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			error = EXCLUDED.error,
			duration_ms = EXCLUDED.duration_ms,
			completed_at = EXCLUDED.completed_at`
	_, err := s.pool.Exec(ctx, q,
		runID, res.ChemicalID, res.TargetID, res.Score, string(res.Status),
		string(res.FailureReason), res.Error, res.Duration.Milliseconds(), res.CompletedAt)
	return errors.Wrap(err, errors.ErrCodeResultWriteFailed, "failed to upsert screening result")
}

// LoadResult returns the recorded outcome for a pair, or ok=false.
func (s *Store) LoadResult(ctx context.Context, runID, chemicalID, targetID string) (screening.Result, bool, error) {
	const q = `
		SELECT chemical_id, target_id, score, status, failure_reason, error, duration_ms, completed_at
		FROM screening_results
		WHERE run_id = $1 AND chemical_id = $2 AND target_id = $3`
	res, err := scanResult(s.pool.QueryRow(ctx, q, runID, chemicalID, targetID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return screening.Result{}, false, nil
		}
		return screening.Result{}, false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to load screening result")
	}
	return res, true, nil
}

// ListResults returns all recorded outcomes for a run in canonical order.
func (s *Store) ListResults(ctx context.Context, runID string) ([]screening.Result, error) {
	const q = `
		SELECT chemical_id, target_id, score, status, failure_reason, error, duration_ms, completed_at
		FROM screening_results
		WHERE run_id = $1
		ORDER BY chemical_id, target_id`
	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to list screening results")
	}
	defer rows.Close()

	var results []screening.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to scan screening result")
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Combined hits
// ─────────────────────────────────────────────────────────────────────────────

// SaveCombinedHits replaces the run's ranked hit table.  Re-aggregation can
// shrink the hit set, so the old rows are deleted in the same transaction
// rather than upserted over.
func (s *Store) SaveCombinedHits(ctx context.Context, runID string, hits []screening.CombinedHit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to begin hit transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM combined_hits WHERE run_id = $1`, runID); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to clear combined hits")
	}

	const q = `
		INSERT INTO combined_hits
			(run_id, chemical_id, target_id, similarity_score, screening_score, normalized_screening, combined_score, rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	batch := &pgx.Batch{}
	for _, h := range hits {
		batch.Queue(q, runID, h.ChemicalID, h.TargetID,
			h.SimilarityScore, h.ScreeningScore, h.NormalizedScreening,
			h.CombinedScore, h.Rank)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to insert combined hits")
	}
	return tx.Commit(ctx)
}

func scanResult(row rowScanner) (screening.Result, error) {
	var (
		res        screening.Result
		status     string
		reason     string
		durationMS int64
	)
	err := row.Scan(&res.ChemicalID, &res.TargetID, &res.Score, &status,
		&reason, &res.Error, &durationMS, &res.CompletedAt)
	if err != nil {
		return screening.Result{}, err
	}
	res.Status = screening.Status(status)
	res.FailureReason = screening.FailureReason(reason)
	res.Duration = time.Duration(durationMS) * time.Millisecond
	return res, nil
}
