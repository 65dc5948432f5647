// Package modeling implements the second pipeline stage: partitioning the
// unique-target worklist into deterministic batches and building one
// pharmacophore model per target, with per-target timeouts, failure
// classification, and idempotent resume over prior successes.
package modeling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/internal/infrastructure/messaging/kafka"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/prometheus"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/fsstore"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/minio"
	"github.com/standardseed/pharmscreen/internal/worker"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Store is the persistence surface the dispatcher needs: build outcomes,
// artifact directories, and batch summaries.
type Store interface {
	target.ModelStore
	ArtifactDir(targetID string) string
	SaveBatchSummary(sum fsstore.BatchSummary) error
}

// RunStateCache is the optional shared completion cache.  A nil cache
// disables fast-path checks and batch locking; the store stays authoritative.
type RunStateCache interface {
	IsModelDone(ctx context.Context, runID, targetID string) bool
	MarkModelDone(ctx context.Context, runID, targetID string) error
	AcquireBatchLock(ctx context.Context, runID string, batchIndex int, slotID string, ttl time.Duration) error
	ReleaseBatchLock(ctx context.Context, runID string, batchIndex int, slotID string) error
}

// Dispatcher runs modeling batches.  One Dispatcher instance maps to one
// process slot; SlotID identifies it for batch-lock ownership.
type Dispatcher struct {
	builder target.ModelBuilder
	store   Store
	cache   RunStateCache
	mirror  *minio.Mirror
	events  *kafka.Producer
	metrics *prometheus.Metrics
	cfg     config.PipelineConfig
	slotID  string
	logger  logging.Logger
}

// New creates a Dispatcher.  cache, mirror, events and metrics may be nil.
func New(builder target.ModelBuilder, store Store, cache RunStateCache,
	mirror *minio.Mirror, events *kafka.Producer, metrics *prometheus.Metrics,
	cfg config.PipelineConfig, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Dispatcher{
		builder: builder,
		store:   store,
		cache:   cache,
		mirror:  mirror,
		events:  events,
		metrics: metrics,
		cfg:     cfg,
		slotID:  uuid.NewString(),
		logger:  logger.Named("modeling"),
	}
}

// RunAll processes every batch of the worklist sequentially in this process.
// Deployments with external job slots call RunBatch per slot instead.
func (d *Dispatcher) RunAll(ctx context.Context, runID string, w *target.Worklist) error {
	for i := 0; i < d.cfg.BatchCount; i++ {
		if _, err := d.RunBatch(ctx, runID, w, i); err != nil {
			return err
		}
	}
	return nil
}

// RunBatch builds models for one batch of the worklist.  Targets with a
// recorded prior success are skipped unless force_rebuild is set; each build
// runs under its own timeout and a failing target never affects its siblings.
func (d *Dispatcher) RunBatch(ctx context.Context, runID string, w *target.Worklist, batchIndex int) (*fsstore.BatchSummary, error) {
	if batchIndex < 0 || batchIndex >= d.cfg.BatchCount {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid,
			"batch index %d out of range [0, %d)", batchIndex, d.cfg.BatchCount)
	}

	batch := partition(w.TargetIDs(), d.cfg.BatchCount)[batchIndex]
	start := time.Now()
	logger := d.logger.With(
		logging.String("run_id", runID),
		logging.Int("batch_index", batchIndex),
		logging.Int("batch_targets", len(batch)))

	if d.cache != nil && len(batch) > 0 {
		// Lock TTL covers the worst case of every build running to its
		// timeout sequentially; the explicit release below is the normal path.
		ttl := d.cfg.BuildTimeout * time.Duration(len(batch))
		if err := d.cache.AcquireBatchLock(ctx, runID, batchIndex, d.slotID, ttl); err != nil {
			return nil, err
		}
		defer func() {
			if err := d.cache.ReleaseBatchLock(context.Background(), runID, batchIndex, d.slotID); err != nil {
				logger.Warn("batch lock release failed", logging.Err(err))
			}
		}()
	}

	sum := &fsstore.BatchSummary{
		RunID:            runID,
		BatchIndex:       batchIndex,
		BatchCount:       d.cfg.BatchCount,
		Targets:          len(batch),
		FailuresByReason: make(map[target.FailureReason]int),
	}

	pending, err := d.filterCompleted(ctx, runID, batch, sum, logger)
	if err != nil {
		return nil, err
	}

	pool := worker.NewPool[string, string](
		worker.WithMaxConcurrency(d.cfg.CPUWorkers),
		worker.WithItemTimeout(d.cfg.BuildTimeout),
	)
	rr, err := pool.Run(ctx, pending, func(ctx context.Context, targetID string) (string, error) {
		return d.builder.Build(ctx, targetID, d.store.ArtifactDir(targetID))
	})
	if err != nil {
		return nil, err
	}

	for i, ir := range rr.Results {
		// Cancellation is a run-level abort, not a target-level outcome;
		// nothing is persisted so resume re-attempts the target.
		if ir.Status == worker.ItemStatusCancelled {
			return nil, ir.Error
		}
		art := d.artifactFrom(pending[i], batchIndex, ir)
		if err := d.store.SaveArtifact(ctx, runID, art); err != nil {
			return nil, err
		}
		if art.Succeeded() {
			sum.Succeeded++
			d.markDone(ctx, runID, art.TargetID, logger)
			for _, p := range art.ArtifactPaths {
				d.mirror.TryUploadArtifact(ctx, runID, art.TargetID, p)
			}
		} else {
			sum.Failed++
			sum.FailuresByReason[art.FailureReason]++
			logger.Warn("model build failed",
				logging.String("target_id", art.TargetID),
				logging.String("reason", string(art.FailureReason)),
				logging.String("error", art.Error))
		}
		d.metrics.ObserveModel(string(art.Status), string(art.FailureReason), art.Duration)
		d.events.TryPublish(ctx, runID, kafka.TopicModelCompleted, art)
	}

	sum.Duration = time.Since(start)
	sum.CompletedAt = time.Now().UTC()
	if err := d.store.SaveBatchSummary(*sum); err != nil {
		return nil, err
	}
	d.events.TryPublish(ctx, runID, kafka.TopicBatchSummary, sum)
	d.metrics.ObserveStage("modeling", sum.Duration)

	logger.Info("modeling batch completed",
		logging.Int("succeeded", sum.Succeeded),
		logging.Int("failed", sum.Failed),
		logging.Int("skipped", sum.Skipped),
		logging.Duration("took", sum.Duration))
	return sum, nil
}

// filterCompleted drops targets whose prior success is on record.  The cache
// answer is a fast path only; the store is authoritative either way.
func (d *Dispatcher) filterCompleted(ctx context.Context, runID string, batch []string, sum *fsstore.BatchSummary, logger logging.Logger) ([]string, error) {
	if d.cfg.ForceRebuild {
		return batch, nil
	}
	pending := make([]string, 0, len(batch))
	for _, id := range batch {
		if d.cache != nil && d.cache.IsModelDone(ctx, runID, id) {
			sum.Skipped++
			d.metrics.ObserveSkipped("modeling")
			continue
		}
		art, ok, err := d.store.LoadArtifact(ctx, runID, id)
		if err != nil {
			return nil, err
		}
		if ok && art.Succeeded() {
			sum.Skipped++
			d.metrics.ObserveSkipped("modeling")
			d.markDone(ctx, runID, id, logger)
			continue
		}
		pending = append(pending, id)
	}
	return pending, nil
}

// artifactFrom converts one pool outcome into a persistable build record.
func (d *Dispatcher) artifactFrom(targetID string, batchIndex int, ir *worker.ItemResult[string]) target.ModelArtifact {
	art := target.ModelArtifact{
		TargetID:    targetID,
		BatchIndex:  batchIndex,
		Duration:    ir.Duration,
		CompletedAt: time.Now().UTC(),
	}
	if ir.Status == worker.ItemStatusSuccess {
		art.Status = target.ModelSuccess
		art.ArtifactPaths = []string{ir.Result}
		return art
	}
	art.Status = target.ModelFailed
	art.FailureReason = target.ClassifyBuildFailure(ir.Error)
	if ir.Error != nil {
		art.Error = ir.Error.Error()
	}
	return art
}

func (d *Dispatcher) markDone(ctx context.Context, runID, targetID string, logger logging.Logger) {
	if d.cache == nil {
		return
	}
	if err := d.cache.MarkModelDone(ctx, runID, targetID); err != nil {
		logger.Warn("model-done marker write failed",
			logging.String("target_id", targetID), logging.Err(err))
	}
}
