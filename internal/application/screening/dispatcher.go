// Package screening implements the third pipeline stage: scoring every
// library chemical against every successfully modeled target.  The cross
// product is exhaustive; a record exists for each pair whether scoring
// succeeded or failed.
package screening

import (
	"context"
	"sort"
	"time"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	scr "github.com/standardseed/pharmscreen/internal/domain/screening"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/internal/infrastructure/messaging/kafka"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/prometheus"
	"github.com/standardseed/pharmscreen/internal/worker"
)

// Store is the persistence surface the dispatcher needs: per-pair outcomes,
// the derived CSV views, and run statistics.
type Store interface {
	scr.ResultStore
	ExportResultViews(ctx context.Context, results []scr.Result) error
	SaveScreeningStats(stats scr.Stats) error
}

// PairCache is the optional shared completion cache for scored pairs.
type PairCache interface {
	IsPairDone(ctx context.Context, runID, chemicalID, targetID string) bool
	MarkPairDone(ctx context.Context, runID, chemicalID, targetID string) error
}

// pair is one unit of scoring work.
type pair struct {
	chem  chemical.Chemical
	model target.ModelArtifact
}

// Dispatcher runs the screening stage.
type Dispatcher struct {
	scorer  scr.Scorer
	store   Store
	models  target.ModelStore
	cache   PairCache
	events  *kafka.Producer
	metrics *prometheus.Metrics
	cfg     config.PipelineConfig
	logger  logging.Logger
}

// New creates a Dispatcher.  cache, events and metrics may be nil.
func New(scorer scr.Scorer, store Store, models target.ModelStore, cache PairCache,
	events *kafka.Producer, metrics *prometheus.Metrics,
	cfg config.PipelineConfig, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Dispatcher{
		scorer:  scorer,
		store:   store,
		models:  models,
		cache:   cache,
		events:  events,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.Named("screening"),
	}
}

// Run scores the full chemical-by-model cross product and persists one result
// per pair.  Pairs with a prior record are reused unless force_rescreen is
// set; a failing pair never affects its siblings.  The exported views and
// statistics always reflect the complete cross product.
func (d *Dispatcher) Run(ctx context.Context, runID string, lib *chemical.Library) (scr.Stats, error) {
	start := time.Now()

	modeled, err := d.successfulModels(ctx, runID)
	if err != nil {
		return scr.Stats{}, err
	}

	chems := make([]chemical.Chemical, len(lib.Chemicals))
	copy(chems, lib.Chemicals)
	sort.Slice(chems, func(i, j int) bool { return chems[i].ID < chems[j].ID })

	logger := d.logger.With(
		logging.String("run_id", runID),
		logging.Int("chemicals", len(chems)),
		logging.Int("modeled_targets", len(modeled)))

	var results []scr.Result
	var pending []pair
	skipped := 0
	for _, chem := range chems {
		for _, model := range modeled {
			prior, ok, err := d.priorResult(ctx, runID, chem.ID, model.TargetID)
			if err != nil {
				return scr.Stats{}, err
			}
			if ok {
				results = append(results, prior)
				skipped++
				d.metrics.ObserveSkipped("screening")
				continue
			}
			pending = append(pending, pair{chem: chem, model: model})
		}
	}

	pool := worker.NewPool[pair, float64](
		worker.WithMaxConcurrency(d.cfg.CPUWorkers),
		worker.WithItemTimeout(d.cfg.ScoringTimeout),
	)
	rr, err := pool.Run(ctx, pending, func(ctx context.Context, p pair) (float64, error) {
		return d.scorer.Score(ctx, p.chem, p.model)
	})
	if err != nil {
		return scr.Stats{}, err
	}

	for i, ir := range rr.Results {
		if ir.Status == worker.ItemStatusCancelled {
			return scr.Stats{}, ir.Error
		}
		res := d.resultFrom(pending[i], ir)
		if err := d.store.SaveResult(ctx, runID, res); err != nil {
			return scr.Stats{}, err
		}
		if res.Succeeded() {
			d.markDone(ctx, runID, res, logger)
		} else {
			logger.Warn("pair scoring failed",
				logging.String("chemical_id", res.ChemicalID),
				logging.String("target_id", res.TargetID),
				logging.String("reason", string(res.FailureReason)),
				logging.String("error", res.Error))
		}
		d.metrics.ObservePair(string(res.Status), string(res.FailureReason), res.Duration)
		d.events.TryPublish(ctx, runID, kafka.TopicPairCompleted, res)
		results = append(results, res)
	}

	scr.SortResults(results)
	if err := d.store.ExportResultViews(ctx, results); err != nil {
		return scr.Stats{}, err
	}
	stats := scr.ComputeStats(results)
	if err := d.store.SaveScreeningStats(stats); err != nil {
		return scr.Stats{}, err
	}

	d.metrics.ObserveStage("screening", time.Since(start))
	logger.Info("screening completed",
		logging.Int("pairs", stats.Attempted),
		logging.Int("succeeded", stats.Succeeded),
		logging.Int("failed", stats.Failed),
		logging.Int("skipped", skipped),
		logging.Duration("took", time.Since(start)))
	return stats, nil
}

// successfulModels returns the usable model artifacts in target-ID order.
func (d *Dispatcher) successfulModels(ctx context.Context, runID string) ([]target.ModelArtifact, error) {
	arts, err := d.models.ListArtifacts(ctx, runID)
	if err != nil {
		return nil, err
	}
	modeled := make([]target.ModelArtifact, 0, len(arts))
	for _, a := range arts {
		if a.Succeeded() {
			modeled = append(modeled, a)
		}
	}
	sort.Slice(modeled, func(i, j int) bool { return modeled[i].TargetID < modeled[j].TargetID })
	return modeled, nil
}

// priorResult returns a reusable prior record for the pair, honouring
// force_rescreen.  The store is authoritative; the cache marker alone never
// satisfies resume because it carries no score payload.
func (d *Dispatcher) priorResult(ctx context.Context, runID, chemicalID, targetID string) (scr.Result, bool, error) {
	if d.cfg.ForceRescreen {
		return scr.Result{}, false, nil
	}
	res, ok, err := d.store.LoadResult(ctx, runID, chemicalID, targetID)
	if err != nil || ok {
		return res, ok, err
	}
	if d.cache != nil && d.cache.IsPairDone(ctx, runID, chemicalID, targetID) {
		d.logger.Debug("pair marked done in cache but missing from store, rescoring",
			logging.String("chemical_id", chemicalID),
			logging.String("target_id", targetID))
	}
	return scr.Result{}, false, nil
}

// resultFrom converts one pool outcome into a persistable pair record.
func (d *Dispatcher) resultFrom(p pair, ir *worker.ItemResult[float64]) scr.Result {
	res := scr.Result{
		ChemicalID:  p.chem.ID,
		TargetID:    p.model.TargetID,
		Duration:    ir.Duration,
		CompletedAt: time.Now().UTC(),
	}
	if ir.Status == worker.ItemStatusSuccess {
		res.Status = scr.StatusSuccess
		res.Score = ir.Result
		return res
	}
	res.Status = scr.StatusFailed
	res.FailureReason = scr.ClassifyScoringFailure(ir.Error)
	if ir.Error != nil {
		res.Error = ir.Error.Error()
	}
	return res
}

func (d *Dispatcher) markDone(ctx context.Context, runID string, res scr.Result, logger logging.Logger) {
	if d.cache == nil {
		return
	}
	if err := d.cache.MarkPairDone(ctx, runID, res.ChemicalID, res.TargetID); err != nil {
		logger.Warn("pair-done marker write failed",
			logging.String("chemical_id", res.ChemicalID),
			logging.String("target_id", res.TargetID),
			logging.Err(err))
	}
}
