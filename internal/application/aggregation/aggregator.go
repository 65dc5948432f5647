// Package aggregation implements the final pipeline stage: joining screening
// results with extraction similarities, normalizing and combining scores, and
// producing the ranked hit tables and the integrated text report.
//
// Aggregation validates the run before reporting on it.  A missing stage
// output, a duplicate join key, or a pair without a result record means the
// persisted state is corrupt, and the stage fails rather than report on it.
package aggregation

import (
	"context"
	"sort"
	"time"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	scr "github.com/standardseed/pharmscreen/internal/domain/screening"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/prometheus"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/fsstore"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Store is the persistence surface the aggregator needs: the outputs of the
// three prior stages, and the report sinks.
type Store interface {
	LoadWorklist() (*target.Worklist, bool, error)
	ListArtifacts(ctx context.Context, runID string) ([]target.ModelArtifact, error)
	ListResults(ctx context.Context, runID string) ([]scr.Result, error)
	LoadBatchSummaries() ([]fsstore.BatchSummary, error)
	LoadScreeningStats() (stats scr.Stats, ok bool, err error)
	SaveCombinedHits(hits []scr.CombinedHit) error
	SaveTopHits(hits []scr.CombinedHit, k int) error
	SaveIncompletePairs(pairs []scr.IncompletePair) error
	SaveReportText(text string) error
}

// ArtifactPresigner produces time-limited download URLs for mirrored model
// artifacts.  A failed or unconfigured presign yields "" and the report
// simply omits the link.
type ArtifactPresigner interface {
	TryPresignArtifact(ctx context.Context, runID, targetID, path string) string
}

// HitStore is the optional shared-database sink for the ranked hit table.
// A nil HitStore keeps hits on the filesystem only.
type HitStore interface {
	SaveCombinedHits(ctx context.Context, runID string, hits []scr.CombinedHit) error
}

// Summary is the in-memory outcome of one aggregation run.
type Summary struct {
	Hits       []scr.CombinedHit
	Incomplete []scr.IncompletePair
	Worklist   *target.Worklist
	Screening  scr.Stats
	Batches    []fsstore.BatchSummary

	// ArtifactURLs maps target IDs of reported hits to presigned model
	// download URLs, when the artifact mirror is configured.
	ArtifactURLs map[string]string
}

// Aggregator runs the result-aggregation stage.
type Aggregator struct {
	store     Store
	presigner ArtifactPresigner
	db        HitStore
	metrics   *prometheus.Metrics
	cfg       config.PipelineConfig
	logger    logging.Logger
}

// New creates an Aggregator.  presigner, db and metrics may be nil.
func New(store Store, presigner ArtifactPresigner, db HitStore,
	metrics *prometheus.Metrics, cfg config.PipelineConfig, logger logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Aggregator{
		store:     store,
		presigner: presigner,
		db:        db,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.Named("aggregation"),
	}
}

// Aggregate joins, ranks and reports on a completed run.  lib must be the
// same library the prior stages ran with; the join is keyed on chemical and
// target IDs only.
func (a *Aggregator) Aggregate(ctx context.Context, runID string, lib *chemical.Library) (*Summary, error) {
	start := time.Now()

	w, ok, err := a.store.LoadWorklist()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Inconsistent("extraction output missing, run the extraction stage first")
	}

	arts, err := a.store.ListArtifacts(ctx, runID)
	if err != nil {
		return nil, err
	}
	modeledIDs, failedTargets, err := splitArtifacts(w, arts)
	if err != nil {
		return nil, err
	}

	results, err := a.store.ListResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	byPair := make(map[string]scr.Result, len(results))
	for _, r := range results {
		if _, dup := byPair[r.PairKey()]; dup {
			return nil, errors.Newf(errors.ErrCodeAggregationInconsistent,
				"duplicate screening record for pair %s/%s", r.ChemicalID, r.TargetID)
		}
		byPair[r.PairKey()] = r
	}

	simByPair := make(map[string]float64, len(w.Selected))
	for _, c := range w.Selected {
		simByPair[c.ChemicalID+"\x00"+c.TargetID] = c.Similarity
	}

	chemIDs := sortedChemicalIDs(lib)
	expected := len(chemIDs) * len(modeledIDs)
	if len(results) != expected {
		return nil, errors.Newf(errors.ErrCodeAggregationInconsistent,
			"screening produced %d records for a %d x %d cross product",
			len(results), len(chemIDs), len(modeledIDs))
	}

	sum := &Summary{Worklist: w}
	for _, chemID := range chemIDs {
		for _, targetID := range modeledIDs {
			res, ok := byPair[chemID+"\x00"+targetID]
			if !ok {
				return nil, errors.Newf(errors.ErrCodeAggregationInconsistent,
					"no screening record for pair %s/%s", chemID, targetID)
			}
			if !res.Succeeded() {
				sum.Incomplete = append(sum.Incomplete, scr.IncompletePair{
					ChemicalID: chemID,
					TargetID:   targetID,
					Stage:      "screening",
					Reason:     string(res.FailureReason),
				})
				continue
			}
			sim, ok := simByPair[chemID+"\x00"+targetID]
			if !ok {
				// Deduplication legitimately screens chemicals against targets
				// another chemical proposed; those pairs have no similarity
				// leg and join at zero rather than being dropped.
				sim = 0
			}
			sum.Hits = append(sum.Hits, scr.CombinedHit{
				ChemicalID:      chemID,
				TargetID:        targetID,
				SimilarityScore: sim,
				ScreeningScore:  res.Score,
			})
		}
	}

	// Every pair of a target that never got a model is incomplete at the
	// modeling stage, for every chemical.
	for _, ft := range failedTargets {
		for _, chemID := range chemIDs {
			sum.Incomplete = append(sum.Incomplete, scr.IncompletePair{
				ChemicalID: chemID,
				TargetID:   ft.TargetID,
				Stage:      "modeling",
				Reason:     string(ft.FailureReason),
			})
		}
	}
	sort.SliceStable(sum.Incomplete, func(i, j int) bool {
		if sum.Incomplete[i].ChemicalID != sum.Incomplete[j].ChemicalID {
			return sum.Incomplete[i].ChemicalID < sum.Incomplete[j].ChemicalID
		}
		return sum.Incomplete[i].TargetID < sum.Incomplete[j].TargetID
	})

	scr.NormalizeScores(sum.Hits)
	scr.Combine(sum.Hits, a.cfg.SimilarityWeight, a.cfg.ScreeningWeight)
	scr.SortHits(sum.Hits)

	if sum.Batches, err = a.store.LoadBatchSummaries(); err != nil {
		return nil, err
	}
	stats, ok, err := a.store.LoadScreeningStats()
	if err != nil {
		return nil, err
	}
	if !ok {
		stats = scr.ComputeStats(results)
	}
	sum.Screening = stats
	sum.ArtifactURLs = a.presignTopArtifacts(ctx, runID, sum.Hits, arts)

	if err := a.persist(ctx, runID, sum); err != nil {
		return nil, err
	}

	a.metrics.ObserveStage("aggregation", time.Since(start))
	a.logger.Info("aggregation completed",
		logging.String("run_id", runID),
		logging.Int("ranked_hits", len(sum.Hits)),
		logging.Int("incomplete_pairs", len(sum.Incomplete)),
		logging.Duration("took", time.Since(start)))
	return sum, nil
}

// presignTopArtifacts collects download URLs for the model artifacts behind
// the report's top interactions.  Only targets that actually appear in the
// rendered top list are presigned.
func (a *Aggregator) presignTopArtifacts(ctx context.Context, runID string, hits []scr.CombinedHit, arts []target.ModelArtifact) map[string]string {
	if a.presigner == nil {
		return nil
	}
	pathByTarget := make(map[string]string, len(arts))
	for _, art := range arts {
		if art.Succeeded() {
			pathByTarget[art.TargetID] = art.PrimaryArtifact()
		}
	}
	urls := make(map[string]string)
	for _, h := range scr.TopK(hits, reportTopGlobal) {
		if _, done := urls[h.TargetID]; done {
			continue
		}
		path, ok := pathByTarget[h.TargetID]
		if !ok {
			continue
		}
		if u := a.presigner.TryPresignArtifact(ctx, runID, h.TargetID, path); u != "" {
			urls[h.TargetID] = u
		}
	}
	if len(urls) == 0 {
		return nil
	}
	return urls
}

func (a *Aggregator) persist(ctx context.Context, runID string, sum *Summary) error {
	if err := a.store.SaveCombinedHits(sum.Hits); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to write combined hits")
	}
	if a.db != nil {
		// The shared database was enabled deliberately; silent divergence
		// from the filesystem copy would defeat it.
		if err := a.db.SaveCombinedHits(ctx, runID, sum.Hits); err != nil {
			return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to mirror combined hits")
		}
	}
	if err := a.store.SaveTopHits(sum.Hits, a.cfg.TopKReport); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to write top hits")
	}
	if err := a.store.SaveIncompletePairs(sum.Incomplete); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "failed to write incomplete pairs")
	}
	return a.store.SaveReportText(renderReport(runID, sum))
}

// splitArtifacts partitions artifacts into sorted modeled target IDs and
// failed artifacts, validating every artifact against the worklist.
func splitArtifacts(w *target.Worklist, arts []target.ModelArtifact) ([]string, []target.ModelArtifact, error) {
	known := make(map[string]bool, len(w.Targets))
	for _, t := range w.Targets {
		known[t.ID] = true
	}

	var modeledIDs []string
	var failed []target.ModelArtifact
	for _, art := range arts {
		if !known[art.TargetID] {
			return nil, nil, errors.Newf(errors.ErrCodeAggregationInconsistent,
				"model record for target %q not present in the worklist", art.TargetID)
		}
		if art.Succeeded() {
			modeledIDs = append(modeledIDs, art.TargetID)
		} else {
			failed = append(failed, art)
		}
	}
	sort.Strings(modeledIDs)
	sort.Slice(failed, func(i, j int) bool { return failed[i].TargetID < failed[j].TargetID })
	return modeledIDs, failed, nil
}

func sortedChemicalIDs(lib *chemical.Library) []string {
	ids := make([]string, len(lib.Chemicals))
	for i, c := range lib.Chemicals {
		ids[i] = c.ID
	}
	sort.Strings(ids)
	return ids
}
