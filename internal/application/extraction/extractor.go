// Package extraction implements the first pipeline stage: querying the
// similarity searcher for every library chemical, keeping each chemical's
// top-N candidate targets, and deduplicating them into the unique-target
// worklist that drives modeling.
package extraction

import (
	"context"
	"sort"
	"time"

	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/prometheus"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Store is the persistence surface the extractor needs.
type Store interface {
	SaveWorklist(w *target.Worklist) error
}

// Extractor runs the target-extraction stage.
type Extractor struct {
	searcher chemical.SimilaritySearcher
	store    Store
	topN     int
	metrics  *prometheus.Metrics
	logger   logging.Logger
}

// New creates an Extractor.  topN must already be validated against the
// supported depths by config loading.
func New(searcher chemical.SimilaritySearcher, store Store, topN int, metrics *prometheus.Metrics, logger logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Extractor{
		searcher: searcher,
		store:    store,
		topN:     topN,
		metrics:  metrics,
		logger:   logger.Named("extraction"),
	}
}

// Run queries candidates for every chemical of the library and persists the
// deduplicated worklist.  Chemicals whose search fails or returns no
// candidates are skipped and counted; they never abort the stage.  The
// returned worklist is fully sorted: selected pairs by (chemical ID, rank),
// targets by ID, provenance by chemical ID.
func (e *Extractor) Run(ctx context.Context, lib *chemical.Library) (*target.Worklist, error) {
	if lib == nil || len(lib.Chemicals) == 0 {
		return nil, errors.New(errors.ErrCodeInputNoCandidates, "chemical library is empty")
	}
	start := time.Now()

	// Chemicals are processed in ID order so retries of the same library
	// produce byte-identical output regardless of input file ordering.
	chems := make([]chemical.Chemical, len(lib.Chemicals))
	copy(chems, lib.Chemicals)
	sort.Slice(chems, func(i, j int) bool { return chems[i].ID < chems[j].ID })

	w := &target.Worklist{}
	byTarget := make(map[string]*target.UniqueTarget)

	for _, chem := range chems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cands, err := e.searcher.Search(ctx, chem, e.topN)
		if err != nil {
			w.Stats.SkippedChemicals++
			e.logger.Warn("similarity search failed, skipping chemical",
				logging.String("chemical_id", chem.ID),
				logging.Err(err))
			continue
		}
		if len(cands) == 0 {
			w.Stats.SkippedChemicals++
			e.logger.Warn("no candidate targets found, skipping chemical",
				logging.String("chemical_id", chem.ID),
				logging.String("code", string(errors.ErrCodeInputNoCandidates)))
			continue
		}

		chemical.SortCandidates(cands)
		selected := chemical.TopN(cands, e.topN)
		for rank, c := range selected {
			// Rank reflects the deterministic post-sort position, not the
			// searcher's raw ordering.
			c.SourceRank = rank + 1
			w.Selected = append(w.Selected, c)

			ut, ok := byTarget[c.TargetID]
			if !ok {
				ut = &target.UniqueTarget{ID: c.TargetID}
				byTarget[c.TargetID] = ut
			}
			ut.Provenance = append(ut.Provenance, target.Provenance{
				ChemicalID: c.ChemicalID,
				SourceRank: c.SourceRank,
				Similarity: c.Similarity,
			})
		}
		w.Stats.Chemicals++
	}

	if len(w.Selected) == 0 {
		return nil, errors.New(errors.ErrCodeInputNoCandidates,
			"no chemical produced any candidate targets")
	}

	for _, ut := range byTarget {
		ut.SortProvenance()
		w.Targets = append(w.Targets, *ut)
	}
	target.SortTargets(w.Targets)

	e.fillStats(w)

	if err := e.store.SaveWorklist(w); err != nil {
		return nil, err
	}

	e.metrics.ObserveStage("extraction", time.Since(start))
	e.logger.Info("extraction completed",
		logging.Int("chemicals", w.Stats.Chemicals),
		logging.Int("skipped_chemicals", w.Stats.SkippedChemicals),
		logging.Int("selected_pairs", w.Stats.SelectedPairs),
		logging.Int("unique_targets", w.Stats.UniqueTargets),
		logging.Duration("took", time.Since(start)))
	return w, nil
}

// fillStats derives the summary statistics from the selected pairs.
func (e *Extractor) fillStats(w *target.Worklist) {
	w.Stats.SelectedPairs = len(w.Selected)
	w.Stats.UniqueTargets = len(w.Targets)

	var sum float64
	for i, c := range w.Selected {
		if i == 0 || c.Similarity < w.Stats.MinSimilarity {
			w.Stats.MinSimilarity = c.Similarity
		}
		if i == 0 || c.Similarity > w.Stats.MaxSimilarity {
			w.Stats.MaxSimilarity = c.Similarity
		}
		sum += c.Similarity
	}
	if len(w.Selected) > 0 {
		w.Stats.MeanSimilarity = sum / float64(len(w.Selected))
	}
}
