// Package pipeline sequences the four screening stages over one run: extract
// targets, build models, score the cross product, aggregate and report.  Each
// stage is a barrier; the next starts only after the previous persisted its
// output.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/standardseed/pharmscreen/internal/application/aggregation"
	"github.com/standardseed/pharmscreen/internal/application/extraction"
	"github.com/standardseed/pharmscreen/internal/application/modeling"
	"github.com/standardseed/pharmscreen/internal/application/screening"
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	"github.com/standardseed/pharmscreen/internal/infrastructure/messaging/kafka"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/fsstore"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Pipeline wires the four stage services over a shared run store.
type Pipeline struct {
	extractor  *extraction.Extractor
	modeler    *modeling.Dispatcher
	screener   *screening.Dispatcher
	aggregator *aggregation.Aggregator
	store      *fsstore.Store
	events     *kafka.Producer
	logger     logging.Logger
}

// New creates a Pipeline.  events may be nil.
func New(extractor *extraction.Extractor, modeler *modeling.Dispatcher,
	screener *screening.Dispatcher, aggregator *aggregation.Aggregator,
	store *fsstore.Store, events *kafka.Producer, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Pipeline{
		extractor:  extractor,
		modeler:    modeler,
		screener:   screener,
		aggregator: aggregator,
		store:      store,
		events:     events,
		logger:     logger.Named("pipeline"),
	}
}

// Run executes all four stages end to end against the library at libraryPath
// and returns the aggregation summary.  Re-running over the same store root
// resumes: completed models and scored pairs are reused.
func (p *Pipeline) Run(ctx context.Context, libraryPath string) (*aggregation.Summary, error) {
	start := time.Now()
	runID, err := EnsureRunID(p.store)
	if err != nil {
		return nil, err
	}
	lib, err := LoadLibrary(libraryPath, p.logger)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(logging.String("run_id", runID))
	logger.Info("pipeline run starting",
		logging.String("library", libraryPath),
		logging.Int("chemicals", len(lib.Chemicals)))

	w, err := p.extractor.Run(ctx, lib)
	if err != nil {
		return nil, err
	}
	if err := p.modeler.RunAll(ctx, runID, w); err != nil {
		return nil, err
	}
	if _, err := p.screener.Run(ctx, runID, lib); err != nil {
		return nil, err
	}
	sum, err := p.aggregator.Aggregate(ctx, runID, lib)
	if err != nil {
		return nil, err
	}

	p.events.TryPublish(ctx, runID, kafka.TopicRunCompleted, map[string]any{
		"chemicals":        len(lib.Chemicals),
		"unique_targets":   w.Stats.UniqueTargets,
		"ranked_hits":      len(sum.Hits),
		"incomplete_pairs": len(sum.Incomplete),
		"duration_ms":      time.Since(start).Milliseconds(),
	})
	logger.Info("pipeline run completed",
		logging.Int("ranked_hits", len(sum.Hits)),
		logging.Int("incomplete_pairs", len(sum.Incomplete)),
		logging.Duration("took", time.Since(start)))
	return sum, nil
}

// EnsureRunID returns the run ID owning the store root, minting and
// persisting a fresh one for a root that has not hosted a run yet.
func EnsureRunID(store *fsstore.Store) (string, error) {
	meta, ok, err := store.LoadRunMeta()
	if err != nil {
		return "", err
	}
	if ok {
		return meta.RunID, nil
	}
	meta = fsstore.RunMeta{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	if err := store.SaveRunMeta(meta); err != nil {
		return "", err
	}
	return meta.RunID, nil
}

// LoadLibrary reads and validates the chemical library CSV at path, logging
// every skipped record.
func LoadLibrary(path string, logger logging.Logger) (*chemical.Library, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParseFailed, "failed to open chemical library").
			WithDetail("path=" + path)
	}
	defer f.Close()

	lib, err := chemical.ReadLibraryCSV(f, func(line int, err error) {
		logger.Warn("skipping malformed library record",
			logging.Int("line", line), logging.Err(err))
	})
	if err != nil {
		return nil, err
	}
	if lib.Skipped > 0 {
		logger.Warn("library contained malformed records",
			logging.Int("skipped", lib.Skipped),
			logging.Int("accepted", len(lib.Chemicals)))
	}
	return lib, nil
}
