package cli

import (
	"context"

	"github.com/standardseed/pharmscreen/internal/application/aggregation"
	"github.com/standardseed/pharmscreen/internal/application/extraction"
	"github.com/standardseed/pharmscreen/internal/application/modeling"
	appscreening "github.com/standardseed/pharmscreen/internal/application/screening"
	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	"github.com/standardseed/pharmscreen/internal/infrastructure/database/postgres"
	"github.com/standardseed/pharmscreen/internal/infrastructure/database/redis"
	"github.com/standardseed/pharmscreen/internal/infrastructure/messaging/kafka"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/prometheus"
	"github.com/standardseed/pharmscreen/internal/infrastructure/search/milvus"
	"github.com/standardseed/pharmscreen/internal/infrastructure/search/report"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/composite"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/fsstore"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/minio"
	"github.com/standardseed/pharmscreen/internal/infrastructure/toolchain"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// App carries the wired pipeline components for one CLI invocation.
// Optional infrastructure (Redis, Kafka, MinIO, Postgres, Milvus, metrics) is
// wired only when enabled; the corresponding fields stay nil otherwise.
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	Store   *fsstore.Store
	Metrics *prometheus.Metrics

	Extractor  *extraction.Extractor
	Modeler    *modeling.Dispatcher
	Screener   *appscreening.Dispatcher
	Aggregator *aggregation.Aggregator

	Events *kafka.Producer

	simSearcher  chemical.SimilaritySearcher
	cache        *redis.RunState
	mirror       *minio.Mirror
	searcher     *milvus.Searcher
	dbStore      *postgres.Store
	stopMetrics  context.CancelFunc
	metricsError chan error
}

// NewApp wires every component the commands need from cfg.  ctx bounds the
// connection handshakes of the enabled infrastructure.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	store, err := fsstore.New(cfg.Storage.RootDir, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if cfg.Metrics.Enabled {
		a.Metrics = prometheus.New()
		mctx, cancel := context.WithCancel(context.Background())
		a.stopMetrics = cancel
		a.metricsError = make(chan error, 1)
		go func() {
			a.metricsError <- a.Metrics.Serve(mctx, cfg.Metrics, logger)
		}()
	}

	if cfg.Redis.Enabled {
		if a.cache, err = redis.NewRunState(ctx, cfg.Redis, logger); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.Kafka.Enabled {
		a.Events = kafka.NewProducer(cfg.Kafka, logger)
	}
	if cfg.MinIO.Enabled {
		if a.mirror, err = minio.NewMirror(ctx, cfg.MinIO, logger); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.Milvus.Enabled {
		if a.searcher, err = milvus.NewSearcher(ctx, cfg.Milvus, logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	modelStore := modeling.Store(store)
	resultStore := appscreening.Store(store)
	if cfg.Postgres.Enabled {
		if err := postgres.Migrate(cfg.Postgres, logger); err != nil {
			a.Close()
			return nil, err
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.dbStore = postgres.NewStore(pool)
		modelStore = composite.NewModelStore(store, a.dbStore)
		resultStore = composite.NewResultStore(store, a.dbStore)
	}

	if a.searcher != nil {
		a.simSearcher = a.searcher
	}

	a.Extractor = extraction.New(a.simSearcher, store, cfg.Pipeline.TopNPerChemical, a.Metrics, logger)
	a.Modeler = modeling.New(toolchain.NewBuilder(cfg.Tools), modelStore, runStateCache(a.cache),
		a.mirror, a.Events, a.Metrics, cfg.Pipeline, logger)
	a.Screener = appscreening.New(toolchain.NewScorer(cfg.Tools), resultStore, modelStore,
		pairCache(a.cache), a.Events, a.Metrics, cfg.Pipeline, logger)
	a.Aggregator = aggregation.New(store, artifactPresigner(a.mirror), hitStore(a.dbStore),
		a.Metrics, cfg.Pipeline, logger)
	return a, nil
}

// UseSimilarityReport replaces the similarity collaborator with one backed by
// a precomputed report file, so extraction can run without a vector store.
func (a *App) UseSimilarityReport(path string) error {
	searcher, err := report.Load(path, a.Logger)
	if err != nil {
		return err
	}
	a.simSearcher = searcher
	a.Extractor = extraction.New(a.simSearcher, a.Store,
		a.Config.Pipeline.TopNPerChemical, a.Metrics, a.Logger)
	return nil
}

// RequireSearcher fails commands that need the similarity collaborator when
// it is not configured.
func (a *App) RequireSearcher() error {
	if a.simSearcher == nil {
		return errors.New(errors.ErrCodeConfigMissing,
			"similarity search requires milvus.enabled or --similarity-report")
	}
	return nil
}

// Close releases every held connection.  Safe to call on a partially wired App.
func (a *App) Close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
		if err := <-a.metricsError; err != nil {
			a.Logger.Warn("metrics server shut down with error", logging.Err(err))
		}
	}
	if a.searcher != nil {
		a.searcher.Close()
	}
	if a.Events != nil {
		a.Events.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.dbStore != nil {
		a.dbStore.Close()
	}
}

// runStateCache converts a possibly-nil concrete cache into the dispatcher's
// interface without producing a typed-nil interface value.
func runStateCache(c *redis.RunState) modeling.RunStateCache {
	if c == nil {
		return nil
	}
	return c
}

func pairCache(c *redis.RunState) appscreening.PairCache {
	if c == nil {
		return nil
	}
	return c
}

func artifactPresigner(m *minio.Mirror) aggregation.ArtifactPresigner {
	if m == nil {
		return nil
	}
	return m
}

func hitStore(s *postgres.Store) aggregation.HitStore {
	if s == nil {
		return nil
	}
	return s
}
