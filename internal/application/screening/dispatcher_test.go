package screening

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	scr "github.com/standardseed/pharmscreen/internal/domain/screening"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockScorer struct {
	mu      sync.Mutex
	calls   int
	scoreFn func(ctx context.Context, chem chemical.Chemical, model target.ModelArtifact) (float64, error)
}

func (m *mockScorer) Score(ctx context.Context, chem chemical.Chemical, model target.ModelArtifact) (float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.scoreFn != nil {
		return m.scoreFn(ctx, chem, model)
	}
	return 1.0, nil
}

func (m *mockScorer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memResultStore struct {
	mu       sync.Mutex
	results  map[string]scr.Result
	exported []scr.Result
	stats    *scr.Stats
}

func newMemResultStore() *memResultStore {
	return &memResultStore{results: make(map[string]scr.Result)}
}

func (s *memResultStore) SaveResult(_ context.Context, _ string, res scr.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.PairKey()] = res
	return nil
}

func (s *memResultStore) LoadResult(_ context.Context, _, chemicalID, targetID string) (scr.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[chemicalID+"\x00"+targetID]
	return res, ok, nil
}

func (s *memResultStore) ListResults(_ context.Context, _ string) ([]scr.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scr.Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	scr.SortResults(out)
	return out, nil
}

func (s *memResultStore) ExportResultViews(_ context.Context, results []scr.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exported = append([]scr.Result(nil), results...)
	return nil
}

func (s *memResultStore) SaveScreeningStats(stats scr.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = &stats
	return nil
}

type memModelStore struct {
	arts []target.ModelArtifact
}

func (s *memModelStore) SaveArtifact(context.Context, string, target.ModelArtifact) error {
	return nil
}

func (s *memModelStore) LoadArtifact(context.Context, string, string) (target.ModelArtifact, bool, error) {
	return target.ModelArtifact{}, false, nil
}

func (s *memModelStore) ListArtifacts(context.Context, string) ([]target.ModelArtifact, error) {
	return s.arts, nil
}

type mockPairCache struct {
	mu   sync.Mutex
	done map[string]bool
}

func newMockPairCache() *mockPairCache {
	return &mockPairCache{done: make(map[string]bool)}
}

func (c *mockPairCache) IsPairDone(_ context.Context, _, chemicalID, targetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[chemicalID+"/"+targetID]
}

func (c *mockPairCache) MarkPairDone(_ context.Context, _, chemicalID, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[chemicalID+"/"+targetID] = true
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func testLib(ids ...string) *chemical.Library {
	l := &chemical.Library{}
	for _, id := range ids {
		l.Chemicals = append(l.Chemicals, chemical.Chemical{ID: id, Name: id, SMILES: "CCO"})
	}
	return l
}

func modelStore(artifacts ...target.ModelArtifact) *memModelStore {
	return &memModelStore{arts: artifacts}
}

func success(targetID string) target.ModelArtifact {
	return target.ModelArtifact{TargetID: targetID, Status: target.ModelSuccess, ArtifactPaths: []string{targetID + "/model.json"}}
}

func failed(targetID string) target.ModelArtifact {
	return target.ModelArtifact{TargetID: targetID, Status: target.ModelFailed, FailureReason: target.ReasonBuildError}
}

func screeningCfg() config.PipelineConfig {
	return config.PipelineConfig{
		BatchCount:     1,
		CPUWorkers:     2,
		BuildTimeout:   5 * time.Second,
		ScoringTimeout: 5 * time.Second,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestRunScoresFullCrossProduct(t *testing.T) {
	scorer := &mockScorer{
		scoreFn: func(_ context.Context, chem chemical.Chemical, model target.ModelArtifact) (float64, error) {
			return float64(len(chem.ID) + len(model.TargetID)), nil
		},
	}
	store := newMemResultStore()
	// Failed models are excluded from the cross product.
	models := modelStore(success("P1"), success("P2"), failed("P3"))

	d := New(scorer, store, models, nil, nil, nil, screeningCfg(), nil)
	stats, err := d.Run(context.Background(), "run-1", testLib("c1", "c2"))
	require.NoError(t, err)

	// 2 chemicals x 2 successful models.
	assert.Equal(t, 4, stats.Attempted)
	assert.Equal(t, 4, stats.Succeeded)
	assert.Equal(t, 4, scorer.callCount())

	require.Len(t, store.exported, 4)
	assert.Equal(t, "c1", store.exported[0].ChemicalID)
	assert.Equal(t, "P1", store.exported[0].TargetID)
	assert.Equal(t, "c2", store.exported[3].ChemicalID)
	assert.Equal(t, "P2", store.exported[3].TargetID)
	require.NotNil(t, store.stats)
	assert.Equal(t, 4, store.stats.Attempted)
}

func TestRunIsolatesPairFailures(t *testing.T) {
	scorer := &mockScorer{
		scoreFn: func(_ context.Context, chem chemical.Chemical, model target.ModelArtifact) (float64, error) {
			if chem.ID == "c1" && model.TargetID == "P1" {
				return 0, apperrors.New(apperrors.ErrCodeScoringInvalidSMILES, "bad smiles")
			}
			return 2.5, nil
		},
	}
	store := newMemResultStore()
	d := New(scorer, store, modelStore(success("P1"), success("P2")), nil, nil, nil, screeningCfg(), nil)

	stats, err := d.Run(context.Background(), "run-1", testLib("c1", "c2"))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Attempted)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.FailuresByReason[scr.ReasonInvalidSMILES])

	res, ok, err := store.LoadResult(context.Background(), "run-1", "c1", "P1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, scr.StatusFailed, res.Status)
	assert.Equal(t, scr.ReasonInvalidSMILES, res.FailureReason)
	assert.NotEmpty(t, res.Error)
}

func TestRunReusesPriorResults(t *testing.T) {
	store := newMemResultStore()
	require.NoError(t, store.SaveResult(context.Background(), "run-1", scr.Result{
		ChemicalID: "c1", TargetID: "P1", Status: scr.StatusSuccess, Score: 9.9,
	}))

	scorer := &mockScorer{}
	d := New(scorer, store, modelStore(success("P1")), nil, nil, nil, screeningCfg(), nil)

	stats, err := d.Run(context.Background(), "run-1", testLib("c1", "c2"))
	require.NoError(t, err)

	// Only the c2/P1 pair needed scoring.
	assert.Equal(t, 1, scorer.callCount())
	assert.Equal(t, 2, stats.Attempted)

	res, _, err := store.LoadResult(context.Background(), "run-1", "c1", "P1")
	require.NoError(t, err)
	assert.InDelta(t, 9.9, res.Score, 1e-12)
}

func TestRunForceRescreen(t *testing.T) {
	store := newMemResultStore()
	require.NoError(t, store.SaveResult(context.Background(), "run-1", scr.Result{
		ChemicalID: "c1", TargetID: "P1", Status: scr.StatusSuccess, Score: 9.9,
	}))

	scorer := &mockScorer{}
	cfg := screeningCfg()
	cfg.ForceRescreen = true
	d := New(scorer, store, modelStore(success("P1")), nil, nil, nil, cfg, nil)

	_, err := d.Run(context.Background(), "run-1", testLib("c1"))
	require.NoError(t, err)
	assert.Equal(t, 1, scorer.callCount())

	res, _, err := store.LoadResult(context.Background(), "run-1", "c1", "P1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Score, 1e-12)
}

func TestRunCacheMarkerAloneDoesNotSatisfyResume(t *testing.T) {
	cache := newMockPairCache()
	cache.done["c1/P1"] = true

	scorer := &mockScorer{}
	store := newMemResultStore()
	d := New(scorer, store, modelStore(success("P1")), cache, nil, nil, screeningCfg(), nil)

	_, err := d.Run(context.Background(), "run-1", testLib("c1"))
	require.NoError(t, err)
	// The cache says done but the store has no payload: the pair is rescored.
	assert.Equal(t, 1, scorer.callCount())

	_, ok, err := store.LoadResult(context.Background(), "run-1", "c1", "P1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunMarksFreshSuccessesInCache(t *testing.T) {
	cache := newMockPairCache()
	d := New(&mockScorer{}, newMemResultStore(), modelStore(success("P1")), cache, nil, nil, screeningCfg(), nil)

	_, err := d.Run(context.Background(), "run-1", testLib("c1"))
	require.NoError(t, err)
	assert.True(t, cache.done["c1/P1"])
}

func TestRunNoSuccessfulModels(t *testing.T) {
	store := newMemResultStore()
	d := New(&mockScorer{}, store, modelStore(failed("P1")), nil, nil, nil, screeningCfg(), nil)

	stats, err := d.Run(context.Background(), "run-1", testLib("c1"))
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)
	require.NotNil(t, store.stats)
}

func TestRunTimeoutClassification(t *testing.T) {
	cfg := screeningCfg()
	cfg.ScoringTimeout = 20 * time.Millisecond

	scorer := &mockScorer{
		scoreFn: func(ctx context.Context, chem chemical.Chemical, _ target.ModelArtifact) (float64, error) {
			if chem.ID == "c1" {
				<-ctx.Done()
				return 0, ctx.Err()
			}
			return 1.5, nil
		},
	}
	store := newMemResultStore()
	d := New(scorer, store, modelStore(success("P1")), nil, nil, nil, cfg, nil)

	stats, err := d.Run(context.Background(), "run-1", testLib("c1", "c2"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailuresByReason[scr.ReasonTimeout])

	res, ok, _ := store.LoadResult(context.Background(), "run-1", "c1", "P1")
	require.True(t, ok)
	assert.Equal(t, scr.ReasonTimeout, res.FailureReason)
}
