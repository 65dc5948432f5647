package aggregation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/chemical"
	scr "github.com/standardseed/pharmscreen/internal/domain/screening"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/fsstore"
	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mock store
// ─────────────────────────────────────────────────────────────────────────────

type mockStore struct {
	worklist  *target.Worklist
	artifacts []target.ModelArtifact
	results   []scr.Result
	batches   []fsstore.BatchSummary
	stats     *scr.Stats

	savedHits       []scr.CombinedHit
	savedTop        []scr.CombinedHit
	savedTopK       int
	savedIncomplete []scr.IncompletePair
	savedReport     string
}

func (s *mockStore) LoadWorklist() (*target.Worklist, bool, error) {
	return s.worklist, s.worklist != nil, nil
}

func (s *mockStore) ListArtifacts(context.Context, string) ([]target.ModelArtifact, error) {
	return s.artifacts, nil
}

func (s *mockStore) ListResults(context.Context, string) ([]scr.Result, error) {
	return s.results, nil
}

func (s *mockStore) LoadBatchSummaries() ([]fsstore.BatchSummary, error) {
	return s.batches, nil
}

func (s *mockStore) LoadScreeningStats() (scr.Stats, bool, error) {
	if s.stats == nil {
		return scr.Stats{}, false, nil
	}
	return *s.stats, true, nil
}

func (s *mockStore) SaveCombinedHits(hits []scr.CombinedHit) error {
	s.savedHits = hits
	return nil
}

func (s *mockStore) SaveTopHits(hits []scr.CombinedHit, k int) error {
	s.savedTop = hits
	s.savedTopK = k
	return nil
}

func (s *mockStore) SaveIncompletePairs(pairs []scr.IncompletePair) error {
	s.savedIncomplete = pairs
	return nil
}

func (s *mockStore) SaveReportText(text string) error {
	s.savedReport = text
	return nil
}

type mockHitStore struct {
	runID string
	hits  []scr.CombinedHit
	err   error
}

func (s *mockHitStore) SaveCombinedHits(_ context.Context, runID string, hits []scr.CombinedHit) error {
	s.runID = runID
	s.hits = hits
	return s.err
}

type mockPresigner struct {
	calls []string
}

func (p *mockPresigner) TryPresignArtifact(_ context.Context, _, targetID, path string) string {
	p.calls = append(p.calls, targetID+":"+path)
	return "https://mirror.test/" + targetID
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
//
// Two chemicals, three worklist targets: P1 and P2 modeled successfully, P3
// failed to build.  Screening covers the 2x2 cross product; c2/P2 timed out.
// P2 was proposed only by c1, so c2/P2 joins with no similarity leg.
// ─────────────────────────────────────────────────────────────────────────────

func fixtureStore() *mockStore {
	return &mockStore{
		worklist: &target.Worklist{
			Selected: []chemical.CandidateTarget{
				{ChemicalID: "c1", TargetID: "P1", SourceRank: 1, Similarity: 0.9},
				{ChemicalID: "c1", TargetID: "P2", SourceRank: 2, Similarity: 0.8},
				{ChemicalID: "c1", TargetID: "P3", SourceRank: 3, Similarity: 0.5},
				{ChemicalID: "c2", TargetID: "P1", SourceRank: 1, Similarity: 0.6},
			},
			Targets: []target.UniqueTarget{
				{ID: "P1"}, {ID: "P2"}, {ID: "P3"},
			},
		},
		artifacts: []target.ModelArtifact{
			{TargetID: "P1", Status: target.ModelSuccess, ArtifactPaths: []string{"P1/model.json"}},
			{TargetID: "P2", Status: target.ModelSuccess, ArtifactPaths: []string{"P2/model.json"}},
			{TargetID: "P3", Status: target.ModelFailed, FailureReason: target.ReasonBuildTimeout},
		},
		results: []scr.Result{
			{ChemicalID: "c1", TargetID: "P1", Status: scr.StatusSuccess, Score: 4},
			{ChemicalID: "c1", TargetID: "P2", Status: scr.StatusSuccess, Score: 8},
			{ChemicalID: "c2", TargetID: "P1", Status: scr.StatusSuccess, Score: 6},
			{ChemicalID: "c2", TargetID: "P2", Status: scr.StatusFailed, FailureReason: scr.ReasonTimeout},
		},
		batches: []fsstore.BatchSummary{
			{BatchIndex: 0, BatchCount: 1, Targets: 3, Succeeded: 2, Failed: 1},
		},
	}
}

func fixtureLib() *chemical.Library {
	return &chemical.Library{Chemicals: []chemical.Chemical{
		{ID: "c1", Name: "c1", SMILES: "CCO"},
		{ID: "c2", Name: "c2", SMILES: "CCN"},
	}}
}

func aggCfg() config.PipelineConfig {
	return config.PipelineConfig{
		TopKReport:       2,
		SimilarityWeight: 0.5,
		ScreeningWeight:  0.5,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestAggregateJoinsRanksAndReports(t *testing.T) {
	store := fixtureStore()
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	sum, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.NoError(t, err)

	// Three successful pairs join into hits; scores normalize over [4, 8].
	require.Len(t, sum.Hits, 3)
	assert.Equal(t, 1, sum.Hits[0].Rank)

	// c1/P2: sim 0.8, normalized screening 1.0 -> combined 0.9, the top hit.
	top := sum.Hits[0]
	assert.Equal(t, "c1", top.ChemicalID)
	assert.Equal(t, "P2", top.TargetID)
	assert.InDelta(t, 1.0, top.NormalizedScreening, 1e-12)
	assert.InDelta(t, 0.9, top.CombinedScore, 1e-12)

	// Incomplete: c2/P2 at screening, plus both chemicals against failed P3.
	require.Len(t, sum.Incomplete, 3)
	assert.Equal(t, scr.IncompletePair{
		ChemicalID: "c1", TargetID: "P3", Stage: "modeling", Reason: "build_timeout",
	}, sum.Incomplete[0])
	assert.Equal(t, scr.IncompletePair{
		ChemicalID: "c2", TargetID: "P2", Stage: "screening", Reason: "scoring_timeout",
	}, sum.Incomplete[1])
	assert.Equal(t, "P3", sum.Incomplete[2].TargetID)

	// Everything was persisted.
	assert.Len(t, store.savedHits, 3)
	assert.Equal(t, 2, store.savedTopK)
	assert.Len(t, store.savedIncomplete, 3)
	assert.NotEmpty(t, store.savedReport)
	assert.Len(t, sum.Batches, 1)
}

func TestAggregateZeroSimilarityJoin(t *testing.T) {
	store := fixtureStore()
	// Make c2/P2 succeed so the pair without a similarity leg becomes a hit.
	store.results[3] = scr.Result{
		ChemicalID: "c2", TargetID: "P2", Status: scr.StatusSuccess, Score: 5,
	}
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	sum, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.NoError(t, err)

	var hit *scr.CombinedHit
	for i := range sum.Hits {
		if sum.Hits[i].ChemicalID == "c2" && sum.Hits[i].TargetID == "P2" {
			hit = &sum.Hits[i]
		}
	}
	require.NotNil(t, hit)
	assert.Zero(t, hit.SimilarityScore)
	assert.InDelta(t, 5, hit.ScreeningScore, 1e-12)
}

func TestAggregateMissingWorklist(t *testing.T) {
	agg := New(&mockStore{}, nil, nil, nil, aggCfg(), nil)

	_, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAggregationInconsistent, apperrors.GetCode(err))
}

func TestAggregateRejectsUnknownModelRecord(t *testing.T) {
	store := fixtureStore()
	store.artifacts = append(store.artifacts, target.ModelArtifact{
		TargetID: "P99", Status: target.ModelSuccess,
	})
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	_, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAggregationInconsistent, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "P99")
}

func TestAggregateRejectsDuplicateResults(t *testing.T) {
	store := fixtureStore()
	store.results = append(store.results, store.results[0])
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	_, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestAggregateRejectsIncompleteCrossProduct(t *testing.T) {
	store := fixtureStore()
	store.results = store.results[:3]
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	_, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAggregationInconsistent, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "cross product")
}

func TestAggregateComputesStatsWhenUnpersisted(t *testing.T) {
	store := fixtureStore()
	store.stats = nil
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	sum, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Screening.Attempted)
	assert.Equal(t, 3, sum.Screening.Succeeded)
}

func TestAggregatePrefersPersistedStats(t *testing.T) {
	store := fixtureStore()
	store.stats = &scr.Stats{Attempted: 4, Succeeded: 3, Failed: 1, MaxScore: 8}
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	sum, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.NoError(t, err)
	assert.InDelta(t, 8, sum.Screening.MaxScore, 1e-12)
}

func TestAggregateMirrorsHitsToDatabase(t *testing.T) {
	store := fixtureStore()
	db := &mockHitStore{}
	agg := New(store, nil, db, nil, aggCfg(), nil)

	sum, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.NoError(t, err)

	assert.Equal(t, "run-1", db.runID)
	assert.Equal(t, sum.Hits, db.hits)
	// The filesystem copy stays authoritative and gets the same rows.
	assert.Equal(t, store.savedHits, db.hits)
}

func TestAggregatePropagatesHitMirrorFailure(t *testing.T) {
	store := fixtureStore()
	db := &mockHitStore{err: apperrors.New(apperrors.ErrCodeStorageError, "db down")}
	agg := New(store, nil, db, nil, aggCfg(), nil)

	_, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeReportWriteFailed, apperrors.GetCode(err))
}

func TestAggregatePresignsTopArtifacts(t *testing.T) {
	store := fixtureStore()
	presigner := &mockPresigner{}
	agg := New(store, presigner, nil, nil, aggCfg(), nil)

	sum, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.NoError(t, err)

	// Both modeled targets appear in the top interactions; failed P3 has no
	// artifact to link.
	require.Len(t, sum.ArtifactURLs, 2)
	assert.Equal(t, "https://mirror.test/P1", sum.ArtifactURLs["P1"])
	assert.Equal(t, "https://mirror.test/P2", sum.ArtifactURLs["P2"])
	// Each target is presigned once with its model path despite multiple hits.
	assert.ElementsMatch(t, []string{"P1:P1/model.json", "P2:P2/model.json"}, presigner.calls)

	assert.Contains(t, store.savedReport, "Model artifact downloads")
	assert.Contains(t, store.savedReport, "P2: https://mirror.test/P2")
}

func TestAggregateWithoutPresignerOmitsDownloadSection(t *testing.T) {
	store := fixtureStore()
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	sum, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.NoError(t, err)
	assert.Nil(t, sum.ArtifactURLs)
	assert.NotContains(t, store.savedReport, "Model artifact downloads")
}

func TestRenderReportSections(t *testing.T) {
	store := fixtureStore()
	agg := New(store, nil, nil, nil, aggCfg(), nil)

	_, err := agg.Aggregate(context.Background(), "run-1", fixtureLib())
	require.NoError(t, err)

	report := store.savedReport
	assert.Contains(t, report, "Integrated virtual screening report")
	assert.Contains(t, report, "run-1")
	assert.Contains(t, report, "Target extraction")
	assert.Contains(t, report, "Pharmacophore modeling")
	assert.Contains(t, report, "Screening")
	assert.Contains(t, report, "c1 -> P2")
	assert.Contains(t, report, "incomplete_pairs.csv")
	// One line per ranked hit in the top list.
	assert.True(t, strings.Contains(report, "  1. ") || strings.Contains(report, "1. c1"))
}
