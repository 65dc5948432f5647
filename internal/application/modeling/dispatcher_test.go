package modeling

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/domain/target"
	"github.com/standardseed/pharmscreen/internal/infrastructure/storage/fsstore"
	apperrors "github.com/standardseed/pharmscreen/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockBuilder struct {
	mu      sync.Mutex
	calls   []string
	buildFn func(ctx context.Context, targetID, outDir string) (string, error)
}

func (m *mockBuilder) Build(ctx context.Context, targetID, outDir string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, targetID)
	m.mu.Unlock()
	if m.buildFn != nil {
		return m.buildFn(ctx, targetID, outDir)
	}
	return filepath.Join(outDir, "model.json"), nil
}

func (m *mockBuilder) built() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type memStore struct {
	mu        sync.Mutex
	artifacts map[string]target.ModelArtifact
	summaries []fsstore.BatchSummary
}

func newMemStore() *memStore {
	return &memStore{artifacts: make(map[string]target.ModelArtifact)}
}

func (s *memStore) SaveArtifact(_ context.Context, _ string, art target.ModelArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[art.TargetID] = art
	return nil
}

func (s *memStore) LoadArtifact(_ context.Context, _, targetID string) (target.ModelArtifact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	art, ok := s.artifacts[targetID]
	return art, ok, nil
}

func (s *memStore) ListArtifacts(_ context.Context, _ string) ([]target.ModelArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arts := make([]target.ModelArtifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		arts = append(arts, a)
	}
	return arts, nil
}

func (s *memStore) ArtifactDir(targetID string) string {
	return filepath.Join("artifacts", targetID)
}

func (s *memStore) SaveBatchSummary(sum fsstore.BatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return nil
}

type mockCache struct {
	mu       sync.Mutex
	done     map[string]bool
	acquired int
	released int
}

func newMockCache() *mockCache {
	return &mockCache{done: make(map[string]bool)}
}

func (c *mockCache) IsModelDone(_ context.Context, _, targetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[targetID]
}

func (c *mockCache) MarkModelDone(_ context.Context, _, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[targetID] = true
	return nil
}

func (c *mockCache) AcquireBatchLock(_ context.Context, _ string, _ int, _ string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired++
	return nil
}

func (c *mockCache) ReleaseBatchLock(_ context.Context, _ string, _ int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func worklist(ids ...string) *target.Worklist {
	w := &target.Worklist{}
	for _, id := range ids {
		w.Targets = append(w.Targets, target.UniqueTarget{ID: id})
	}
	return w
}

func pipelineCfg(batchCount int) config.PipelineConfig {
	return config.PipelineConfig{
		BatchCount:     batchCount,
		CPUWorkers:     2,
		BuildTimeout:   5 * time.Second,
		ScoringTimeout: 5 * time.Second,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Partitioning
// ─────────────────────────────────────────────────────────────────────────────

func TestPartition(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	t.Run("remainder goes to the leading batches", func(t *testing.T) {
		batches := partition(ids, 4)
		require.Len(t, batches, 4)
		assert.Len(t, batches[0], 3)
		assert.Len(t, batches[1], 3)
		assert.Len(t, batches[2], 2)
		assert.Len(t, batches[3], 2)

		// Contiguous ranges: concatenation reproduces the input.
		var all []string
		for _, b := range batches {
			all = append(all, b...)
		}
		assert.Equal(t, ids, all)
	})

	t.Run("even split", func(t *testing.T) {
		batches := partition(ids, 5)
		for _, b := range batches {
			assert.Len(t, b, 2)
		}
	})

	t.Run("more batches than targets leaves trailing batches empty", func(t *testing.T) {
		batches := partition([]string{"a", "b"}, 4)
		require.Len(t, batches, 4)
		assert.Len(t, batches[0], 1)
		assert.Len(t, batches[1], 1)
		assert.Empty(t, batches[2])
		assert.Empty(t, batches[3])
	})

	t.Run("non-positive batch count is clamped", func(t *testing.T) {
		batches := partition(ids, 0)
		require.Len(t, batches, 1)
		assert.Equal(t, ids, batches[0])
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// RunBatch
// ─────────────────────────────────────────────────────────────────────────────

func TestRunBatchBuildsAndPersists(t *testing.T) {
	builder := &mockBuilder{}
	store := newMemStore()
	d := New(builder, store, nil, nil, nil, nil, pipelineCfg(2), nil)

	w := worklist("P1", "P2", "P3")
	sum, err := d.RunBatch(context.Background(), "run-1", w, 0)
	require.NoError(t, err)

	// First of two batches over three targets carries the extra one.
	assert.Equal(t, 2, sum.Targets)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Zero(t, sum.Failed)
	assert.ElementsMatch(t, []string{"P1", "P2"}, builder.built())

	art, ok, err := store.LoadArtifact(context.Background(), "run-1", "P1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, art.Succeeded())
	assert.Equal(t, []string{filepath.Join("artifacts", "P1", "model.json")}, art.ArtifactPaths)
	assert.Equal(t, 0, art.BatchIndex)

	require.Len(t, store.summaries, 1)
	assert.Equal(t, 0, store.summaries[0].BatchIndex)
}

func TestRunBatchClassifiesFailures(t *testing.T) {
	builder := &mockBuilder{
		buildFn: func(_ context.Context, targetID, outDir string) (string, error) {
			switch targetID {
			case "P1":
				return "", apperrors.New(apperrors.ErrCodeModelInvalidStructure, "rejected")
			case "P2":
				return "", apperrors.New(apperrors.ErrCodeModelDownloadFailed, "404")
			}
			return filepath.Join(outDir, "model.json"), nil
		},
	}
	store := newMemStore()
	d := New(builder, store, nil, nil, nil, nil, pipelineCfg(1), nil)

	sum, err := d.RunBatch(context.Background(), "run-1", worklist("P1", "P2", "P3"), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.FailuresByReason[target.ReasonInvalidStructure])
	assert.Equal(t, 1, sum.FailuresByReason[target.ReasonDownloadFailed])

	art, ok, _ := store.LoadArtifact(context.Background(), "run-1", "P1")
	require.True(t, ok)
	assert.Equal(t, target.ModelFailed, art.Status)
	assert.Equal(t, target.ReasonInvalidStructure, art.FailureReason)
	assert.NotEmpty(t, art.Error)
}

func TestRunBatchSkipsPriorSuccesses(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.SaveArtifact(context.Background(), "run-1", target.ModelArtifact{
		TargetID: "P1", Status: target.ModelSuccess, ArtifactPaths: []string{"artifacts/P1/model.json"},
	}))
	// A prior failure is retried.
	require.NoError(t, store.SaveArtifact(context.Background(), "run-1", target.ModelArtifact{
		TargetID: "P2", Status: target.ModelFailed, FailureReason: target.ReasonBuildTimeout,
	}))

	builder := &mockBuilder{}
	d := New(builder, store, nil, nil, nil, nil, pipelineCfg(1), nil)

	sum, err := d.RunBatch(context.Background(), "run-1", worklist("P1", "P2"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, []string{"P2"}, builder.built())
}

func TestRunBatchForceRebuild(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.SaveArtifact(context.Background(), "run-1", target.ModelArtifact{
		TargetID: "P1", Status: target.ModelSuccess,
	}))

	builder := &mockBuilder{}
	cfg := pipelineCfg(1)
	cfg.ForceRebuild = true
	d := New(builder, store, nil, nil, nil, nil, cfg, nil)

	sum, err := d.RunBatch(context.Background(), "run-1", worklist("P1"), 0)
	require.NoError(t, err)
	assert.Zero(t, sum.Skipped)
	assert.Equal(t, []string{"P1"}, builder.built())
}

func TestRunBatchRejectsOutOfRangeIndex(t *testing.T) {
	d := New(&mockBuilder{}, newMemStore(), nil, nil, nil, nil, pipelineCfg(2), nil)

	_, err := d.RunBatch(context.Background(), "run-1", worklist("P1"), 2)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.GetCode(err))

	_, err = d.RunBatch(context.Background(), "run-1", worklist("P1"), -1)
	require.Error(t, err)
}

func TestRunBatchUsesCacheFastPathAndLock(t *testing.T) {
	cache := newMockCache()
	cache.done["P1"] = true

	builder := &mockBuilder{}
	d := New(builder, newMemStore(), cache, nil, nil, nil, pipelineCfg(1), nil)

	sum, err := d.RunBatch(context.Background(), "run-1", worklist("P1", "P2"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, []string{"P2"}, builder.built())
	assert.Equal(t, 1, cache.acquired)
	assert.Equal(t, 1, cache.released)
	// Fresh successes are marked done for the next resume.
	assert.True(t, cache.done["P2"])
}

func TestRunAllCoversEveryTarget(t *testing.T) {
	builder := &mockBuilder{}
	store := newMemStore()
	d := New(builder, store, nil, nil, nil, nil, pipelineCfg(3), nil)

	require.NoError(t, d.RunAll(context.Background(), "run-1", worklist("P1", "P2", "P3", "P4", "P5")))
	assert.ElementsMatch(t, []string{"P1", "P2", "P3", "P4", "P5"}, builder.built())
	assert.Len(t, store.summaries, 3)
}
