package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a fully valid configuration with all optional
// integrations disabled.
func validConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			TopNPerChemical:  10,
			BatchCount:       4,
			CPUWorkers:       2,
			BuildTimeout:     time.Minute,
			ScoringTimeout:   30 * time.Second,
			TopKReport:       50,
			SimilarityWeight: 0.5,
			ScreeningWeight:  0.5,
		},
		Tools: ToolsConfig{
			BuilderCommand: []string{"pharmit-build", "{target_id}", "{out_dir}"},
			ScorerCommand:  []string{"pharmit-score", "{smiles}", "{model}"},
		},
		Storage: StorageConfig{RootDir: "workspace"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unsupported top_n", func(c *Config) { c.Pipeline.TopNPerChemical = 7 }, "top_n_per_chemical"},
		{"top_n of 5 accepted", func(c *Config) { c.Pipeline.TopNPerChemical = 5 }, ""},
		{"top_n of 20 accepted", func(c *Config) { c.Pipeline.TopNPerChemical = 20 }, ""},
		{"zero batch count", func(c *Config) { c.Pipeline.BatchCount = 0 }, "batch_count"},
		{"zero cpu workers", func(c *Config) { c.Pipeline.CPUWorkers = 0 }, "cpu_workers"},
		{"zero build timeout", func(c *Config) { c.Pipeline.BuildTimeout = 0 }, "build_timeout"},
		{"negative scoring timeout", func(c *Config) { c.Pipeline.ScoringTimeout = -time.Second }, "scoring_timeout"},
		{"zero top_k", func(c *Config) { c.Pipeline.TopKReport = 0 }, "top_k_report"},
		{"negative weight", func(c *Config) {
			c.Pipeline.SimilarityWeight = -0.2
			c.Pipeline.ScreeningWeight = 1.2
		}, "non-negative"},
		{"weights not summing to one", func(c *Config) {
			c.Pipeline.SimilarityWeight = 0.5
			c.Pipeline.ScreeningWeight = 0.6
		}, "sum to 1.0"},
		{"weights within epsilon accepted", func(c *Config) {
			c.Pipeline.SimilarityWeight = 0.3
			c.Pipeline.ScreeningWeight = 0.7
		}, ""},
		{"empty storage root", func(c *Config) { c.Storage.RootDir = "" }, "root_dir"},
		{"missing builder command", func(c *Config) { c.Tools.BuilderCommand = nil }, "builder_command"},
		{"missing scorer command", func(c *Config) { c.Tools.ScorerCommand = nil }, "scorer_command"},
		{"postgres enabled without host", func(c *Config) {
			c.Postgres.Enabled = true
			c.Postgres.DBName = "db"
		}, "postgres"},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true }, "redis"},
		{"kafka enabled without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka"},
		{"minio enabled without bucket", func(c *Config) {
			c.MinIO.Enabled = true
			c.MinIO.Endpoint = "localhost:9000"
		}, "minio"},
		{"milvus enabled without collection", func(c *Config) {
			c.Milvus.Enabled = true
			c.Milvus.Addr = "localhost:19530"
		}, "milvus"},
		{"disabled integrations skip validation", func(c *Config) {
			c.Postgres.Enabled = false
			c.Redis.Enabled = false
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Run("fills zero values", func(t *testing.T) {
		cfg := &Config{}
		ApplyDefaults(cfg)

		assert.Equal(t, DefaultTopNPerChemical, cfg.Pipeline.TopNPerChemical)
		assert.Equal(t, DefaultBatchCount, cfg.Pipeline.BatchCount)
		assert.Equal(t, runtime.NumCPU(), cfg.Pipeline.CPUWorkers)
		assert.Equal(t, DefaultBuildTimeout, cfg.Pipeline.BuildTimeout)
		assert.Equal(t, DefaultScoringTimeout, cfg.Pipeline.ScoringTimeout)
		assert.Equal(t, DefaultTopKReport, cfg.Pipeline.TopKReport)
		assert.Equal(t, DefaultWeight, cfg.Pipeline.SimilarityWeight)
		assert.Equal(t, DefaultWeight, cfg.Pipeline.ScreeningWeight)
		assert.Equal(t, DefaultStorageRoot, cfg.Storage.RootDir)
		assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
		assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
		assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
		assert.Equal(t, DefaultMetricsListen, cfg.Metrics.Listen)
		assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
	})

	t.Run("explicit values win", func(t *testing.T) {
		cfg := &Config{}
		cfg.Pipeline.BatchCount = 8
		cfg.Storage.RootDir = "/data/runs"
		ApplyDefaults(cfg)
		assert.Equal(t, 8, cfg.Pipeline.BatchCount)
		assert.Equal(t, "/data/runs", cfg.Storage.RootDir)
	})

	t.Run("weights default only when both are unset", func(t *testing.T) {
		cfg := &Config{}
		cfg.Pipeline.SimilarityWeight = 0.3
		ApplyDefaults(cfg)
		// A single explicit weight is left alone so Validate can reject the
		// half-specified pair instead of silently rebalancing it.
		assert.Equal(t, 0.3, cfg.Pipeline.SimilarityWeight)
		assert.Equal(t, 0.0, cfg.Pipeline.ScreeningWeight)
	})

	t.Run("nil config is a no-op", func(t *testing.T) {
		ApplyDefaults(nil)
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
pipeline:
  top_n_per_chemical: 15
  batch_count: 3
  build_timeout: 5m
tools:
  builder_command: ["builder", "{target_id}", "{out_dir}"]
  scorer_command: ["scorer", "{smiles}", "{model}"]
storage:
  root_dir: /tmp/screening
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Pipeline.TopNPerChemical)
	assert.Equal(t, 3, cfg.Pipeline.BatchCount)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.BuildTimeout)
	assert.Equal(t, "/tmp/screening", cfg.Storage.RootDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset fields received defaults.
	assert.Equal(t, DefaultScoringTimeout, cfg.Pipeline.ScoringTimeout)
	assert.Equal(t, DefaultWeight, cfg.Pipeline.SimilarityWeight)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	// top_n of 7 is not a supported candidate depth.
	yaml := `
pipeline:
  top_n_per_chemical: 7
tools:
  builder_command: ["builder"]
  scorer_command: ["scorer"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
