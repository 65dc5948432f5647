// Package config defines all configuration structures for the pharmscreen
// pipeline.  No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"fmt"
	"math"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// PipelineConfig holds the tunables of the four screening stages.
type PipelineConfig struct {
	// TopNPerChemical is the number of candidate targets retained per chemical
	// during extraction.  Only 5, 10, 15 and 20 are supported.
	TopNPerChemical int `mapstructure:"top_n_per_chemical"`

	// BatchCount is the number of modeling batches the target worklist is
	// partitioned into.  Each batch maps to one external execution slot.
	BatchCount int `mapstructure:"batch_count"`

	// CPUWorkers bounds in-process concurrency inside a single batch or
	// screening run.  Defaults to runtime.NumCPU().
	CPUWorkers int `mapstructure:"cpu_workers"`

	// BuildTimeout bounds a single pharmacophore model build.
	BuildTimeout time.Duration `mapstructure:"build_timeout"`

	// ScoringTimeout bounds a single chemical-target scoring call.
	ScoringTimeout time.Duration `mapstructure:"scoring_timeout"`

	// ForceRebuild re-runs model builds even when a prior success exists.
	ForceRebuild bool `mapstructure:"force_rebuild"`

	// ForceRescreen re-runs scoring even when a prior result exists.
	ForceRescreen bool `mapstructure:"force_rescreen"`

	// TopKReport is the number of top combined hits exported to the hits CSV.
	TopKReport int `mapstructure:"top_k_report"`

	// SimilarityWeight and ScreeningWeight control the combined score.
	// Both must be non-negative and sum to 1.0.
	SimilarityWeight float64 `mapstructure:"similarity_weight"`
	ScreeningWeight  float64 `mapstructure:"screening_weight"`
}

// ToolsConfig names the external collaborator commands.  Both are argv
// templates; occurrences of {target_id}, {out_dir}, {smiles}, {model} and
// {chemical_id} are substituted per invocation.
type ToolsConfig struct {
	// BuilderCommand builds one pharmacophore model.  The command must create
	// its artifact under {out_dir} and print the artifact path on stdout.
	BuilderCommand []string `mapstructure:"builder_command"`

	// ScorerCommand scores one chemical against one model.  The command must
	// print the numeric score on the last line of stdout.
	ScorerCommand []string `mapstructure:"scorer_command"`
}

// StorageConfig holds the filesystem run-store layout root.
type StorageConfig struct {
	// RootDir is the directory under which all per-run artifacts, status files
	// and reports are written.
	RootDir string `mapstructure:"root_dir"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// shared result store.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters for the optional run-state
// cache and batch-slot locks.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer parameters for optional progress events.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	TopicPrefix  string        `mapstructure:"topic_prefix"`
	BatchSize    int           `mapstructure:"batch_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters for the
// optional artifact mirror.
type MinIOConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// MilvusConfig holds Milvus vector-store parameters for the optional
// fingerprint similarity searcher.
type MilvusConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addr        string `mapstructure:"addr"`
	Collection  string `mapstructure:"collection"`
	VectorField string `mapstructure:"vector_field"`
	MetricType  string `mapstructure:"metric_type"`
	SearchEf    int    `mapstructure:"search_ef"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level            string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string   `mapstructure:"format"` // "json" | "console"
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the entire pipeline.
// Every infrastructure component and application service reads its settings
// from the relevant sub-struct.  The value is immutable once loaded; it is
// threaded through component constructors, never mutated at runtime.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Milvus   MilvusConfig   `mapstructure:"milvus"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// supportedTopN enumerates the candidate-list depths the extraction stage
// accepts.  Any other value aborts the run before work starts.
var supportedTopN = map[int]bool{5: true, 10: true, 15: true, 20: true}

// weightEpsilon tolerates float rounding when checking that the two score
// weights sum to 1.0.
const weightEpsilon = 1e-9

// Validate checks the entire configuration tree and returns a descriptive
// error on the first violation found.  Optional sub-configs are validated
// only when enabled.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage.root_dir must not be empty")
	}
	if len(c.Tools.BuilderCommand) == 0 {
		return fmt.Errorf("tools.builder_command must not be empty")
	}
	if len(c.Tools.ScorerCommand) == 0 {
		return fmt.Errorf("tools.scorer_command must not be empty")
	}
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("postgres enabled but host or db_name is empty")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis enabled but addr is empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("minio enabled but endpoint or bucket is empty")
		}
	}
	if c.Milvus.Enabled {
		if c.Milvus.Addr == "" || c.Milvus.Collection == "" {
			return fmt.Errorf("milvus enabled but addr or collection is empty")
		}
	}
	return nil
}

// Validate checks the stage tunables.
func (p *PipelineConfig) Validate() error {
	if !supportedTopN[p.TopNPerChemical] {
		return fmt.Errorf("pipeline.top_n_per_chemical must be one of 5, 10, 15, 20; got %d", p.TopNPerChemical)
	}
	if p.BatchCount < 1 {
		return fmt.Errorf("pipeline.batch_count must be >= 1; got %d", p.BatchCount)
	}
	if p.CPUWorkers < 1 {
		return fmt.Errorf("pipeline.cpu_workers must be >= 1; got %d", p.CPUWorkers)
	}
	if p.BuildTimeout <= 0 {
		return fmt.Errorf("pipeline.build_timeout must be positive; got %s", p.BuildTimeout)
	}
	if p.ScoringTimeout <= 0 {
		return fmt.Errorf("pipeline.scoring_timeout must be positive; got %s", p.ScoringTimeout)
	}
	if p.TopKReport < 1 {
		return fmt.Errorf("pipeline.top_k_report must be >= 1; got %d", p.TopKReport)
	}
	if p.SimilarityWeight < 0 || p.ScreeningWeight < 0 {
		return fmt.Errorf("score weights must be non-negative; got similarity=%g screening=%g",
			p.SimilarityWeight, p.ScreeningWeight)
	}
	if math.Abs(p.SimilarityWeight+p.ScreeningWeight-1.0) > weightEpsilon {
		return fmt.Errorf("score weights must sum to 1.0; got similarity=%g screening=%g",
			p.SimilarityWeight, p.ScreeningWeight)
	}
	return nil
}
