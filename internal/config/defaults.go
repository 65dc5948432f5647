package config

import (
	"runtime"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultTopNPerChemical = 10
	DefaultBatchCount      = 4
	DefaultBuildTimeout    = 10 * time.Minute
	DefaultScoringTimeout  = 2 * time.Minute
	DefaultTopKReport      = 50
	DefaultWeight          = 0.5

	DefaultStorageRoot = "screening_workspace"

	DefaultPostgresHost     = "localhost"
	DefaultPostgresPort     = 5432
	DefaultPostgresDBName   = "pharmscreen"
	DefaultPostgresMaxConns = 10

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisTTL       = 7 * 24 * time.Hour
	DefaultRedisKeyPrefix = "pharmscreen"

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaTopicPrefix = "screening"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "pharmscreen-artifacts"
	DefaultPresignExpiry = 24 * time.Hour

	DefaultMilvusAddr        = "localhost:19530"
	DefaultMilvusVectorField = "fingerprint"
	DefaultMilvusMetricType  = "JACCARD"
	DefaultMilvusSearchEf    = 64

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsListen = ":9108"
	DefaultMetricsPath   = "/metrics"
)

// ApplyDefaults fills every zero-value field in cfg with the pipeline default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.  It must be called
// after unmarshalling raw config data and before Validate() so that
// optional-but-defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	if cfg.Pipeline.TopNPerChemical == 0 {
		cfg.Pipeline.TopNPerChemical = DefaultTopNPerChemical
	}
	if cfg.Pipeline.BatchCount == 0 {
		cfg.Pipeline.BatchCount = DefaultBatchCount
	}
	if cfg.Pipeline.CPUWorkers == 0 {
		cfg.Pipeline.CPUWorkers = runtime.NumCPU()
	}
	if cfg.Pipeline.BuildTimeout == 0 {
		cfg.Pipeline.BuildTimeout = DefaultBuildTimeout
	}
	if cfg.Pipeline.ScoringTimeout == 0 {
		cfg.Pipeline.ScoringTimeout = DefaultScoringTimeout
	}
	if cfg.Pipeline.TopKReport == 0 {
		cfg.Pipeline.TopKReport = DefaultTopKReport
	}
	if cfg.Pipeline.SimilarityWeight == 0 && cfg.Pipeline.ScreeningWeight == 0 {
		cfg.Pipeline.SimilarityWeight = DefaultWeight
		cfg.Pipeline.ScreeningWeight = DefaultWeight
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.RootDir == "" {
		cfg.Storage.RootDir = DefaultStorageRoot
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPostgresHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.DBName == "" {
		cfg.Postgres.DBName = DefaultPostgresDBName
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = DefaultPostgresMaxConns
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultKafkaTopicPrefix
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = 100
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = DefaultPresignExpiry
	}

	// ── Milvus ────────────────────────────────────────────────────────────────
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.VectorField == "" {
		cfg.Milvus.VectorField = DefaultMilvusVectorField
	}
	if cfg.Milvus.MetricType == "" {
		cfg.Milvus.MetricType = DefaultMilvusMetricType
	}
	if cfg.Milvus.SearchEf == 0 {
		cfg.Milvus.SearchEf = DefaultMilvusSearchEf
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}
