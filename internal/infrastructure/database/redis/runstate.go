// Package redis provides the optional shared run-state cache.  When several
// job slots process batches of the same run, the cache answers "is this unit
// already done" without touching the filesystem store of another slot, and a
// SetNX lock keeps two slots off the same batch.
//
// The cache is an accelerator, not a source of truth: the pipeline falls back
// to the persistent store whenever the cache is unavailable or silent.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/standardseed/pharmscreen/internal/config"
	"github.com/standardseed/pharmscreen/internal/infrastructure/monitoring/logging"
	"github.com/standardseed/pharmscreen/pkg/errors"
)

// ErrLockHeld is returned by AcquireBatchLock when another slot owns the batch.
var ErrLockHeld = errors.New(errors.ErrCodeCacheError, "batch lock held by another slot")

// RunState is the shared completion cache for one pipeline deployment.
type RunState struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logging.Logger
}

// NewRunState dials Redis and verifies the connection.
func NewRunState(ctx context.Context, cfg config.RedisConfig, logger logging.Logger) (*RunState, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to connect to redis").
			WithDetail("addr=" + cfg.Addr)
	}
	return &RunState{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.DefaultTTL,
		logger: logger.Named("redis"),
	}, nil
}

// Close releases the connection pool.
func (r *RunState) Close() error {
	return r.client.Close()
}

func (r *RunState) modelKey(runID, targetID string) string {
	return fmt.Sprintf("%s:%s:model:%s", r.prefix, runID, targetID)
}

func (r *RunState) pairKey(runID, chemicalID, targetID string) string {
	return fmt.Sprintf("%s:%s:pair:%s:%s", r.prefix, runID, chemicalID, targetID)
}

func (r *RunState) lockKey(runID string, batchIndex int) string {
	return fmt.Sprintf("%s:%s:batchlock:%d", r.prefix, runID, batchIndex)
}

// ─────────────────────────────────────────────────────────────────────────────
// Completion markers
// ─────────────────────────────────────────────────────────────────────────────

// MarkModelDone records a successful model build for fast idempotence checks.
func (r *RunState) MarkModelDone(ctx context.Context, runID, targetID string) error {
	err := r.client.Set(ctx, r.modelKey(runID, targetID), "1", r.ttl).Err()
	return errors.Wrap(err, errors.ErrCodeCacheError, "failed to mark model done")
}

// IsModelDone reports whether a successful build is cached for the target.
// A cache error degrades to false so the caller re-checks the store.
func (r *RunState) IsModelDone(ctx context.Context, runID, targetID string) bool {
	n, err := r.client.Exists(ctx, r.modelKey(runID, targetID)).Result()
	if err != nil {
		r.logger.Warn("model-done lookup failed, falling back to store",
			logging.String("target_id", targetID), logging.Err(err))
		return false
	}
	return n > 0
}

// MarkPairDone records a completed scoring attempt for fast idempotence checks.
func (r *RunState) MarkPairDone(ctx context.Context, runID, chemicalID, targetID string) error {
	err := r.client.Set(ctx, r.pairKey(runID, chemicalID, targetID), "1", r.ttl).Err()
	return errors.Wrap(err, errors.ErrCodeCacheError, "failed to mark pair done")
}

// IsPairDone reports whether a completed scoring attempt is cached for the
// pair.  A cache error degrades to false so the caller re-checks the store.
func (r *RunState) IsPairDone(ctx context.Context, runID, chemicalID, targetID string) bool {
	n, err := r.client.Exists(ctx, r.pairKey(runID, chemicalID, targetID)).Result()
	if err != nil {
		r.logger.Warn("pair-done lookup failed, falling back to store",
			logging.String("chemical_id", chemicalID),
			logging.String("target_id", targetID), logging.Err(err))
		return false
	}
	return n > 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch-slot lock
// ─────────────────────────────────────────────────────────────────────────────

// AcquireBatchLock claims a modeling batch for this slot.  slotID must be
// unique per process; it is stored as the lock value so only the owner can
// release.  Returns ErrLockHeld when another slot already owns the batch.
func (r *RunState) AcquireBatchLock(ctx context.Context, runID string, batchIndex int, slotID string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, r.lockKey(runID, batchIndex), slotID, ttl).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to acquire batch lock")
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// releaseScript deletes the lock only when the caller still owns it, so an
// expired-and-reacquired lock is never released by the previous owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ReleaseBatchLock releases a batch lock owned by slotID.  Releasing a lock
// that expired or changed owner is a no-op.
func (r *RunState) ReleaseBatchLock(ctx context.Context, runID string, batchIndex int, slotID string) error {
	err := releaseScript.Run(ctx, r.client, []string{r.lockKey(runID, batchIndex)}, slotID).Err()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release batch lock")
	}
	return nil
}
