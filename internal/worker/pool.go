// Package worker provides the generic bounded worker pool shared by the
// modeling and screening stages.  Each unit of work runs under its own
// timeout context; outcomes are classified so callers can map them onto the
// closed failure-reason vocabularies without inspecting raw errors.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Item status
// ─────────────────────────────────────────────────────────────────────────────

// ItemStatus represents the outcome of a single work item.
type ItemStatus int

const (
	ItemStatusSuccess   ItemStatus = iota // processing completed successfully
	ItemStatusFailed                      // processing failed with an error
	ItemStatusTimeout                     // processing exceeded its timeout
	ItemStatusCancelled                   // processing was cancelled
)

// String returns the human-readable representation of an ItemStatus.
func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Generic types
// ─────────────────────────────────────────────────────────────────────────────

// ProcessFunc is the signature for a function that processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult holds the outcome of processing a single item.
type ItemResult[R any] struct {
	Index    int
	Result   R
	Error    error
	Status   ItemStatus
	Duration time.Duration
}

// RunResult aggregates the outcomes of a full pool run.  Results are ordered
// by original item index regardless of completion order, so downstream
// persistence is deterministic.
type RunResult[R any] struct {
	Results      []*ItemResult[R]
	TotalCount   int
	SuccessCount int
	FailureCount int
	Duration     time.Duration
}

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// RetryPolicy governs how failed items are retried.  Backoff is exponential
// with ±25 % jitter, capped at MaxBackoff.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// backoffFor returns the delay before the attempt-th retry.
func (p *RetryPolicy) backoffFor(attempt int) time.Duration {
	if p == nil || p.InitialBackoff <= 0 {
		return 0
	}
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if p.MaxBackoff > 0 && base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	// jitter: ±25 %
	d := time.Duration(base + base*0.25*(rand.Float64()*2-1))
	if d < 0 {
		d = 0
	}
	return d
}

type poolConfig struct {
	maxConcurrency int
	itemTimeout    time.Duration
	retryPolicy    *RetryPolicy
}

// Option configures a Pool.
type Option func(*poolConfig)

// WithMaxConcurrency bounds the number of items processed concurrently.
func WithMaxConcurrency(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout sets the per-item processing timeout.  Zero disables the
// per-item deadline; the parent context still governs cancellation.
func WithItemTimeout(d time.Duration) Option {
	return func(c *poolConfig) {
		c.itemTimeout = d
	}
}

// WithRetryPolicy configures retry behaviour for failed items.  Timeouts and
// cancellations are never retried; the per-item budget is already spent.
func WithRetryPolicy(maxRetries int, backoff time.Duration) Option {
	return func(c *poolConfig) {
		if maxRetries > 0 {
			c.retryPolicy = &RetryPolicy{
				MaxRetries:        maxRetries,
				InitialBackoff:    backoff,
				MaxBackoff:        backoff * 16,
				BackoffMultiplier: 2.0,
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Pool
// ─────────────────────────────────────────────────────────────────────────────

// Pool is a bounded concurrent executor over a fixed item slice.  A Pool is
// stateless between runs and safe for reuse.
type Pool[T, R any] struct {
	cfg poolConfig
}

// NewPool creates a Pool with the supplied options.  The default concurrency
// is 1, which degrades to strictly sequential processing.
func NewPool[T, R any](opts ...Option) *Pool[T, R] {
	cfg := poolConfig{maxConcurrency: 1}
	for _, o := range opts {
		o(&cfg)
	}
	return &Pool[T, R]{cfg: cfg}
}

// Run executes fn for every item, respecting the concurrency limit and
// per-item timeout.  A failing item never affects its siblings; the returned
// RunResult carries one classified entry per input item, in input order.
// Run itself only errors on a nil fn.
func (p *Pool[T, R]) Run(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*RunResult[R], error) {
	if fn == nil {
		return nil, errors.New("worker: process function must not be nil")
	}
	n := len(items)
	if n == 0 {
		return &RunResult[R]{Results: []*ItemResult[R]{}}, nil
	}

	start := time.Now()
	resultCh := make(chan *ItemResult[R], n)
	sem := make(chan struct{}, p.cfg.maxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()

			// Acquire semaphore (or bail on context).
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultCh <- &ItemResult[R]{
					Index:  idx,
					Error:  ctx.Err(),
					Status: classifyCtxError(ctx.Err()),
				}
				return
			}

			resultCh <- p.processOne(ctx, idx, item, fn)
		}(i, items[i])
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]*ItemResult[R], 0, n)
	for ir := range resultCh {
		results = append(results, ir)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})

	rr := &RunResult[R]{
		Results:    results,
		TotalCount: len(results),
		Duration:   time.Since(start),
	}
	for _, r := range results {
		if r.Status == ItemStatusSuccess {
			rr.SuccessCount++
		} else {
			rr.FailureCount++
		}
	}
	return rr, nil
}

// processOne runs a single item with per-item timeout and optional retries.
func (p *Pool[T, R]) processOne(parent context.Context, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	itemStart := time.Now()

	maxAttempts := 1
	if p.cfg.retryPolicy != nil && p.cfg.retryPolicy.MaxRetries > 0 {
		maxAttempts = 1 + p.cfg.retryPolicy.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.cfg.retryPolicy.backoffFor(attempt - 1)
			if delay > 0 {
				select {
				case <-parent.Done():
					return &ItemResult[R]{
						Index:    idx,
						Error:    parent.Err(),
						Status:   classifyCtxError(parent.Err()),
						Duration: time.Since(itemStart),
					}
				case <-time.After(delay):
				}
			}
		}

		itemCtx := parent
		cancel := context.CancelFunc(func() {})
		if p.cfg.itemTimeout > 0 {
			itemCtx, cancel = context.WithTimeout(parent, p.cfg.itemTimeout)
		}
		result, err := fn(itemCtx, item)
		cancel()

		if err == nil {
			return &ItemResult[R]{
				Index:    idx,
				Result:   result,
				Status:   ItemStatusSuccess,
				Duration: time.Since(itemStart),
			}
		}
		lastErr = err

		// Timeouts and parent cancellation are final.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			break
		}
		if attempt < maxAttempts-1 {
			continue
		}
	}

	return &ItemResult[R]{
		Index:    idx,
		Error:    lastErr,
		Status:   classifyError(parent, lastErr),
		Duration: time.Since(itemStart),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Status classification
// ─────────────────────────────────────────────────────────────────────────────

func classifyCtxError(err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	return ItemStatusCancelled
}

func classifyError(parent context.Context, err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ItemStatusCancelled
	}
	// The parent context expiring mid-run colours unclassified errors.
	if parent.Err() == context.DeadlineExceeded {
		return ItemStatusTimeout
	}
	if parent.Err() == context.Canceled {
		return ItemStatusCancelled
	}
	return ItemStatusFailed
}
