// Package workers runs lookups concurrently and retries flaky opens.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Task is one unit of pool work
type Task func(ctx context.Context) error

// Result pairs a submitted task index with its outcome
type Result struct {
	Index int
	Error error
}

// Config sizes a Pool
type Config struct {
	Workers   int     // concurrent tasks, at least 1
	RateLimit float64 // task starts per second, 0 disables limiting
	BurstSize int     // limiter burst, defaults to Workers
}

// Pool runs tasks with bounded concurrency and an optional start rate.
// Submit blocks while every worker slot is busy.
type Pool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	group   errgroup.Group
	limiter *rate.Limiter

	mu      sync.Mutex
	results []Result
}

// NewPool creates a pool bound to ctx
func NewPool(ctx context.Context, cfg Config) *Pool {
	workers := max(cfg.Workers, 1)
	p := &Pool{}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.group.SetLimit(workers)
	if cfg.RateLimit > 0 {
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = workers
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return p
}

// Submit schedules task under index
func (p *Pool) Submit(index int, task Task) {
	p.group.Go(func() error {
		err := p.ctx.Err()
		if err == nil && p.limiter != nil {
			err = p.limiter.Wait(p.ctx)
		}
		if err == nil {
			err = task(p.ctx)
		}
		p.mu.Lock()
		p.results = append(p.results, Result{Index: index, Error: err})
		p.mu.Unlock()
		return nil
	})
}

// Wait blocks until every submitted task finished and returns their
// results in completion order
func (p *Pool) Wait() []Result {
	_ = p.group.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// Stop cancels tasks that have not started
func (p *Pool) Stop() {
	p.cancel()
}

// Map applies fn to every item on a pool and returns the outputs in
// input order. Items whose task failed keep the zero value; their
// errors are returned indexed like items.
func Map[T, R any](ctx context.Context, cfg Config, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, []error) {
	out := make([]R, len(items))
	errs := make([]error, len(items))

	pool := NewPool(ctx, cfg)
	defer pool.Stop()

	for i, item := range items {
		pool.Submit(i, func(ctx context.Context) error {
			r, err := fn(ctx, item)
			if err == nil {
				out[i] = r
			}
			return err
		})
	}
	for _, res := range pool.Wait() {
		errs[res.Index] = res.Error
	}
	return out, errs
}

// RetryConfig controls Retry
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// OnRetry is called after each failed attempt that will be retried
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is used when opening backend files
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// backoff returns the wait before the attempt following attempt n
func (c RetryConfig) backoff(n int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < n; i++ {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, attempts run out or ctx is done
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	cfg.Multiplier = max(cfg.Multiplier, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.backoff(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w (last error: %v)", ctx.Err(), err)
		}
	}

	if cfg.MaxAttempts == 1 {
		return err
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}
