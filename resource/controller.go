// Package resource bounds the shared resources of a DB: concurrent queries
// and persistence IO throughput.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxConcurrentQueries bounds in-flight recommendation queries.
	// If 0, queries are not limited.
	MaxConcurrentQueries int64

	// IOLimitBytesPerSec is the maximum persistence throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages the query and IO budgets. A nil Controller imposes no
// limits.
type Controller struct {
	cfg Config

	querySem *semaphore.Weighted // nil if unlimited
	inFlight atomic.Int64

	ioLimiter *rate.Limiter
	ioBytes   atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MaxConcurrentQueries > 0 {
		c.querySem = semaphore.NewWeighted(cfg.MaxConcurrentQueries)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the limits the controller was created with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireQuery reserves a query slot, blocking until one is free or ctx is
// canceled.
func (c *Controller) AcquireQuery(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.querySem != nil {
		if err := c.querySem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	c.inFlight.Add(1)
	return nil
}

// ReleaseQuery releases a slot obtained by AcquireQuery.
func (c *Controller) ReleaseQuery() {
	if c == nil {
		return
	}
	if c.querySem != nil {
		c.querySem.Release(1)
	}
	c.inFlight.Add(-1)
}

// QueriesInFlight returns the number of held query slots.
func (c *Controller) QueriesInFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than one second of budget are paced in burst-sized steps.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	c.ioBytes.Add(int64(bytes))
	if c.ioLimiter == nil {
		return nil
	}

	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// IOBytes returns the total number of bytes accounted through AcquireIO.
func (c *Controller) IOBytes() int64 {
	if c == nil {
		return 0
	}
	return c.ioBytes.Load()
}
