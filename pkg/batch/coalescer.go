package batch

import (
	"context"
	"sync"
	"time"
)

// Coalescer collapses high-frequency writes keyed by string down to one
// value per key per flush interval. Only the latest value for each key
// survives a flush, which makes it a natural fit for sampled mirrors of
// counters that change on every event.
type Coalescer struct {
	interval time.Duration
	flushFn  func(ctx context.Context, pending map[string]int)

	mu      sync.Mutex
	pending map[string]int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCoalescer starts the background flush loop immediately.
func NewCoalescer(interval time.Duration, flushFn func(ctx context.Context, pending map[string]int)) *Coalescer {
	c := &Coalescer{
		interval: interval,
		flushFn:  flushFn,
		pending:  make(map[string]int),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Put records the latest value for key; it overwrites any pending value.
func (c *Coalescer) Put(key string, value int) {
	c.mu.Lock()
	c.pending[key] = value
	c.mu.Unlock()
}

// Flush synchronously delivers everything pending.
func (c *Coalescer) Flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	out := c.pending
	c.pending = make(map[string]int)
	c.mu.Unlock()

	c.flushFn(ctx, out)
}

// Drop discards any pending value for key; used when the key's owner is
// gone and a late mirror write would resurrect it.
func (c *Coalescer) Drop(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

// Stop flushes once and terminates the loop. Safe to call twice.
func (c *Coalescer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
	})
}

func (c *Coalescer) run() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush(context.Background())
		case <-c.stopCh:
			c.Flush(context.Background())
			return
		}
	}
}
