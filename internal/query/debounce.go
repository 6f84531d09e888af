// Package query implements a reusable trailing-debounce controller that turns
// a rapidly-changing input into a throttled, cancelable downstream fetch with
// last-input-wins semantics.
package query

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultQuiet is the debounce window used when none is configured.
const DefaultQuiet = 300 * time.Millisecond

// Config parameterizes a Controller over its input and result types.
type Config[I, R any] struct {
	// Quiet is the debounce window; a fetch fires only after Quiet has
	// elapsed since the last Set call.
	Quiet time.Duration

	// Fetch performs the downstream request for an input.
	Fetch func(ctx context.Context, input I) (R, error)

	// OnResult receives a fetch result, only if no newer input superseded it.
	OnResult func(input I, result R)

	// OnError receives a fetch failure, only if no newer input superseded it.
	// Optional; failures are logged either way.
	OnError func(input I, err error)

	// OnClear is invoked synchronously when the input becomes zero.
	OnClear func()

	// IsZero reports whether an input means "no query". A zero input clears
	// immediately with no debounce.
	IsZero func(input I) bool

	Logger *slog.Logger
}

// Controller debounces Set calls into downstream fetches. Results are
// delivered through the configured callbacks; a result whose generation is
// stale by the time it arrives is discarded, never delivered. The underlying
// request is not aborted; cancellation here is stale-result suppression.
type Controller[I, R any] struct {
	cfg Config[I, R]
	ctx context.Context

	mu       sync.Mutex
	gen      uint64 // bumped on every Set/Clear; results carry the gen they were issued for
	timer    *time.Timer
	pending  I
	hasTimer bool
	inFlight int
}

// New creates a controller. The context bounds all fetches issued by it.
func New[I, R any](ctx context.Context, cfg Config[I, R]) *Controller[I, R] {
	if cfg.Quiet <= 0 {
		cfg.Quiet = DefaultQuiet
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Controller[I, R]{cfg: cfg, ctx: ctx}
}

// Set schedules a fetch for the input after the quiet window, canceling any
// previously pending timer (trailing debounce). A zero input clears
// synchronously instead.
func (c *Controller[I, R]) Set(input I) {
	c.mu.Lock()
	c.gen++
	c.stopTimerLocked()

	if c.cfg.IsZero != nil && c.cfg.IsZero(input) {
		c.mu.Unlock()
		if c.cfg.OnClear != nil {
			c.cfg.OnClear()
		}
		return
	}

	c.pending = input
	gen := c.gen
	c.timer = time.AfterFunc(c.cfg.Quiet, func() { c.fire(gen) })
	c.hasTimer = true
	c.mu.Unlock()
}

// Clear cancels any pending timer and marks in-flight fetches stale, then
// invokes OnClear.
func (c *Controller[I, R]) Clear() {
	c.mu.Lock()
	c.gen++
	c.stopTimerLocked()
	c.mu.Unlock()

	if c.cfg.OnClear != nil {
		c.cfg.OnClear()
	}
}

// Flush fires a pending fetch immediately instead of waiting out the quiet
// window, running it on the calling goroutine. It is a deterministic stand-in
// for the timer in tests; a no-op when nothing is pending.
func (c *Controller[I, R]) Flush() {
	c.mu.Lock()
	if !c.hasTimer {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	gen := c.gen
	c.mu.Unlock()

	c.fire(gen)
}

// InFlight reports whether any fetch has been issued and not yet resolved.
func (c *Controller[I, R]) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

// fire runs the fetch for the given generation and delivers the result if
// that generation is still current on arrival.
func (c *Controller[I, R]) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// Superseded between timer fire and dispatch.
		c.mu.Unlock()
		return
	}
	input := c.pending
	c.hasTimer = false
	c.inFlight++
	c.mu.Unlock()

	result, err := c.cfg.Fetch(c.ctx, input)

	c.mu.Lock()
	c.inFlight--
	stale := gen != c.gen
	c.mu.Unlock()

	if stale {
		c.cfg.Logger.Debug("discarding stale fetch result", "generation", gen)
		return
	}

	if err != nil {
		c.cfg.Logger.Warn("debounced fetch failed", "error", err)
		if c.cfg.OnError != nil {
			c.cfg.OnError(input, err)
		}
		return
	}
	if c.cfg.OnResult != nil {
		c.cfg.OnResult(input, result)
	}
}

func (c *Controller[I, R]) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.hasTimer = false
}
