// Package backfill schedules metadata hydration for stub entities that are
// actually on screen. The virtualization layer feeds it visible row ids; it
// coalesces scroll churn behind a quiet window and dispatches one batched
// request per firing, never including an id already in flight.
package backfill

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultQuiet coalesces rapid scroll-driven visibility churn.
const DefaultQuiet = 500 * time.Millisecond

// DispatchFunc issues one batched metadata request. The scheduler clears the
// batch's loading marks when the call returns, success or error.
type DispatchFunc func(ctx context.Context, ids []string) error

// Scheduler computes visible ∧ incomplete ∧ not-loading candidate sets and
// requests backfill for exactly that subset.
type Scheduler struct {
	quiet      time.Duration
	batchLimit int
	dispatch   DispatchFunc
	logger     *slog.Logger
	ctx        context.Context

	mu         sync.Mutex
	visible    map[string]struct{}
	incomplete map[string]struct{}
	loading    map[string]struct{}
	timer      *time.Timer
	hasTimer   bool
}

// Options tune the scheduler; zero values take defaults.
type Options struct {
	Quiet      time.Duration
	BatchLimit int
	Logger     *slog.Logger
}

// NewScheduler creates a scheduler dispatching through fn.
func NewScheduler(ctx context.Context, fn DispatchFunc, opts Options) *Scheduler {
	if opts.Quiet <= 0 {
		opts.Quiet = DefaultQuiet
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 25
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scheduler{
		quiet:      opts.Quiet,
		batchLimit: opts.BatchLimit,
		dispatch:   fn,
		logger:     opts.Logger,
		ctx:        ctx,
		visible:    make(map[string]struct{}),
		incomplete: make(map[string]struct{}),
		loading:    make(map[string]struct{}),
	}
}

// SetVisible replaces the currently-rendered id set.
func (s *Scheduler) SetVisible(ids []string) {
	s.mu.Lock()
	s.visible = toSet(ids)
	s.recomputeLocked()
	s.mu.Unlock()
}

// SetIncomplete replaces the set of ids whose metadata is not yet hydrated,
// recomputed by the owner whenever its collection changes.
func (s *Scheduler) SetIncomplete(ids []string) {
	s.mu.Lock()
	s.incomplete = toSet(ids)
	s.recomputeLocked()
	s.mu.Unlock()
}

// Loading reports whether the id is part of an in-flight batch.
func (s *Scheduler) Loading(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loading[id]
	return ok
}

// Flush fires a pending batch immediately on the calling goroutine. Test
// hook standing in for the quiet-window timer.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if !s.hasTimer {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	s.mu.Unlock()

	s.fire()
}

// Stop cancels any pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
}

// recomputeLocked resets the quiet-window timer whenever candidates exist.
func (s *Scheduler) recomputeLocked() {
	if len(s.candidatesLocked()) == 0 {
		s.stopTimerLocked()
		return
	}
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.quiet, s.fire)
	s.hasTimer = true
}

// candidatesLocked returns visible ∧ incomplete − loading, sorted for
// deterministic batches.
func (s *Scheduler) candidatesLocked() []string {
	var out []string
	for id := range s.visible {
		if _, ok := s.incomplete[id]; !ok {
			continue
		}
		if _, ok := s.loading[id]; ok {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// fire snapshots the candidate set, marks it loading before the request is
// issued, and clears exactly those marks when the batch resolves. Marking
// after dispatch would let a visibility change during the request's flight
// re-request the same ids.
func (s *Scheduler) fire() {
	s.mu.Lock()
	s.hasTimer = false
	batch := s.candidatesLocked()
	if len(batch) > s.batchLimit {
		batch = batch[:s.batchLimit]
	}
	for _, id := range batch {
		s.loading[id] = struct{}{}
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	err := s.dispatch(s.ctx, batch)
	if err != nil {
		// Degrade gracefully: the items stay pending and become candidates
		// again on the next visibility change.
		s.logger.Warn("backfill batch failed", "count", len(batch), "error", err)
	}

	s.mu.Lock()
	for _, id := range batch {
		delete(s.loading, id)
	}
	// Ids that went visible or were cut by the batch limit while this batch
	// was in flight get their own timer now.
	s.recomputeLocked()
	s.mu.Unlock()
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.hasTimer = false
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
