// Package ops tracks in-flight asynchronous backend operations per entity id.
// The tracker owns the records exclusively; consumers only ever read a
// snapshot. Every mutation installs a fresh map, so a snapshot taken
// mid-render stays consistent.
package ops

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind discriminates operation types. Operations of different kinds on the
// same entity never collide because the tracking key includes the kind.
type Kind string

const (
	KindSync     Kind = "sync"
	KindDownload Kind = "download"
	KindMetadata Kind = "metadata_fetch"
)

// Phase is the non-terminal progress phase of an operation. Terminal states
// remove the record instead of being stored.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseInProgress
)

// Operation is a client-local record of one in-flight backend operation.
type Operation struct {
	EntityID  string
	Kind      Kind
	Phase     Phase
	Percent   float64
	Speed     string
	StartedAt time.Time
	UpdatedAt time.Time
}

// Key identifies an operation record.
type Key struct {
	EntityID string
	Kind     Kind
}

// Terminal describes how an operation ended. Err is empty on completion.
// Synthesized is true when the watchdog gave up on a stuck operation rather
// than the backend reporting a terminal event.
type Terminal struct {
	Op          Operation
	Err         string
	Message     string
	Synthesized bool
}

// TerminalFunc observes operation terminations, including ones with no
// matching start record.
type TerminalFunc func(Terminal)

// Tracker maps (entity id, kind) to its in-flight operation record.
type Tracker struct {
	logger     *slog.Logger
	onTerminal TerminalFunc

	mu  sync.Mutex
	ops map[Key]Operation

	now func() time.Time
}

// NewTracker creates a tracker. onTerminal may be nil.
func NewTracker(logger *slog.Logger, onTerminal TerminalFunc) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:     logger,
		onTerminal: onTerminal,
		ops:        make(map[Key]Operation),
		now:        time.Now,
	}
}

// Start records the beginning of an operation. A duplicate start refreshes
// the existing record's timestamp.
func (t *Tracker) Start(id string, kind Kind) {
	now := t.now()
	t.mutate(func(ops map[Key]Operation) {
		k := Key{EntityID: id, Kind: kind}
		op, ok := ops[k]
		if !ok {
			op = Operation{EntityID: id, Kind: kind, Phase: PhaseStarted, StartedAt: now}
		}
		op.UpdatedAt = now
		ops[k] = op
	})
}

// Progress updates an operation's progress. A progress event with no prior
// start implies the start was missed and creates the record.
func (t *Tracker) Progress(id string, kind Kind, percent float64, speed string) {
	now := t.now()
	t.mutate(func(ops map[Key]Operation) {
		k := Key{EntityID: id, Kind: kind}
		op, ok := ops[k]
		if !ok {
			op = Operation{EntityID: id, Kind: kind, StartedAt: now}
		}
		op.Phase = PhaseInProgress
		op.Percent = percent
		op.Speed = speed
		op.UpdatedAt = now
		ops[k] = op
	})
}

// Complete removes the record and reports a successful terminal. Completion
// with no matching record is tolerated (fast operations may skip phases) and
// reported the same way.
func (t *Tracker) Complete(id string, kind Kind, message string) {
	t.finish(id, kind, "", message, false)
}

// Fail removes the record and reports a failed terminal with the backend's
// message.
func (t *Tracker) Fail(id string, kind Kind, errMsg string) {
	t.finish(id, kind, errMsg, "", false)
}

func (t *Tracker) finish(id string, kind Kind, errMsg, message string, synthesized bool) {
	k := Key{EntityID: id, Kind: kind}

	t.mu.Lock()
	op, existed := t.ops[k]
	if existed {
		next := make(map[Key]Operation, len(t.ops))
		for key, v := range t.ops {
			if key != k {
				next[key] = v
			}
		}
		t.ops = next
	}
	cb := t.onTerminal
	t.mu.Unlock()

	if !existed {
		// Idle -> terminal: same end state as started -> terminal.
		op = Operation{EntityID: id, Kind: kind, StartedAt: t.now(), UpdatedAt: t.now()}
	}
	if cb != nil {
		cb(Terminal{Op: op, Err: errMsg, Message: message, Synthesized: synthesized})
	}
}

// Get returns the record for an entity/kind pair.
func (t *Tracker) Get(id string, kind Kind) (Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[Key{EntityID: id, Kind: kind}]
	return op, ok
}

// Snapshot returns the current record map. Callers must not modify it.
func (t *Tracker) Snapshot() map[Key]Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ops
}

// InFlight reports whether any operation of the given kind is running for
// the entity.
func (t *Tracker) InFlight(id string, kind Kind) bool {
	_, ok := t.Get(id, kind)
	return ok
}

// ExpireStale converts records with no event activity for longer than maxIdle
// into synthesized error terminals and returns them. The backend did not
// define recovery for dropped terminal events; treating silence as failure
// lets the session refetch instead of waiting forever.
func (t *Tracker) ExpireStale(maxIdle time.Duration) []Operation {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := t.now().Add(-maxIdle)

	t.mu.Lock()
	var stale []Operation
	for _, op := range t.ops {
		if op.UpdatedAt.Before(cutoff) {
			stale = append(stale, op)
		}
	}
	t.mu.Unlock()

	for _, op := range stale {
		t.logger.Warn("operation watchdog expired stuck operation",
			"entity_id", op.EntityID, "kind", op.Kind)
		t.finish(op.EntityID, op.Kind, "operation timed out waiting for backend events", "", true)
	}
	return stale
}

// RunWatchdog periodically expires stale records until ctx is done. A
// non-positive maxIdle disables the watchdog.
func (t *Tracker) RunWatchdog(ctx context.Context, interval, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.ExpireStale(maxIdle)
		}
	}
}

// mutate runs fn against a copy of the record map and installs the copy.
func (t *Tracker) mutate(fn func(map[Key]Operation)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[Key]Operation, len(t.ops)+1)
	for k, v := range t.ops {
		next[k] = v
	}
	fn(next)
	t.ops = next
}
