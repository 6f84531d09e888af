// Package search runs the debounced search sessions behind the UI's search
// inputs. A session turns keystrokes into at most one backend query per
// quiet window and exposes the outcome as an id-set filter; when the backend
// query fails the session degrades to local substring filtering rather than
// showing stale hits.
package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
	"github.com/mmcdole/stash/internal/query"
	"github.com/mmcdole/stash/internal/state"
)

// Options tunes a session.
type Options struct {
	// Quiet is the debounce window (default query.DefaultQuiet).
	Quiet time.Duration
	// Limit caps backend hits per collection (0 uses the backend default).
	Limit  int
	Logger *slog.Logger
	// OnUpdate fires after every snapshot change, on the goroutine that
	// caused it. The UI uses it to repaint.
	OnUpdate func()
}

// Snapshot is the externally visible search state.
type Snapshot struct {
	// Query is the text currently applied to the views, which may be ahead
	// of the last resolved backend search.
	Query    string
	InFlight bool
	// HasIDSet is true when FeedIDs/WarehouseIDs came from a resolved
	// backend search for Query. False with a non-empty Query means degraded
	// substring filtering.
	HasIDSet     bool
	FeedIDs      map[string]struct{}
	WarehouseIDs map[string]struct{}
}

type resolved struct {
	feedIDs      map[string]struct{}
	warehouseIDs map[string]struct{}
}

// Session is a creator-scoped search over feed and warehouse items.
type Session struct {
	ctrl     *query.Controller[string, resolved]
	onUpdate func()

	mu   sync.Mutex
	snap Snapshot
}

// NewSession creates a session scoped to one creator's library.
func NewSession(ctx context.Context, client *gateway.Client, creatorID string, opts Options) *Session {
	s := &Session{onUpdate: opts.OnUpdate}

	s.ctrl = query.New(ctx, query.Config[string, resolved]{
		Quiet:  opts.Quiet,
		Logger: opts.Logger,
		IsZero: func(q string) bool { return q == "" },
		Fetch: func(ctx context.Context, q string) (resolved, error) {
			req := gateway.SearchRequest{Query: q, CreatorID: creatorID, Limit: opts.Limit}
			feedHits, err := client.SearchFeedItems(ctx, req)
			if err != nil {
				return resolved{}, err
			}
			warehouseHits, err := client.SearchWarehouseItems(ctx, req)
			if err != nil {
				return resolved{}, err
			}
			r := resolved{
				feedIDs:      make(map[string]struct{}, len(feedHits)),
				warehouseIDs: make(map[string]struct{}, len(warehouseHits)),
			}
			for _, hit := range feedHits {
				r.feedIDs[hit.ID] = struct{}{}
			}
			for _, hit := range warehouseHits {
				r.warehouseIDs[hit.ID] = struct{}{}
			}
			return r, nil
		},
		OnResult: func(q string, r resolved) {
			s.apply(func(snap *Snapshot) {
				snap.InFlight = false
				snap.HasIDSet = true
				snap.FeedIDs = r.feedIDs
				snap.WarehouseIDs = r.warehouseIDs
			})
		},
		OnError: func(q string, err error) {
			// Degrade to substring filtering; never present hits from an
			// older query as if they answered this one.
			s.apply(func(snap *Snapshot) {
				snap.InFlight = false
				snap.HasIDSet = false
				snap.FeedIDs = nil
				snap.WarehouseIDs = nil
			})
		},
		OnClear: func() {
			s.apply(func(snap *Snapshot) {
				*snap = Snapshot{}
			})
		},
	})
	return s
}

// SetQuery feeds the next keystroke state into the session. The query takes
// effect on the views immediately (substring filtering) while the backend
// search is pending.
func (s *Session) SetQuery(q string) {
	if q != "" {
		s.apply(func(snap *Snapshot) {
			snap.Query = q
			snap.InFlight = true
			snap.HasIDSet = false
			snap.FeedIDs = nil
			snap.WarehouseIDs = nil
		})
	}
	s.ctrl.Set(q)
}

// Clear resets the session and suppresses any in-flight result.
func (s *Session) Clear() {
	s.ctrl.Clear()
}

// Flush fires a pending debounced search immediately. Test hook.
func (s *Session) Flush() {
	s.ctrl.Flush()
}

// Snapshot returns the current search state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// FeedFilter expresses the snapshot as a feed view filter.
func (s *Session) FeedFilter() state.FeedFilter {
	snap := s.Snapshot()
	return state.FeedFilter{
		Query:     snap.Query,
		ResultIDs: snap.FeedIDs,
		HasIDSet:  snap.HasIDSet,
	}
}

// WarehouseFilter expresses the snapshot as a warehouse view filter.
func (s *Session) WarehouseFilter() state.WarehouseFilter {
	snap := s.Snapshot()
	return state.WarehouseFilter{
		Query:     snap.Query,
		ResultIDs: snap.WarehouseIDs,
		HasIDSet:  snap.HasIDSet,
	}
}

func (s *Session) apply(mutate func(*Snapshot)) {
	s.mu.Lock()
	mutate(&s.snap)
	s.mu.Unlock()
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// GlobalSnapshot is the cross-library search state backing the search
// overlay.
type GlobalSnapshot struct {
	Query    string
	InFlight bool
	Results  domain.GlobalSearchResults
	Failed   bool
}

// GlobalSession is the debounced cross-library search.
type GlobalSession struct {
	ctrl     *query.Controller[string, domain.GlobalSearchResults]
	onUpdate func()

	mu   sync.Mutex
	snap GlobalSnapshot
}

// NewGlobalSession creates the app-wide search session.
func NewGlobalSession(ctx context.Context, client *gateway.Client, opts Options) *GlobalSession {
	s := &GlobalSession{onUpdate: opts.OnUpdate}

	s.ctrl = query.New(ctx, query.Config[string, domain.GlobalSearchResults]{
		Quiet:  opts.Quiet,
		Logger: opts.Logger,
		IsZero: func(q string) bool { return q == "" },
		Fetch: func(ctx context.Context, q string) (domain.GlobalSearchResults, error) {
			return client.SearchGlobal(ctx, gateway.SearchRequest{Query: q, Limit: opts.Limit})
		},
		OnResult: func(q string, r domain.GlobalSearchResults) {
			s.apply(func(snap *GlobalSnapshot) {
				snap.InFlight = false
				snap.Failed = false
				snap.Results = r
			})
		},
		OnError: func(q string, err error) {
			s.apply(func(snap *GlobalSnapshot) {
				snap.InFlight = false
				snap.Failed = true
				snap.Results = domain.GlobalSearchResults{}
			})
		},
		OnClear: func() {
			s.apply(func(snap *GlobalSnapshot) {
				*snap = GlobalSnapshot{}
			})
		},
	})
	return s
}

func (s *GlobalSession) SetQuery(q string) {
	if q != "" {
		s.apply(func(snap *GlobalSnapshot) {
			snap.Query = q
			snap.InFlight = true
		})
	}
	s.ctrl.Set(q)
}

func (s *GlobalSession) Clear() { s.ctrl.Clear() }

// Flush fires a pending debounced search immediately. Test hook.
func (s *GlobalSession) Flush() { s.ctrl.Flush() }

func (s *GlobalSession) Snapshot() GlobalSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *GlobalSession) apply(mutate func(*GlobalSnapshot)) {
	s.mu.Lock()
	mutate(&s.snap)
	s.mu.Unlock()
	if s.onUpdate != nil {
		s.onUpdate()
	}
}
