package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
	"github.com/mmcdole/stash/internal/log"
	"github.com/mmcdole/stash/internal/state"
)

// fakeSearchInvoker serves canned search hits and records queries.
type fakeSearchInvoker struct {
	mu            sync.Mutex
	queries       []string // one entry per search_feed_items call
	feedHits      []domain.RankedFeedItem
	warehouseHits []domain.RankedWarehouseItem
	globalHits    domain.GlobalSearchResults
	err           error
	block         chan struct{} // non-nil: searches block until closed
}

func (f *fakeSearchInvoker) Invoke(_ context.Context, command string, params any, result any) error {
	var req gateway.SearchRequest
	if data, err := json.Marshal(params); err == nil {
		json.Unmarshal(data, &req)
	}

	f.mu.Lock()
	if command == gateway.CmdSearchFeedItems || command == gateway.CmdSearchGlobal {
		f.queries = append(f.queries, req.Query)
	}
	block := f.block
	err := f.err
	var reply any
	switch command {
	case gateway.CmdSearchFeedItems:
		reply = f.feedHits
	case gateway.CmdSearchWarehouseItems:
		reply = f.warehouseHits
	case gateway.CmdSearchGlobal:
		reply = f.globalHits
	}
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}
	data, merr := json.Marshal(reply)
	if merr != nil {
		return merr
	}
	return json.Unmarshal(data, result)
}

func (f *fakeSearchInvoker) gotQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func newTestSession(fake *fakeSearchInvoker) *Session {
	return NewSession(context.Background(), gateway.NewClient(fake), "creator-1", Options{
		Quiet:  20 * time.Millisecond,
		Logger: log.Null(),
	})
}

func TestTypingCoalescesIntoOneBackendQuery(t *testing.T) {
	fake := &fakeSearchInvoker{
		feedHits: []domain.RankedFeedItem{
			{FeedItem: domain.FeedItem{ID: "f1", Title: "foo tutorial"}, Rank: 0},
		},
	}
	s := newTestSession(fake)

	s.SetQuery("f")
	s.SetQuery("fo")
	s.SetQuery("foo")
	s.Flush()

	require.Equal(t, []string{"foo"}, fake.gotQueries(), "only the settled input reaches the backend")

	snap := s.Snapshot()
	assert.Equal(t, "foo", snap.Query)
	assert.True(t, snap.HasIDSet)
	assert.False(t, snap.InFlight)
	assert.Contains(t, snap.FeedIDs, "f1")
}

func TestQueryFiltersViewsBeforeBackendResolves(t *testing.T) {
	fake := &fakeSearchInvoker{}
	s := newTestSession(fake)

	// No Flush: the backend search is still pending.
	s.SetQuery("alpha")

	snap := s.Snapshot()
	assert.True(t, snap.InFlight)
	assert.False(t, snap.HasIDSet)

	items := []domain.FeedItem{
		{ID: "a", Title: "Alpha Release"},
		{ID: "b", Title: "Beta Release"},
	}
	filtered := state.FilterFeedItems(items, s.FeedFilter())
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].ID)
}

func TestSearchFailureDegradesToSubstring(t *testing.T) {
	fake := &fakeSearchInvoker{err: errors.New("backend down")}
	s := newTestSession(fake)

	s.SetQuery("alpha")
	s.Flush()

	snap := s.Snapshot()
	assert.Equal(t, "alpha", snap.Query)
	assert.False(t, snap.InFlight)
	assert.False(t, snap.HasIDSet)
	assert.Nil(t, snap.FeedIDs)

	items := []domain.FeedItem{
		{ID: "a", Title: "ALPHA one"},
		{ID: "b", Title: "beta"},
	}
	filtered := state.FilterFeedItems(items, s.FeedFilter())
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].ID)
}

func TestResolvedIDSetOverridesSubstring(t *testing.T) {
	fake := &fakeSearchInvoker{
		feedHits: []domain.RankedFeedItem{
			{FeedItem: domain.FeedItem{ID: "b", Title: "beta"}, Rank: 0},
		},
	}
	s := newTestSession(fake)

	s.SetQuery("beta")
	s.Flush()

	// The id-set decides membership even where the substring test would
	// disagree.
	items := []domain.FeedItem{
		{ID: "a", Title: "beta impostor"},
		{ID: "b", Title: "renamed since indexing"},
	}
	filtered := state.FilterFeedItems(items, s.FeedFilter())
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].ID)
}

func TestEmptyQueryClearsSynchronously(t *testing.T) {
	fake := &fakeSearchInvoker{
		feedHits: []domain.RankedFeedItem{
			{FeedItem: domain.FeedItem{ID: "f1", Title: "foo"}, Rank: 0},
		},
	}
	s := newTestSession(fake)

	s.SetQuery("foo")
	s.Flush()
	require.True(t, s.Snapshot().HasIDSet)

	s.SetQuery("")
	snap := s.Snapshot()
	assert.Equal(t, Snapshot{}, snap)
	assert.Equal(t, []string{"foo"}, fake.gotQueries(), "clearing issues no backend call")
}

func TestInFlightTracksFetchLifetime(t *testing.T) {
	fake := &fakeSearchInvoker{block: make(chan struct{})}
	s := newTestSession(fake)

	s.SetQuery("foo")
	assert.True(t, s.Snapshot().InFlight)

	done := make(chan struct{})
	go func() {
		s.Flush()
		close(done)
	}()

	close(fake.block)
	<-done
	assert.False(t, s.Snapshot().InFlight)
}

func TestGlobalSessionDebouncesAndDelivers(t *testing.T) {
	fake := &fakeSearchInvoker{
		globalHits: domain.GlobalSearchResults{
			Creators: []domain.RankedCreator{
				{Creator: domain.Creator{ID: "c1", Name: "Ada"}, Rank: 0},
			},
		},
	}

	var updates int
	var mu sync.Mutex
	s := NewGlobalSession(context.Background(), gateway.NewClient(fake), Options{
		Quiet:  20 * time.Millisecond,
		Logger: log.Null(),
		OnUpdate: func() {
			mu.Lock()
			updates++
			mu.Unlock()
		},
	})

	s.SetQuery("a")
	s.SetQuery("ad")
	s.Flush()

	require.Equal(t, []string{"ad"}, fake.gotQueries())
	snap := s.Snapshot()
	assert.False(t, snap.InFlight)
	assert.False(t, snap.Failed)
	require.Len(t, snap.Results.Creators, 1)
	assert.Equal(t, "Ada", snap.Results.Creators[0].Name)

	mu.Lock()
	assert.GreaterOrEqual(t, updates, 2, "each snapshot change notifies the UI")
	mu.Unlock()
}
