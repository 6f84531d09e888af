package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/stash/internal/backend"
	"github.com/mmcdole/stash/internal/backend/fetch"
	"github.com/mmcdole/stash/internal/backend/store"
	"github.com/mmcdole/stash/internal/bus"
	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
	"github.com/mmcdole/stash/internal/log"
	"github.com/mmcdole/stash/internal/ops"
	"github.com/mmcdole/stash/internal/state"
)

type stubFetcher struct {
	entries []fetch.Entry
}

func (f *stubFetcher) Fetch(_ context.Context, _ domain.Source) ([]fetch.Entry, error) {
	return append([]fetch.Entry(nil), f.entries...), nil
}

type fixture struct {
	deps    Deps
	bus     *bus.Dispatcher
	store   *store.Store
	client  *gateway.Client
	fetcher *stubFetcher

	creator domain.Creator
	source  domain.Source
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	dispatcher := bus.NewDispatcher(log.Null())
	fetcher := &stubFetcher{}
	svc := backend.New(st, fetcher, dispatcher, backend.Options{
		StepDelay: time.Millisecond,
		Logger:    log.Null(),
	})
	t.Cleanup(func() {
		svc.Close()
		st.Close()
	})

	client := gateway.NewClient(backend.NewLoopback(svc))
	ctx := context.Background()

	creator, err := client.CreateCreator(ctx, gateway.CreateCreatorRequest{Name: "Ada"})
	require.NoError(t, err)
	source, err := client.CreateSource(ctx, gateway.CreateSourceRequest{
		CreatorID:  creator.ID,
		Platform:   domain.PlatformYouTube,
		ChannelURL: "https://www.youtube.com/channel/UCabc",
	})
	require.NoError(t, err)

	return &fixture{
		deps: Deps{
			Client:             client,
			Bus:                dispatcher,
			Logger:             log.Null(),
			SearchDebounce:     10 * time.Millisecond,
			VisibilityDebounce: 10 * time.Millisecond,
			BackfillBatchLimit: 25,
		},
		bus:     dispatcher,
		store:   st,
		client:  client,
		fetcher: fetcher,
		creator: creator,
		source:  source,
	}
}

func (f *fixture) openSession(t *testing.T) *Session {
	t.Helper()
	s := New(context.Background(), f.deps, f.creator.ID)
	t.Cleanup(s.Close)
	require.NoError(t, s.Hydrate(context.Background()))
	return s
}

func (f *fixture) seedFeedItem(t *testing.T, externalID, title string) domain.FeedItem {
	t.Helper()
	item, err := f.client.CreateFeedItem(context.Background(), gateway.CreateFeedItemRequest{
		SourceID:   f.source.ID,
		ExternalID: externalID,
		Title:      title,
	})
	require.NoError(t, err)
	return item
}

func TestHydrateLoadsAllCollections(t *testing.T) {
	f := newFixture(t)
	f.seedFeedItem(t, "yt1", "First")
	f.seedFeedItem(t, "yt2", "Second")
	_, err := f.client.ImportWarehouseItem(context.Background(), gateway.ImportWarehouseItemRequest{
		CreatorID: f.creator.ID,
		FilePath:  "/media/old.mp4",
		Title:     "Old Recording",
	})
	require.NoError(t, err)

	s := f.openSession(t)

	assert.Equal(t, 1, s.Sources.Len())
	assert.Equal(t, 2, s.Feed.Len())
	assert.Equal(t, 1, s.Warehouse.Len())
	assert.Equal(t, domain.FeedItemCounts{Total: 2, Downloaded: 0, NotDownloaded: 2}, s.Counts())
}

func TestSyncLifecycleReconcilesThroughEvents(t *testing.T) {
	f := newFixture(t)
	s := f.openSession(t)
	require.Equal(t, 0, s.Feed.Len())

	f.fetcher.entries = []fetch.Entry{
		{ExternalID: "yt1", Title: "First"},
		{ExternalID: "yt2", Title: "Second"},
	}
	require.NoError(t, s.SyncSource(context.Background(), f.source.ID))

	// sync_completed triggers the refetch that lands the new items.
	waitFor(t, func() bool { return s.Feed.Len() == 2 })
	waitFor(t, func() bool { return !s.Tracker.InFlight(f.source.ID, ops.KindSync) })

	src, ok := s.Sources.Get(f.source.ID)
	require.True(t, ok)
	assert.Equal(t, domain.SourceValidated, src.Status)
	assert.NotNil(t, src.LastSyncedAt)
	assert.Equal(t, 2, s.Counts().Total)
}

func TestDownloadEventsPatchFeedAndTrackProgress(t *testing.T) {
	f := newFixture(t)
	item := f.seedFeedItem(t, "yt1", "First")
	s := f.openSession(t)

	// Deterministic event injection: handlers run synchronously on the
	// publisher goroutine.
	f.bus.Publish(domain.EventDownloadStarted, domain.DownloadEvent{FeedItemID: item.ID})
	got, _ := s.Feed.Get(item.ID)
	assert.Equal(t, domain.StatusDownloading, got.DownloadStatus)
	assert.True(t, s.Tracker.InFlight(item.ID, ops.KindDownload))

	f.bus.Publish(domain.EventDownloadProgress, domain.DownloadEvent{FeedItemID: item.ID, Percent: 40, Speed: "2 MB/s"})
	op, ok := s.Tracker.Get(item.ID, ops.KindDownload)
	require.True(t, ok)
	assert.Equal(t, ops.PhaseInProgress, op.Phase)
	assert.Equal(t, 40.0, op.Percent)

	f.bus.Publish(domain.EventDownloadCompleted, domain.DownloadEvent{FeedItemID: item.ID, WarehouseItemID: "w-remote"})
	got, _ = s.Feed.Get(item.ID)
	assert.Equal(t, domain.StatusDownloaded, got.DownloadStatus)
	assert.Equal(t, "w-remote", got.WarehouseItemID)
	assert.False(t, s.Tracker.InFlight(item.ID, ops.KindDownload))
}

func TestDownloadErrorRefetchesInsteadOfGuessing(t *testing.T) {
	f := newFixture(t)
	item := f.seedFeedItem(t, "yt1", "First")
	s := f.openSession(t)

	f.bus.Publish(domain.EventDownloadStarted, domain.DownloadEvent{FeedItemID: item.ID})
	got, _ := s.Feed.Get(item.ID)
	require.Equal(t, domain.StatusDownloading, got.DownloadStatus)

	// The backend never actually started this download, so the refetch
	// restores the authoritative not_downloaded state.
	f.bus.Publish(domain.EventDownloadError, domain.DownloadEvent{FeedItemID: item.ID, Error: "disk full"})
	got, _ = s.Feed.Get(item.ID)
	assert.Equal(t, domain.StatusNotDownloaded, got.DownloadStatus)
	assert.False(t, s.Tracker.InFlight(item.ID, ops.KindDownload))
}

func TestTerminalWithoutStartIsTolerated(t *testing.T) {
	f := newFixture(t)
	item := f.seedFeedItem(t, "yt1", "First")
	s := f.openSession(t)

	// Fast operation whose started event was missed entirely.
	f.bus.Publish(domain.EventDownloadCompleted, domain.DownloadEvent{FeedItemID: item.ID, WarehouseItemID: "w1"})
	got, _ := s.Feed.Get(item.ID)
	assert.Equal(t, domain.StatusDownloaded, got.DownloadStatus)
	assert.False(t, s.Tracker.InFlight(item.ID, ops.KindDownload))
}

func TestVisibilityDrivesMetadataBackfill(t *testing.T) {
	f := newFixture(t)
	item := f.seedFeedItem(t, "yt1", "Stub")
	s := f.openSession(t)

	got, _ := s.Feed.Get(item.ID)
	require.False(t, got.MetadataComplete)

	s.SetVisibleFeedItems([]string{item.ID})

	// Quiet window elapses, the batch dispatches, the worker hydrates, and
	// the metadata_update completion refetches the feed.
	waitFor(t, func() bool {
		got, ok := s.Feed.Get(item.ID)
		return ok && got.MetadataComplete
	})
	assert.False(t, s.MetadataLoading(item.ID), "loading mark cleared after the batch resolves")
}

func TestCloseStopsEventDelivery(t *testing.T) {
	f := newFixture(t)
	item := f.seedFeedItem(t, "yt1", "First")
	s := f.openSession(t)
	s.Close()

	f.bus.Publish(domain.EventDownloadStarted, domain.DownloadEvent{FeedItemID: item.ID})
	got, _ := s.Feed.Get(item.ID)
	assert.Equal(t, domain.StatusNotDownloaded, got.DownloadStatus, "closed session ignores events")
	assert.False(t, s.Tracker.InFlight(item.ID, ops.KindDownload))
}

func TestWatchdogExpiresStuckOperation(t *testing.T) {
	f := newFixture(t)
	f.deps.WatchdogTimeout = 40 * time.Millisecond
	s := New(context.Background(), f.deps, f.creator.ID)
	t.Cleanup(s.Close)
	require.NoError(t, s.Hydrate(context.Background()))

	// A start with no terminal event: the watchdog must clean it up.
	f.bus.Publish(domain.EventSyncStarted, domain.SyncEvent{SourceID: f.source.ID})
	require.True(t, s.Tracker.InFlight(f.source.ID, ops.KindSync))

	waitFor(t, func() bool { return !s.Tracker.InFlight(f.source.ID, ops.KindSync) })
}

func TestOptimisticWarehouseDelete(t *testing.T) {
	f := newFixture(t)
	s := f.openSession(t)
	ctx := context.Background()

	item, err := s.ImportWarehouseItem(ctx, gateway.ImportWarehouseItemRequest{
		CreatorID: f.creator.ID,
		FilePath:  "/media/x.mp4",
		Title:     "Manual",
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.Warehouse.Len())

	require.NoError(t, s.DeleteWarehouseItem(ctx, item.ID))
	assert.Equal(t, 0, s.Warehouse.Len())

	// Deleting again fails remotely; local state is refetched, not guessed.
	err = s.DeleteWarehouseItem(ctx, item.ID)
	require.Error(t, err)
	assert.Equal(t, 0, s.Warehouse.Len())
}

func TestFeedViewAppliesSearchAndSort(t *testing.T) {
	f := newFixture(t)
	f.seedFeedItem(t, "yt1", "Alpha Session")
	f.seedFeedItem(t, "yt2", "Beta Session")
	f.seedFeedItem(t, "yt3", "Gamma")
	s := f.openSession(t)

	s.Search.SetQuery("session")
	s.Search.Flush()

	view := s.FeedView(state.FeedFilter{}, state.SortTitle)
	require.Len(t, view, 2)
	assert.Equal(t, "Alpha Session", view[0].Title)
	assert.Equal(t, "Beta Session", view[1].Title)
}

func TestAppManagesCreatorsOptimistically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := NewApp(ctx, f.deps)

	require.NoError(t, app.RefreshCreators(ctx))
	require.Equal(t, 1, app.Creators.Len())

	created, err := app.CreateCreator(ctx, gateway.CreateCreatorRequest{Name: "Grace"})
	require.NoError(t, err)
	assert.Equal(t, 2, app.Creators.Len())

	require.NoError(t, app.DeleteCreator(ctx, created.ID))
	assert.Equal(t, 1, app.Creators.Len())

	// Deleting a ghost restores the authoritative list.
	err = app.DeleteCreator(ctx, "ghost")
	require.Error(t, err)
	assert.Equal(t, 1, app.Creators.Len())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
