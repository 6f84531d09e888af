package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/stash/internal/backend/fetch"
	"github.com/mmcdole/stash/internal/backend/store"
	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
	"github.com/mmcdole/stash/internal/log"
)

// fakeFetcher serves canned entries, or fails.
type fakeFetcher struct {
	mu      sync.Mutex
	entries []fetch.Entry
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ domain.Source) ([]fetch.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]fetch.Entry(nil), f.entries...), nil
}

// eventLog records published events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name    string
	payload any
}

func (e *eventLog) Publish(event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{name: event, payload: payload})
}

func (e *eventLog) snapshot() []recordedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]recordedEvent(nil), e.events...)
}

func (e *eventLog) count(name string) int {
	n := 0
	for _, ev := range e.snapshot() {
		if ev.name == name {
			n++
		}
	}
	return n
}

func (e *eventLog) wait(t *testing.T, name string) recordedEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range e.snapshot() {
			if ev.name == name {
				return ev
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("event %s not published in time", name)
	return recordedEvent{}
}

type fixture struct {
	client  *gateway.Client
	svc     *Service
	store   *store.Store
	fetcher *fakeFetcher
	events  *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	fetcher := &fakeFetcher{}
	events := &eventLog{}
	svc := New(st, fetcher, events, Options{
		StepDelay: time.Millisecond,
		Logger:    log.Null(),
	})
	t.Cleanup(func() {
		svc.Close()
		st.Close()
	})

	return &fixture{
		client:  gateway.NewClient(NewLoopback(svc)),
		svc:     svc,
		store:   st,
		fetcher: fetcher,
		events:  events,
	}
}

// seedSource creates a creator with one source and returns both.
func (f *fixture) seedSource(t *testing.T) (domain.Creator, domain.Source) {
	t.Helper()
	ctx := context.Background()
	creator, err := f.client.CreateCreator(ctx, gateway.CreateCreatorRequest{Name: "Ada"})
	require.NoError(t, err)
	source, err := f.client.CreateSource(ctx, gateway.CreateSourceRequest{
		CreatorID:  creator.ID,
		Platform:   domain.PlatformYouTube,
		ChannelURL: "https://www.youtube.com/channel/UCabc",
	})
	require.NoError(t, err)
	return creator, source
}

func (f *fixture) seedFeedItem(t *testing.T, sourceID, externalID, title string) domain.FeedItem {
	t.Helper()
	item, err := f.client.CreateFeedItem(context.Background(), gateway.CreateFeedItemRequest{
		SourceID:   sourceID,
		ExternalID: externalID,
		Title:      title,
	})
	require.NoError(t, err)
	return item
}

func TestCreatorCRUDThroughGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.client.CreateCreator(ctx, gateway.CreateCreatorRequest{Name: "  Ada  "})
	require.NoError(t, err)
	assert.Equal(t, "Ada", created.Name)
	assert.NotEmpty(t, created.ID)

	name := "Ada Lovelace"
	updated, err := f.client.UpdateCreator(ctx, created.ID, gateway.UpdateCreatorRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.Name)

	require.NoError(t, f.client.DeleteCreator(ctx, created.ID))
	creators, err := f.client.Creators(ctx)
	require.NoError(t, err)
	assert.Empty(t, creators)
}

func TestErrorCodesSurfaceThroughGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Creator(ctx, "missing")
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeNotFound, gwErr.Code)
	assert.Equal(t, gateway.CmdGetCreator, gwErr.Command)

	_, err = f.client.CreateCreator(ctx, gateway.CreateCreatorRequest{Name: "   "})
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeValidation, gwErr.Code)
}

func TestSyncSourceStoresNewItemsAndEmitsEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, source := f.seedSource(t)

	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.fetcher.entries = []fetch.Entry{
		{ExternalID: "yt1", Title: "First", PublishedAt: &published},
		{ExternalID: "yt2", Title: "Second"},
	}

	require.NoError(t, f.client.SyncSource(ctx, source.ID))
	ev := f.events.wait(t, domain.EventSyncCompleted)
	payload := ev.payload.(domain.SyncEvent)
	assert.Equal(t, source.ID, payload.SourceID)
	assert.Equal(t, 2, payload.NewItems)

	items, err := f.client.FeedItems(ctx, source.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	got, err := f.store.Source(source.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceValidated, got.Status)
	assert.NotNil(t, got.LastSyncedAt)

	// A second sync of the same entries adds nothing.
	require.NoError(t, f.client.SyncSource(ctx, source.ID))
	waitFor(t, func() bool { return f.events.count(domain.EventSyncCompleted) == 2 })
	items, err = f.client.FeedItems(ctx, source.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestSyncErrorMarksSourceAndEmitsError(t *testing.T) {
	f := newFixture(t)
	_, source := f.seedSource(t)
	f.fetcher.err = errors.New("channel gone")

	require.NoError(t, f.client.SyncSource(context.Background(), source.ID))
	ev := f.events.wait(t, domain.EventSyncError)
	assert.Contains(t, ev.payload.(domain.SyncEvent).Message, "channel gone")

	got, err := f.store.Source(source.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceError, got.Status)
}

func TestDownloadLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, source := f.seedSource(t)
	item := f.seedFeedItem(t, source.ID, "yt1", "First Video")

	require.NoError(t, f.client.DownloadItems(ctx, []string{item.ID}))
	ev := f.events.wait(t, domain.EventDownloadCompleted)
	payload := ev.payload.(domain.DownloadEvent)
	assert.Equal(t, item.ID, payload.FeedItemID)
	require.NotEmpty(t, payload.WarehouseItemID)

	// Events arrive in causal order for the item.
	var order []string
	for _, rec := range f.events.snapshot() {
		if dl, ok := rec.payload.(domain.DownloadEvent); ok && dl.FeedItemID == item.ID {
			order = append(order, rec.name)
		}
	}
	require.GreaterOrEqual(t, len(order), 3)
	assert.Equal(t, domain.EventDownloadStarted, order[0])
	assert.Equal(t, domain.EventDownloadCompleted, order[len(order)-1])

	got, err := f.store.FeedItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDownloaded, got.DownloadStatus)
	assert.Equal(t, payload.WarehouseItemID, got.WarehouseItemID)

	warehouse, err := f.client.WarehouseItems(ctx, creator.ID)
	require.NoError(t, err)
	require.Len(t, warehouse, 1)
	assert.Equal(t, item.ID, warehouse[0].FeedItemID)
	assert.False(t, warehouse[0].IsManualImport)

	// Re-requesting a finished item is a conflict.
	err = f.client.DownloadItems(ctx, []string{item.ID})
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeConflict, gwErr.Code)
}

func TestCancelDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, source := f.seedSource(t)
	item := f.seedFeedItem(t, source.ID, "yt1", "Long Video")

	// Slow the steps down so the cancel lands mid-flight.
	f.svc.stepDelay = time.Second

	require.NoError(t, f.client.DownloadItems(ctx, []string{item.ID}))
	f.events.wait(t, domain.EventDownloadStarted)
	require.NoError(t, f.client.CancelDownload(ctx, item.ID))

	ev := f.events.wait(t, domain.EventDownloadError)
	assert.Contains(t, ev.payload.(domain.DownloadEvent).Error, "canceled")

	got, err := f.store.FeedItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDownloadError, got.DownloadStatus)

	err = f.client.CancelDownload(ctx, item.ID)
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeNotFound, gwErr.Code)
}

func TestMetadataWorkerHydratesAndEmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, source := f.seedSource(t)
	item := f.seedFeedItem(t, source.ID, "yt1", "Stub")

	ids, err := f.client.IncompleteMetadata(ctx, creator.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{item.ID}, ids)

	require.NoError(t, f.client.FetchMetadata(ctx, []string{item.ID}))
	waitFor(t, func() bool {
		for _, rec := range f.events.snapshot() {
			if md, ok := rec.payload.(domain.MetadataEvent); ok && md.Status == domain.MetadataCompleted {
				return true
			}
		}
		return false
	})

	got, err := f.store.FeedItem(item.ID)
	require.NoError(t, err)
	assert.True(t, got.MetadataComplete)
	assert.NotNil(t, got.PublishedAt)
	assert.NotZero(t, got.Duration)

	ids, err = f.client.IncompleteMetadata(ctx, creator.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMetadataWorkerPauseHoldsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, source := f.seedSource(t)
	item := f.seedFeedItem(t, source.ID, "yt1", "Stub")

	require.NoError(t, f.client.PauseMetadataWorker(ctx))
	require.NoError(t, f.client.FetchMetadata(ctx, []string{item.ID}))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.events.count(domain.EventMetadataUpdate), "paused worker must not start work")

	require.NoError(t, f.client.ResumeMetadataWorker(ctx))
	waitFor(t, func() bool { return f.events.count(domain.EventMetadataUpdate) >= 2 })

	got, err := f.store.FeedItem(item.ID)
	require.NoError(t, err)
	assert.True(t, got.MetadataComplete)
}

func TestDeleteWarehouseItemResetsFeedItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, source := f.seedSource(t)
	item := f.seedFeedItem(t, source.ID, "yt1", "First Video")

	require.NoError(t, f.client.DownloadItems(ctx, []string{item.ID}))
	ev := f.events.wait(t, domain.EventDownloadCompleted)
	warehouseID := ev.payload.(domain.DownloadEvent).WarehouseItemID

	require.NoError(t, f.client.DeleteWarehouseItem(ctx, warehouseID))

	got, err := f.store.FeedItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotDownloaded, got.DownloadStatus)
	assert.Empty(t, got.WarehouseItemID)
}

func TestCreateWarehouseItemLinksFeedItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, source := f.seedSource(t)
	item := f.seedFeedItem(t, source.ID, "yt1", "First Video")

	created, err := f.client.CreateWarehouseItem(ctx, gateway.CreateWarehouseItemRequest{
		CreatorID:  creator.ID,
		FeedItemID: item.ID,
		Title:      "First Video",
		FilePath:   "/media/first-video.mp4",
		FileSize:   2048,
	})
	require.NoError(t, err)
	assert.Equal(t, item.ID, created.FeedItemID)
	assert.False(t, created.IsManualImport)

	got, err := f.store.FeedItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDownloaded, got.DownloadStatus)
	assert.Equal(t, created.ID, got.WarehouseItemID)

	// Deleting the record undoes the linkage it established.
	require.NoError(t, f.client.DeleteWarehouseItem(ctx, created.ID))
	got, err = f.store.FeedItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotDownloaded, got.DownloadStatus)
	assert.Empty(t, got.WarehouseItemID)
}

func TestCreateWarehouseItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, err := f.client.CreateCreator(ctx, gateway.CreateCreatorRequest{Name: "Ada"})
	require.NoError(t, err)

	_, err = f.client.CreateWarehouseItem(ctx, gateway.CreateWarehouseItemRequest{
		CreatorID: creator.ID,
		FilePath:  "/media/untitled.mp4",
	})
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeValidation, gwErr.Code)

	_, err = f.client.CreateWarehouseItem(ctx, gateway.CreateWarehouseItemRequest{
		CreatorID:  creator.ID,
		FeedItemID: "missing",
		Title:      "Orphan",
		FilePath:   "/media/orphan.mp4",
	})
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeNotFound, gwErr.Code)
}

func TestSearchGlobalGroupsRankedHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, source := f.seedSource(t)
	f.seedFeedItem(t, source.ID, "yt1", "Go Tutorial")
	f.seedFeedItem(t, source.ID, "yt2", "Unrelated")
	_, err := f.client.ImportWarehouseItem(ctx, gateway.ImportWarehouseItemRequest{
		CreatorID: creator.ID,
		FilePath:  "/media/go-talk.mp4",
		Title:     "Go Talk",
	})
	require.NoError(t, err)

	results, err := f.client.SearchGlobal(ctx, gateway.SearchRequest{Query: "go"})
	require.NoError(t, err)
	require.Len(t, results.FeedItems, 1)
	assert.Equal(t, "Go Tutorial", results.FeedItems[0].Title)
	require.Len(t, results.WarehouseItems, 1)
	assert.Equal(t, "Go Talk", results.WarehouseItems[0].Title)
	assert.Empty(t, results.Creators)
}

func TestDefaultCredentialIsExclusivePerPlatform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.client.CreateCredential(ctx, gateway.CreateCredentialRequest{
		Label: "main", Platform: domain.PlatformYouTube, CookiePath: "/tmp/a", IsDefault: true,
	})
	require.NoError(t, err)

	_, err = f.client.CreateCredential(ctx, gateway.CreateCredentialRequest{
		Label: "alt", Platform: domain.PlatformYouTube, CookiePath: "/tmp/b", IsDefault: true,
	})
	require.NoError(t, err)

	got, err := f.store.Credential(first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault, "new default demotes the old one")
}

func TestUpdateAppSettingsMergesPartialUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	theme := "light"
	updated, err := f.client.UpdateAppSettings(ctx, gateway.UpdateAppSettingsRequest{Theme: &theme})
	require.NoError(t, err)
	assert.Equal(t, "light", updated.Theme)
	assert.Equal(t, "1080p", updated.DefaultQuality, "unspecified fields keep their values")

	interval := -1
	_, err = f.client.UpdateAppSettings(ctx, gateway.UpdateAppSettingsRequest{SyncIntervalSeconds: &interval})
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeValidation, gwErr.Code)
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
