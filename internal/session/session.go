// Package session owns the live state of one open creator library: the
// authoritative entity collections, the in-flight operation records, and the
// subscriptions that keep them reconciled with backend push events.
//
// Reconciliation policy: success events patch local state with the data they
// carry; error events never guess at remote state and trigger a refetch of
// the affected collection instead.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmcdole/stash/internal/backfill"
	"github.com/mmcdole/stash/internal/bus"
	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
	"github.com/mmcdole/stash/internal/ops"
	"github.com/mmcdole/stash/internal/search"
	"github.com/mmcdole/stash/internal/state"
)

// Deps are the shared services a session is built from.
type Deps struct {
	Client *gateway.Client
	Bus    bus.Bus
	Logger *slog.Logger

	// SearchDebounce and VisibilityDebounce are the quiet windows for the
	// search box and scroll-driven backfill.
	SearchDebounce     time.Duration
	VisibilityDebounce time.Duration
	BackfillBatchLimit int
	// WatchdogTimeout expires operations with no event activity. Zero or
	// negative disables the watchdog.
	WatchdogTimeout time.Duration

	// OnChange fires after any state change, on the goroutine that caused
	// it. The UI uses it to schedule a repaint.
	OnChange func()
}

// Session is one open creator library.
type Session struct {
	creatorID string
	client    *gateway.Client
	logger    *slog.Logger
	onChange  func()

	ctx    context.Context
	cancel context.CancelFunc
	scope  *bus.Scope

	Sources   *state.Collection[domain.Source]
	Feed      *state.Collection[domain.FeedItem]
	Warehouse *state.Collection[domain.WarehouseItem]
	Tracker   *ops.Tracker
	Search    *search.Session

	backfill *backfill.Scheduler
	counts   *countsCell
}

// New opens a session for the creator, subscribes it to push events, and
// starts the operation watchdog. The caller must Close it.
func New(ctx context.Context, deps Deps, creatorID string) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("creator_id", creatorID)

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		creatorID: creatorID,
		client:    deps.Client,
		logger:    logger,
		onChange:  deps.OnChange,
		ctx:       ctx,
		cancel:    cancel,
		scope:     bus.NewScope(deps.Bus),
		Sources:   state.NewCollection[domain.Source](),
		Feed:      state.NewCollection[domain.FeedItem](),
		Warehouse: state.NewCollection[domain.WarehouseItem](),
		counts:    &countsCell{},
	}

	s.Tracker = ops.NewTracker(logger, s.onTerminal)
	s.backfill = backfill.NewScheduler(ctx, s.dispatchBackfill, backfill.Options{
		Quiet:      deps.VisibilityDebounce,
		BatchLimit: deps.BackfillBatchLimit,
		Logger:     logger,
	})
	s.Search = search.NewSession(ctx, deps.Client, creatorID, search.Options{
		Quiet:    deps.SearchDebounce,
		Logger:   logger,
		OnUpdate: s.notify,
	})

	s.subscribe()
	if deps.WatchdogTimeout > 0 {
		go s.Tracker.RunWatchdog(ctx, deps.WatchdogTimeout/4, deps.WatchdogTimeout)
	}
	return s
}

// Close tears down subscriptions and stops background work. Events arriving
// after Close are ignored.
func (s *Session) Close() {
	s.scope.Close()
	s.backfill.Stop()
	s.cancel()
}

func (s *Session) CreatorID() string { return s.creatorID }

// Counts returns the creator's feed summary from the last refetch.
func (s *Session) Counts() domain.FeedItemCounts {
	return s.counts.get()
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// === Hydration ===

// Hydrate fetches every collection from the backend. Called once after open;
// each refetch is also reachable individually from event handlers.
func (s *Session) Hydrate(ctx context.Context) error {
	if err := s.refetchSources(ctx); err != nil {
		return err
	}
	if err := s.refetchFeed(ctx); err != nil {
		return err
	}
	if err := s.refetchWarehouse(ctx); err != nil {
		return err
	}
	return s.refetchCounts(ctx)
}

func (s *Session) refetchSources(ctx context.Context) error {
	sources, err := s.client.Sources(ctx, s.creatorID)
	if err != nil {
		s.logger.Error("failed to refetch sources", "error", err)
		return err
	}
	s.Sources.Replace(sources)
	s.notify()
	return nil
}

// refetchFeed replaces the feed snapshot and feeds the new incomplete set to
// the backfill scheduler.
func (s *Session) refetchFeed(ctx context.Context) error {
	items, err := s.client.FeedItemsByCreator(ctx, s.creatorID)
	if err != nil {
		s.logger.Error("failed to refetch feed items", "error", err)
		return err
	}
	s.Feed.Replace(items)

	var incomplete []string
	for _, item := range items {
		if !item.MetadataComplete {
			incomplete = append(incomplete, item.ID)
		}
	}
	s.backfill.SetIncomplete(incomplete)
	s.notify()
	return nil
}

func (s *Session) refetchWarehouse(ctx context.Context) error {
	items, err := s.client.WarehouseItems(ctx, s.creatorID)
	if err != nil {
		s.logger.Error("failed to refetch warehouse items", "error", err)
		return err
	}
	s.Warehouse.Replace(items)
	s.notify()
	return nil
}

func (s *Session) refetchCounts(ctx context.Context) error {
	counts, err := s.client.FeedItemCounts(ctx, s.creatorID)
	if err != nil {
		s.logger.Error("failed to refetch feed counts", "error", err)
		return err
	}
	s.counts.set(counts)
	s.notify()
	return nil
}

// === Views ===

// FeedView returns the feed filtered by the search session plus the given
// filter, sorted by key.
func (s *Session) FeedView(filter state.FeedFilter, key state.SortKey) []domain.FeedItem {
	searchFilter := s.Search.FeedFilter()
	filter.Query = searchFilter.Query
	filter.ResultIDs = searchFilter.ResultIDs
	filter.HasIDSet = searchFilter.HasIDSet
	return state.SortFeedItems(state.FilterFeedItems(s.Feed.Snapshot(), filter), key)
}

// WarehouseView returns the warehouse filtered by the search session plus
// the given filter, sorted by key.
func (s *Session) WarehouseView(filter state.WarehouseFilter, key state.SortKey) []domain.WarehouseItem {
	searchFilter := s.Search.WarehouseFilter()
	filter.Query = searchFilter.Query
	filter.ResultIDs = searchFilter.ResultIDs
	filter.HasIDSet = searchFilter.HasIDSet
	return state.SortWarehouseItems(state.FilterWarehouseItems(s.Warehouse.Snapshot(), filter), key)
}

// === Backfill ===

// SetVisibleFeedItems reports which feed rows are on screen. Incomplete
// visible items are batched into metadata fetches after the quiet window.
func (s *Session) SetVisibleFeedItems(ids []string) {
	s.backfill.SetVisible(ids)
}

// MetadataLoading reports whether a backfill request for the item is in
// flight, for row-level loading indicators.
func (s *Session) MetadataLoading(id string) bool {
	return s.backfill.Loading(id)
}

func (s *Session) dispatchBackfill(ctx context.Context, ids []string) error {
	return s.client.FetchMetadata(ctx, ids)
}

// === Commands ===

// SyncAllSources asks the backend to sync every source of the creator.
// Progress arrives as sync_* events.
func (s *Session) SyncAllSources(ctx context.Context) error {
	return s.client.SyncCreator(ctx, s.creatorID)
}

// SyncSource asks the backend to sync one source.
func (s *Session) SyncSource(ctx context.Context, sourceID string) error {
	return s.client.SyncSource(ctx, sourceID)
}

// Download requests downloads for the given feed items. The backend rejects
// the whole batch if any item is already downloading or downloaded.
func (s *Session) Download(ctx context.Context, feedItemIDs []string) error {
	return s.client.DownloadItems(ctx, feedItemIDs)
}

// CancelDownload cancels one in-flight download.
func (s *Session) CancelDownload(ctx context.Context, feedItemID string) error {
	return s.client.CancelDownload(ctx, feedItemID)
}

// DeleteWarehouseItem removes the item optimistically, then confirms with
// the backend; a backend failure restores truth by refetching.
func (s *Session) DeleteWarehouseItem(ctx context.Context, id string) error {
	removed := s.Warehouse.Remove(id)
	if removed {
		s.notify()
	}
	if err := s.client.DeleteWarehouseItem(ctx, id); err != nil {
		if refErr := s.refetchWarehouse(ctx); refErr != nil {
			s.logger.Error("failed to restore warehouse after delete error", "error", refErr)
		}
		return err
	}
	// The linked feed item flipped back to not_downloaded server-side.
	if err := s.refetchFeed(ctx); err != nil {
		return err
	}
	return s.refetchCounts(ctx)
}

// ImportWarehouseItem registers an existing local file with the backend.
func (s *Session) ImportWarehouseItem(ctx context.Context, req gateway.ImportWarehouseItemRequest) (domain.WarehouseItem, error) {
	item, err := s.client.ImportWarehouseItem(ctx, req)
	if err != nil {
		return domain.WarehouseItem{}, err
	}
	s.Warehouse.Upsert(item)
	s.notify()
	return item, nil
}

// AddSource creates a source for the creator.
func (s *Session) AddSource(ctx context.Context, req gateway.CreateSourceRequest) (domain.Source, error) {
	req.CreatorID = s.creatorID
	src, err := s.client.CreateSource(ctx, req)
	if err != nil {
		return domain.Source{}, err
	}
	s.Sources.Upsert(src)
	s.notify()
	return src, nil
}

// RemoveSource deletes a source and drops its feed items optimistically.
func (s *Session) RemoveSource(ctx context.Context, sourceID string) error {
	if err := s.client.DeleteSource(ctx, sourceID); err != nil {
		return err
	}
	s.Sources.Remove(sourceID)
	if err := s.refetchFeed(ctx); err != nil {
		return err
	}
	return s.refetchCounts(ctx)
}
