package session

import (
	"sync"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/ops"
)

// subscribe registers every push-event handler through the session's scope.
// Handlers run on the publisher's goroutine and must stay cheap; the heavy
// lifting (refetches) happens in onTerminal.
func (s *Session) subscribe() {
	s.scope.Subscribe(domain.EventSyncStarted, func(payload any) {
		if ev, ok := payload.(domain.SyncEvent); ok {
			s.Tracker.Start(ev.SourceID, ops.KindSync)
			s.notify()
		}
	})
	s.scope.Subscribe(domain.EventSyncCompleted, func(payload any) {
		if ev, ok := payload.(domain.SyncEvent); ok {
			s.Tracker.Complete(ev.SourceID, ops.KindSync, ev.Message)
		}
	})
	s.scope.Subscribe(domain.EventSyncError, func(payload any) {
		if ev, ok := payload.(domain.SyncEvent); ok {
			s.Tracker.Fail(ev.SourceID, ops.KindSync, ev.Message)
		}
	})

	s.scope.Subscribe(domain.EventDownloadStarted, func(payload any) {
		if ev, ok := payload.(domain.DownloadEvent); ok {
			s.Tracker.Start(ev.FeedItemID, ops.KindDownload)
			s.Feed.Patch(ev.FeedItemID, func(item domain.FeedItem) domain.FeedItem {
				item.DownloadStatus = domain.StatusDownloading
				return item
			})
			s.notify()
		}
	})
	s.scope.Subscribe(domain.EventDownloadProgress, func(payload any) {
		if ev, ok := payload.(domain.DownloadEvent); ok {
			s.Tracker.Progress(ev.FeedItemID, ops.KindDownload, ev.Percent, ev.Speed)
			s.notify()
		}
	})
	s.scope.Subscribe(domain.EventDownloadCompleted, func(payload any) {
		if ev, ok := payload.(domain.DownloadEvent); ok {
			// The completion event carries the authoritative linkage; patch
			// it in so the row flips without waiting for the refetch.
			s.Feed.Patch(ev.FeedItemID, func(item domain.FeedItem) domain.FeedItem {
				item.DownloadStatus = domain.StatusDownloaded
				item.WarehouseItemID = ev.WarehouseItemID
				return item
			})
			s.Tracker.Complete(ev.FeedItemID, ops.KindDownload, "")
		}
	})
	s.scope.Subscribe(domain.EventDownloadError, func(payload any) {
		if ev, ok := payload.(domain.DownloadEvent); ok {
			s.Tracker.Fail(ev.FeedItemID, ops.KindDownload, ev.Error)
		}
	})

	s.scope.Subscribe(domain.EventMetadataUpdate, func(payload any) {
		ev, ok := payload.(domain.MetadataEvent)
		if !ok {
			return
		}
		switch ev.Status {
		case domain.MetadataStarted:
			s.Tracker.Start(ev.FeedItemID, ops.KindMetadata)
			s.notify()
		case domain.MetadataCompleted:
			s.Tracker.Complete(ev.FeedItemID, ops.KindMetadata, ev.Message)
		case domain.MetadataError:
			s.Tracker.Fail(ev.FeedItemID, ops.KindMetadata, ev.Message)
		}
	})
}

// onTerminal reconciles local state when an operation ends, whether the
// backend reported it or the watchdog synthesized it. Errors refetch rather
// than patch; the backend holds the truth about what a failed operation left
// behind.
func (s *Session) onTerminal(term ops.Terminal) {
	if s.ctx.Err() != nil {
		return
	}
	if term.Synthesized {
		s.logger.Warn("operation expired without terminal event",
			"entity_id", term.Op.EntityID, "kind", term.Op.Kind)
	}

	switch term.Op.Kind {
	case ops.KindSync:
		// New items, source status, and last-synced all changed.
		s.refetchSources(s.ctx)
		s.refetchFeed(s.ctx)
		s.refetchCounts(s.ctx)
	case ops.KindDownload:
		if term.Err == "" {
			s.refetchWarehouse(s.ctx)
			s.refetchCounts(s.ctx)
		} else {
			s.refetchFeed(s.ctx)
		}
	case ops.KindMetadata:
		s.refetchFeed(s.ctx)
	}
	s.notify()
}

// countsCell guards the feed summary counts.
type countsCell struct {
	mu     sync.Mutex
	counts domain.FeedItemCounts
}

func (c *countsCell) get() domain.FeedItemCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

func (c *countsCell) set(counts domain.FeedItemCounts) {
	c.mu.Lock()
	c.counts = counts
	c.mu.Unlock()
}
