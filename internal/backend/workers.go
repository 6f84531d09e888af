package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mmcdole/stash/internal/domain"
)

// === Sync ===

// SyncSource acknowledges immediately and syncs in the background. Progress
// and outcome arrive as sync_* events for the source id.
func (s *Service) SyncSource(ctx context.Context, sourceID string) error {
	src, err := s.store.Source(sourceID)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync(src)
	}()
	return nil
}

func (s *Service) SyncCreator(ctx context.Context, creatorID string) error {
	sources, err := s.Sources(ctx, creatorID)
	if err != nil {
		return err
	}
	s.syncSources(sources)
	return nil
}

func (s *Service) SyncAll(ctx context.Context) error {
	sources, err := s.store.AllSources()
	if err != nil {
		return err
	}
	s.syncSources(sources)
	return nil
}

func (s *Service) syncSources(sources []domain.Source) {
	for _, src := range sources {
		src := src
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSync(src)
		}()
	}
}

// runSync fetches the source's remote feed and upserts new items as metadata
// stubs. Events for a source are published from this one goroutine, so
// started always precedes the terminal event.
func (s *Service) runSync(src domain.Source) {
	s.events.Publish(domain.EventSyncStarted, domain.SyncEvent{SourceID: src.ID})

	entries, err := s.fetcher.Fetch(s.ctx, src)
	if err != nil {
		s.logger.Error("sync failed", "source_id", src.ID, "error", err)
		src.Status = domain.SourceError
		if perr := s.store.PutSource(src); perr != nil {
			s.logger.Error("failed to record sync failure", "source_id", src.ID, "error", perr)
		}
		s.events.Publish(domain.EventSyncError, domain.SyncEvent{SourceID: src.ID, Message: err.Error()})
		return
	}

	newItems := 0
	for _, entry := range entries {
		if entry.ExternalID == "" {
			continue
		}
		if _, err := s.store.FeedItemByExternalID(src.ID, entry.ExternalID); err == nil {
			continue
		}
		item := domain.FeedItem{
			ID:             s.newID(),
			SourceID:       src.ID,
			ExternalID:     entry.ExternalID,
			Title:          entry.Title,
			ThumbnailURL:   entry.ThumbnailURL,
			PublishedAt:    entry.PublishedAt,
			Duration:       entry.Duration,
			DownloadStatus: domain.StatusNotDownloaded,
			CreatedAt:      s.now().UTC(),
		}
		item.MetadataComplete = item.PublishedAt != nil && item.Duration > 0 && item.ThumbnailURL != ""
		if err := s.store.PutFeedItem(item); err != nil {
			s.logger.Error("failed to store feed item", "source_id", src.ID, "error", err)
			continue
		}
		newItems++
	}

	now := s.now().UTC()
	src.LastSyncedAt = &now
	src.Status = domain.SourceValidated
	if err := s.store.PutSource(src); err != nil {
		s.logger.Error("failed to record sync completion", "source_id", src.ID, "error", err)
	}

	s.logger.Info("sync completed", "source_id", src.ID, "new_items", newItems)
	s.events.Publish(domain.EventSyncCompleted, domain.SyncEvent{SourceID: src.ID, NewItems: newItems})
}

// === Downloads ===

// DownloadItems starts one simulated download per requested feed item.
// Items already downloaded or downloading are rejected up front; nothing is
// started in that case.
func (s *Service) DownloadItems(ctx context.Context, feedItemIDs []string) error {
	items := make([]domain.FeedItem, 0, len(feedItemIDs))
	for _, id := range feedItemIDs {
		item, err := s.store.FeedItem(id)
		if err != nil {
			return err
		}
		switch item.DownloadStatus {
		case domain.StatusDownloading:
			return fmt.Errorf("%w: item %s is already downloading", domain.ErrConflict, id)
		case domain.StatusDownloaded:
			return fmt.Errorf("%w: item %s is already downloaded", domain.ErrConflict, id)
		}
		items = append(items, item)
	}

	for _, item := range items {
		item := item
		item.DownloadStatus = domain.StatusDownloading
		if err := s.store.PutFeedItem(item); err != nil {
			return err
		}

		dlCtx, cancel := context.WithCancel(s.ctx)
		s.mu.Lock()
		s.downloads[item.ID] = cancel
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runDownload(dlCtx, item)
		}()
	}
	return nil
}

// CancelDownload stops an in-flight download. The terminal download_error
// event is published by the download goroutine itself.
func (s *Service) CancelDownload(ctx context.Context, feedItemID string) error {
	s.mu.Lock()
	cancel, ok := s.downloads[feedItemID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no download in flight for %s", domain.ErrNotFound, feedItemID)
	}
	cancel()
	return nil
}

func (s *Service) runDownload(ctx context.Context, item domain.FeedItem) {
	defer func() {
		s.mu.Lock()
		delete(s.downloads, item.ID)
		s.mu.Unlock()
	}()

	s.events.Publish(domain.EventDownloadStarted, domain.DownloadEvent{FeedItemID: item.ID})

	for _, percent := range []float64{25, 50, 75} {
		select {
		case <-ctx.Done():
			s.failDownload(item, "download canceled")
			return
		case <-time.After(s.stepDelay):
		}
		s.events.Publish(domain.EventDownloadProgress, domain.DownloadEvent{
			FeedItemID: item.ID,
			Percent:    percent,
			Speed:      "4.2 MB/s",
		})
	}

	settings, err := s.store.Settings()
	if err != nil {
		s.failDownload(item, err.Error())
		return
	}
	source, err := s.store.Source(item.SourceID)
	if err != nil {
		s.failDownload(item, err.Error())
		return
	}

	warehouse := domain.WarehouseItem{
		ID:          s.newID(),
		CreatorID:   source.CreatorID,
		FeedItemID:  item.ID,
		Title:       item.Title,
		FilePath:    filepath.Join(settings.LibraryPath, item.ID+".mp4"),
		Platform:    source.Platform,
		PublishedAt: item.PublishedAt,
		Duration:    item.Duration,
		ImportedAt:  s.now().UTC(),
	}
	if err := s.store.PutWarehouseItem(warehouse); err != nil {
		s.failDownload(item, err.Error())
		return
	}

	item.DownloadStatus = domain.StatusDownloaded
	item.WarehouseItemID = warehouse.ID
	if err := s.store.PutFeedItem(item); err != nil {
		s.failDownload(item, err.Error())
		return
	}

	s.logger.Info("download completed", "feed_item_id", item.ID, "warehouse_item_id", warehouse.ID)
	s.events.Publish(domain.EventDownloadCompleted, domain.DownloadEvent{
		FeedItemID:      item.ID,
		Percent:         100,
		WarehouseItemID: warehouse.ID,
	})
}

// failDownload records the error state and publishes the terminal event.
func (s *Service) failDownload(item domain.FeedItem, msg string) {
	item.DownloadStatus = domain.StatusDownloadError
	if err := s.store.PutFeedItem(item); err != nil {
		s.logger.Error("failed to record download failure", "feed_item_id", item.ID, "error", err)
	}
	s.logger.Warn("download failed", "feed_item_id", item.ID, "reason", msg)
	s.events.Publish(domain.EventDownloadError, domain.DownloadEvent{FeedItemID: item.ID, Error: msg})
}

// === Metadata ===

// FetchMetadata queues the items for the metadata worker. Unknown ids are
// rejected before anything is queued.
func (s *Service) FetchMetadata(ctx context.Context, feedItemIDs []string) error {
	for _, id := range feedItemIDs {
		if _, err := s.store.FeedItem(id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.metadataQueue = append(s.metadataQueue, feedItemIDs...)
	s.metadataWake.Broadcast()
	s.mu.Unlock()
	return nil
}

// IncompleteMetadata lists a creator's feed item ids still missing metadata,
// oldest first, capped at limit (<=0 means no cap).
func (s *Service) IncompleteMetadata(ctx context.Context, creatorID string, limit int) ([]string, error) {
	items, err := s.FeedItemsByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, item := range items {
		if !item.MetadataComplete {
			ids = append(ids, item.ID)
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// PauseMetadataWorker holds queued work. Items stay queued and resume in
// order.
func (s *Service) PauseMetadataWorker(ctx context.Context) error {
	s.mu.Lock()
	s.metadataPaused = true
	s.mu.Unlock()
	s.logger.Info("metadata worker paused")
	return nil
}

func (s *Service) ResumeMetadataWorker(ctx context.Context) error {
	s.mu.Lock()
	s.metadataPaused = false
	s.metadataWake.Broadcast()
	s.mu.Unlock()
	s.logger.Info("metadata worker resumed")
	return nil
}

// metadataWorker drains the queue one item at a time, blocking while paused
// or idle.
func (s *Service) metadataWorker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for (len(s.metadataQueue) == 0 || s.metadataPaused) && s.ctx.Err() == nil {
			s.metadataWake.Wait()
		}
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		id := s.metadataQueue[0]
		s.metadataQueue = s.metadataQueue[1:]
		s.mu.Unlock()

		s.hydrateMetadata(id)
	}
}

// hydrateMetadata fills in an item's missing fields. With no external
// scraper wired, absent values get deterministic placeholders; the point is
// the event contract, not the data source.
func (s *Service) hydrateMetadata(id string) {
	s.events.Publish(domain.EventMetadataUpdate, domain.MetadataEvent{
		FeedItemID: id,
		Status:     domain.MetadataStarted,
	})

	select {
	case <-s.ctx.Done():
		return
	case <-time.After(s.stepDelay):
	}

	item, err := s.store.FeedItem(id)
	if err != nil {
		s.events.Publish(domain.EventMetadataUpdate, domain.MetadataEvent{
			FeedItemID: id,
			Status:     domain.MetadataError,
			Message:    err.Error(),
		})
		return
	}

	if item.PublishedAt == nil {
		published := item.CreatedAt
		item.PublishedAt = &published
	}
	if item.Duration == 0 {
		item.Duration = 600
	}
	if item.ThumbnailURL == "" {
		item.ThumbnailURL = "https://i.ytimg.com/vi/" + item.ExternalID + "/hqdefault.jpg"
	}
	item.MetadataComplete = true

	if err := s.store.PutFeedItem(item); err != nil {
		s.events.Publish(domain.EventMetadataUpdate, domain.MetadataEvent{
			FeedItemID: id,
			Status:     domain.MetadataError,
			Message:    err.Error(),
		})
		return
	}

	s.events.Publish(domain.EventMetadataUpdate, domain.MetadataEvent{
		FeedItemID: id,
		Status:     domain.MetadataCompleted,
	})
}
