// Package backend is the reference worker system behind the command gateway.
// It persists entities in a local store, runs the sync, download, and
// metadata workers, and emits push events in causal order per entity.
//
// Commands acknowledge quickly; long-running work continues in workers and
// reports progress through events only.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/stash/internal/backend/fetch"
	"github.com/mmcdole/stash/internal/backend/search"
	"github.com/mmcdole/stash/internal/backend/store"
	"github.com/mmcdole/stash/internal/bus"
	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
)

// Options tunes the service, mainly for tests.
type Options struct {
	// StepDelay paces simulated download/metadata work. Zero means the
	// 200ms default; tests use a tiny value.
	StepDelay time.Duration
	Logger    *slog.Logger
}

// Service implements every gateway command over a local store.
type Service struct {
	store   *store.Store
	fetcher fetch.Fetcher
	events  bus.Publisher
	logger  *slog.Logger

	stepDelay time.Duration
	newID     func() string
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	downloads      map[string]context.CancelFunc
	metadataPaused bool
	metadataQueue  []string
	metadataWake   *sync.Cond
}

// New creates the service and starts its metadata worker. Close releases it.
func New(st *store.Store, fetcher fetch.Fetcher, events bus.Publisher, opts Options) *Service {
	if opts.StepDelay <= 0 {
		opts.StepDelay = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:     st,
		fetcher:   fetcher,
		events:    events,
		logger:    opts.Logger,
		stepDelay: opts.StepDelay,
		newID:     uuid.NewString,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		downloads: make(map[string]context.CancelFunc),
	}
	s.metadataWake = sync.NewCond(&s.mu)

	s.wg.Add(1)
	go s.metadataWorker()
	return s
}

// Close stops all workers and waits for them to drain.
func (s *Service) Close() {
	s.cancel()
	s.mu.Lock()
	s.metadataWake.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// === Creators ===

func (s *Service) Creators(ctx context.Context) ([]domain.Creator, error) {
	return s.store.Creators()
}

func (s *Service) Creator(ctx context.Context, id string) (domain.Creator, error) {
	return s.store.Creator(id)
}

func (s *Service) CreateCreator(ctx context.Context, req gateway.CreateCreatorRequest) (domain.Creator, error) {
	if strings.TrimSpace(req.Name) == "" {
		return domain.Creator{}, validationErr("creator name is required")
	}
	now := s.now().UTC()
	c := domain.Creator{
		ID:        s.newID(),
		Name:      strings.TrimSpace(req.Name),
		PhotoPath: req.PhotoPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.PutCreator(c); err != nil {
		return domain.Creator{}, err
	}
	s.logger.Info("creator created", "id", c.ID, "name", c.Name)
	return c, nil
}

func (s *Service) UpdateCreator(ctx context.Context, id string, req gateway.UpdateCreatorRequest) (domain.Creator, error) {
	c, err := s.store.Creator(id)
	if err != nil {
		return domain.Creator{}, err
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return domain.Creator{}, validationErr("creator name cannot be empty")
		}
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.PhotoPath != nil {
		c.PhotoPath = *req.PhotoPath
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.store.PutCreator(c); err != nil {
		return domain.Creator{}, err
	}
	return c, nil
}

func (s *Service) DeleteCreator(ctx context.Context, id string) error {
	if err := s.store.DeleteCreator(id); err != nil {
		return err
	}
	s.logger.Info("creator deleted", "id", id)
	return nil
}

// === Sources ===

func (s *Service) Sources(ctx context.Context, creatorID string) ([]domain.Source, error) {
	if _, err := s.store.Creator(creatorID); err != nil {
		return nil, err
	}
	return s.store.Sources(creatorID)
}

func (s *Service) CreateSource(ctx context.Context, req gateway.CreateSourceRequest) (domain.Source, error) {
	if _, err := s.store.Creator(req.CreatorID); err != nil {
		return domain.Source{}, err
	}
	if req.Platform != domain.PlatformYouTube && req.Platform != domain.PlatformPatreon {
		return domain.Source{}, validationErr("unknown platform %q", req.Platform)
	}
	src := domain.Source{
		ID:           s.newID(),
		CreatorID:    req.CreatorID,
		Platform:     req.Platform,
		ChannelURL:   strings.TrimSpace(req.ChannelURL),
		CredentialID: req.CredentialID,
		Status:       domain.SourcePending,
		CreatedAt:    s.now().UTC(),
	}
	if _, err := fetch.FeedURL(src); err != nil {
		return domain.Source{}, validationErr("invalid channel url: %v", err)
	}
	if err := s.store.PutSource(src); err != nil {
		return domain.Source{}, err
	}
	s.logger.Info("source created", "id", src.ID, "creator_id", src.CreatorID, "platform", src.Platform)
	return src, nil
}

func (s *Service) UpdateSource(ctx context.Context, id string, req gateway.UpdateSourceRequest) (domain.Source, error) {
	src, err := s.store.Source(id)
	if err != nil {
		return domain.Source{}, err
	}
	if req.ChannelURL != nil {
		src.ChannelURL = strings.TrimSpace(*req.ChannelURL)
		src.Status = domain.SourcePending
		if _, err := fetch.FeedURL(src); err != nil {
			return domain.Source{}, validationErr("invalid channel url: %v", err)
		}
	}
	if req.ChannelName != nil {
		src.ChannelName = *req.ChannelName
	}
	if req.CredentialID != nil {
		src.CredentialID = *req.CredentialID
	}
	if req.Status != nil {
		src.Status = *req.Status
	}
	if err := s.store.PutSource(src); err != nil {
		return domain.Source{}, err
	}
	return src, nil
}

func (s *Service) DeleteSource(ctx context.Context, id string) error {
	return s.store.DeleteSource(id)
}

// === Feed items ===

func (s *Service) FeedItems(ctx context.Context, sourceID string) ([]domain.FeedItem, error) {
	if _, err := s.store.Source(sourceID); err != nil {
		return nil, err
	}
	return s.store.FeedItems(sourceID)
}

func (s *Service) FeedItemsByCreator(ctx context.Context, creatorID string) ([]domain.FeedItem, error) {
	sources, err := s.Sources(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = src.ID
	}
	return s.store.FeedItemsBySources(ids)
}

func (s *Service) CreateFeedItem(ctx context.Context, req gateway.CreateFeedItemRequest) (domain.FeedItem, error) {
	if _, err := s.store.Source(req.SourceID); err != nil {
		return domain.FeedItem{}, err
	}
	if req.ExternalID == "" || strings.TrimSpace(req.Title) == "" {
		return domain.FeedItem{}, validationErr("external_id and title are required")
	}
	if _, err := s.store.FeedItemByExternalID(req.SourceID, req.ExternalID); err == nil {
		return domain.FeedItem{}, fmt.Errorf("%w: feed item %s already exists", domain.ErrConflict, req.ExternalID)
	}

	item := domain.FeedItem{
		ID:             s.newID(),
		SourceID:       req.SourceID,
		ExternalID:     req.ExternalID,
		Title:          strings.TrimSpace(req.Title),
		ThumbnailURL:   req.ThumbnailURL,
		Duration:       req.Duration,
		DownloadStatus: domain.StatusNotDownloaded,
		CreatedAt:      s.now().UTC(),
	}
	if req.PublishedAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.PublishedAt)
		if err != nil {
			return domain.FeedItem{}, validationErr("invalid published_at: %v", err)
		}
		item.PublishedAt = &ts
	}
	item.MetadataComplete = item.PublishedAt != nil && item.Duration > 0 && item.ThumbnailURL != ""
	if err := s.store.PutFeedItem(item); err != nil {
		return domain.FeedItem{}, err
	}
	return item, nil
}

func (s *Service) UpdateFeedItem(ctx context.Context, id string, req gateway.UpdateFeedItemRequest) (domain.FeedItem, error) {
	item, err := s.store.FeedItem(id)
	if err != nil {
		return domain.FeedItem{}, err
	}
	if req.DownloadStatus != nil {
		item.DownloadStatus = *req.DownloadStatus
	}
	if req.WarehouseItemID != nil {
		item.WarehouseItemID = *req.WarehouseItemID
	}
	if err := s.store.PutFeedItem(item); err != nil {
		return domain.FeedItem{}, err
	}
	return item, nil
}

func (s *Service) FeedItemCounts(ctx context.Context, creatorID string) (domain.FeedItemCounts, error) {
	items, err := s.FeedItemsByCreator(ctx, creatorID)
	if err != nil {
		return domain.FeedItemCounts{}, err
	}
	counts := domain.FeedItemCounts{Total: len(items)}
	for _, item := range items {
		if item.DownloadStatus == domain.StatusDownloaded {
			counts.Downloaded++
		} else {
			counts.NotDownloaded++
		}
	}
	return counts, nil
}

// === Warehouse ===

func (s *Service) WarehouseItems(ctx context.Context, creatorID string) ([]domain.WarehouseItem, error) {
	if _, err := s.store.Creator(creatorID); err != nil {
		return nil, err
	}
	return s.store.WarehouseItems(creatorID)
}

// CreateWarehouseItem registers a media file record as given. When the
// request links a feed item, that item flips to downloaded and points back
// at the new record, same as a download completion would leave it.
func (s *Service) CreateWarehouseItem(ctx context.Context, req gateway.CreateWarehouseItemRequest) (domain.WarehouseItem, error) {
	if _, err := s.store.Creator(req.CreatorID); err != nil {
		return domain.WarehouseItem{}, err
	}
	if req.FilePath == "" || strings.TrimSpace(req.Title) == "" {
		return domain.WarehouseItem{}, validationErr("file_path and title are required")
	}
	var feedItem domain.FeedItem
	if req.FeedItemID != "" {
		var err error
		if feedItem, err = s.store.FeedItem(req.FeedItemID); err != nil {
			return domain.WarehouseItem{}, err
		}
	}

	item := domain.WarehouseItem{
		ID:             s.newID(),
		CreatorID:      req.CreatorID,
		FeedItemID:     req.FeedItemID,
		Title:          strings.TrimSpace(req.Title),
		FilePath:       req.FilePath,
		ThumbnailPath:  req.ThumbnailPath,
		Platform:       req.Platform,
		OriginalURL:    req.OriginalURL,
		Duration:       req.Duration,
		FileSize:       req.FileSize,
		ImportedAt:     s.now().UTC(),
		IsManualImport: req.IsManualImport,
	}
	if req.PublishedAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.PublishedAt)
		if err != nil {
			return domain.WarehouseItem{}, validationErr("invalid published_at: %v", err)
		}
		item.PublishedAt = &ts
	}
	if err := s.store.PutWarehouseItem(item); err != nil {
		return domain.WarehouseItem{}, err
	}
	if req.FeedItemID != "" {
		feedItem.DownloadStatus = domain.StatusDownloaded
		feedItem.WarehouseItemID = item.ID
		if err := s.store.PutFeedItem(feedItem); err != nil {
			return domain.WarehouseItem{}, err
		}
	}
	s.logger.Info("warehouse item created", "id", item.ID, "feed_item_id", req.FeedItemID)
	return item, nil
}

// DeleteWarehouseItem removes the file record and resets the linked feed
// item so it can be downloaded again.
func (s *Service) DeleteWarehouseItem(ctx context.Context, id string) error {
	item, err := s.store.WarehouseItem(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWarehouseItem(id); err != nil {
		return err
	}
	if item.FeedItemID != "" {
		if feedItem, err := s.store.FeedItem(item.FeedItemID); err == nil {
			feedItem.DownloadStatus = domain.StatusNotDownloaded
			feedItem.WarehouseItemID = ""
			if err := s.store.PutFeedItem(feedItem); err != nil {
				return err
			}
		}
	}
	s.logger.Info("warehouse item deleted", "id", id)
	return nil
}

func (s *Service) ImportWarehouseItem(ctx context.Context, req gateway.ImportWarehouseItemRequest) (domain.WarehouseItem, error) {
	if _, err := s.store.Creator(req.CreatorID); err != nil {
		return domain.WarehouseItem{}, err
	}
	if req.FilePath == "" || strings.TrimSpace(req.Title) == "" {
		return domain.WarehouseItem{}, validationErr("file_path and title are required")
	}

	var size int64
	if info, err := os.Stat(req.FilePath); err == nil {
		size = info.Size()
	}
	item := domain.WarehouseItem{
		ID:             s.newID(),
		CreatorID:      req.CreatorID,
		Title:          strings.TrimSpace(req.Title),
		FilePath:       req.FilePath,
		Platform:       req.Platform,
		FileSize:       size,
		ImportedAt:     s.now().UTC(),
		IsManualImport: true,
	}
	if err := s.store.PutWarehouseItem(item); err != nil {
		return domain.WarehouseItem{}, err
	}
	s.logger.Info("warehouse item imported", "id", item.ID, "path", item.FilePath)
	return item, nil
}

// === Search ===

func (s *Service) SearchFeedItems(ctx context.Context, req gateway.SearchRequest) ([]domain.RankedFeedItem, error) {
	var (
		items []domain.FeedItem
		err   error
	)
	if req.CreatorID != "" {
		items, err = s.FeedItemsByCreator(ctx, req.CreatorID)
	} else {
		sources, serr := s.store.AllSources()
		if serr != nil {
			return nil, serr
		}
		ids := make([]string, len(sources))
		for i, src := range sources {
			ids[i] = src.ID
		}
		items, err = s.store.FeedItemsBySources(ids)
	}
	if err != nil {
		return nil, err
	}

	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Title
	}
	hits := search.RankTitles(req.Query, titles, req.Limit)
	out := make([]domain.RankedFeedItem, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.RankedFeedItem{FeedItem: items[h.Index], Rank: h.Rank})
	}
	return out, nil
}

func (s *Service) SearchWarehouseItems(ctx context.Context, req gateway.SearchRequest) ([]domain.RankedWarehouseItem, error) {
	var (
		items []domain.WarehouseItem
		err   error
	)
	if req.CreatorID != "" {
		items, err = s.store.WarehouseItems(req.CreatorID)
	} else {
		items, err = s.store.AllWarehouseItems()
	}
	if err != nil {
		return nil, err
	}

	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Title
	}
	hits := search.RankTitles(req.Query, titles, req.Limit)
	out := make([]domain.RankedWarehouseItem, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.RankedWarehouseItem{WarehouseItem: items[h.Index], Rank: h.Rank})
	}
	return out, nil
}

func (s *Service) SearchCreators(ctx context.Context, req gateway.SearchRequest) ([]domain.RankedCreator, error) {
	creators, err := s.store.Creators()
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(creators))
	for i, c := range creators {
		titles[i] = c.Name
	}
	hits := search.RankTitles(req.Query, titles, req.Limit)
	out := make([]domain.RankedCreator, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.RankedCreator{Creator: creators[h.Index], Rank: h.Rank})
	}
	return out, nil
}

func (s *Service) SearchGlobal(ctx context.Context, req gateway.SearchRequest) (domain.GlobalSearchResults, error) {
	creators, err := s.SearchCreators(ctx, req)
	if err != nil {
		return domain.GlobalSearchResults{}, err
	}
	feedItems, err := s.SearchFeedItems(ctx, req)
	if err != nil {
		return domain.GlobalSearchResults{}, err
	}
	warehouseItems, err := s.SearchWarehouseItems(ctx, req)
	if err != nil {
		return domain.GlobalSearchResults{}, err
	}
	return domain.GlobalSearchResults{
		Creators:       creators,
		FeedItems:      feedItems,
		WarehouseItems: warehouseItems,
	}, nil
}

// === Settings ===

func (s *Service) AppSettings(ctx context.Context) (domain.AppSettings, error) {
	return s.store.Settings()
}

func (s *Service) UpdateAppSettings(ctx context.Context, req gateway.UpdateAppSettingsRequest) (domain.AppSettings, error) {
	settings, err := s.store.Settings()
	if err != nil {
		return domain.AppSettings{}, err
	}
	if req.LibraryPath != nil {
		settings.LibraryPath = *req.LibraryPath
	}
	if req.DefaultQuality != nil {
		settings.DefaultQuality = *req.DefaultQuality
	}
	if req.SyncIntervalSeconds != nil {
		if *req.SyncIntervalSeconds < 0 {
			return domain.AppSettings{}, validationErr("sync interval cannot be negative")
		}
		settings.SyncIntervalSeconds = *req.SyncIntervalSeconds
	}
	if req.Theme != nil {
		settings.Theme = *req.Theme
	}
	if req.FirstRunCompleted != nil {
		settings.FirstRunCompleted = *req.FirstRunCompleted
	}
	if req.NotificationsEnabled != nil {
		settings.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.BassBoostPreset != nil {
		settings.BassBoostPreset = *req.BassBoostPreset
	}
	if req.BassBoostCustomGain != nil {
		settings.BassBoostCustomGain = *req.BassBoostCustomGain
	}
	if err := s.store.PutSettings(settings); err != nil {
		return domain.AppSettings{}, err
	}
	return settings, nil
}

// === Credentials ===

func (s *Service) Credentials(ctx context.Context, platform domain.Platform) ([]domain.Credential, error) {
	creds, err := s.store.Credentials()
	if err != nil {
		return nil, err
	}
	if platform == "" {
		return creds, nil
	}
	filtered := creds[:0:0]
	for _, c := range creds {
		if c.Platform == platform {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (s *Service) CreateCredential(ctx context.Context, req gateway.CreateCredentialRequest) (domain.Credential, error) {
	if strings.TrimSpace(req.Label) == "" || req.CookiePath == "" {
		return domain.Credential{}, validationErr("label and cookie_path are required")
	}
	now := s.now().UTC()
	cred := domain.Credential{
		ID:         s.newID(),
		Label:      strings.TrimSpace(req.Label),
		Platform:   req.Platform,
		CookiePath: req.CookiePath,
		IsDefault:  req.IsDefault,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if cred.IsDefault {
		if err := s.clearDefaultCredential(cred.Platform); err != nil {
			return domain.Credential{}, err
		}
	}
	if err := s.store.PutCredential(cred); err != nil {
		return domain.Credential{}, err
	}
	return cred, nil
}

func (s *Service) UpdateCredential(ctx context.Context, id string, req gateway.UpdateCredentialRequest) (domain.Credential, error) {
	cred, err := s.store.Credential(id)
	if err != nil {
		return domain.Credential{}, err
	}
	if req.Label != nil {
		cred.Label = strings.TrimSpace(*req.Label)
	}
	if req.CookiePath != nil {
		cred.CookiePath = *req.CookiePath
	}
	if req.IsDefault != nil {
		if *req.IsDefault && !cred.IsDefault {
			if err := s.clearDefaultCredential(cred.Platform); err != nil {
				return domain.Credential{}, err
			}
		}
		cred.IsDefault = *req.IsDefault
	}
	cred.UpdatedAt = s.now().UTC()
	if err := s.store.PutCredential(cred); err != nil {
		return domain.Credential{}, err
	}
	return cred, nil
}

func (s *Service) DeleteCredential(ctx context.Context, id string) error {
	return s.store.DeleteCredential(id)
}

// clearDefaultCredential demotes the platform's current default. At most one
// credential per platform is the default at any time.
func (s *Service) clearDefaultCredential(platform domain.Platform) error {
	creds, err := s.store.Credentials()
	if err != nil {
		return err
	}
	for _, c := range creds {
		if c.Platform == platform && c.IsDefault {
			c.IsDefault = false
			c.UpdatedAt = s.now().UTC()
			if err := s.store.PutCredential(c); err != nil {
				return err
			}
		}
	}
	return nil
}
