package domain

import (
	"fmt"
	"time"
)

// DownloadStatus is the lifecycle of a feed item's media file.
type DownloadStatus string

const (
	StatusNotDownloaded DownloadStatus = "not_downloaded"
	StatusDownloading   DownloadStatus = "downloading"
	StatusDownloaded    DownloadStatus = "downloaded"
	StatusDownloadError DownloadStatus = "error"
)

// SourceStatus reports whether a source's channel URL has been validated.
type SourceStatus string

const (
	SourcePending   SourceStatus = "pending"
	SourceValidated SourceStatus = "validated"
	SourceError     SourceStatus = "error"
)

// Platform identifies where a source's content comes from.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformPatreon Platform = "patreon"
)

// Creator is the top-level entity content is organized under.
type Creator struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PhotoPath string    `json:"photo_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Creator) EntityID() string { return c.ID }

// Source is a platform channel/page feeding content into a creator's feed.
type Source struct {
	ID           string       `json:"id"`
	CreatorID    string       `json:"creator_id"`
	Platform     Platform     `json:"platform"`
	ChannelURL   string       `json:"channel_url"`
	ChannelName  string       `json:"channel_name,omitempty"`
	CredentialID string       `json:"credential_id,omitempty"`
	Status       SourceStatus `json:"status"`
	LastSyncedAt *time.Time   `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (s Source) EntityID() string { return s.ID }

// FeedItem is a discovered piece of content, not necessarily downloaded.
// MetadataComplete distinguishes fully hydrated records from stubs whose
// PublishedAt/Duration/ThumbnailURL may still be empty and are candidates
// for backfill.
type FeedItem struct {
	ID               string         `json:"id"`
	SourceID         string         `json:"source_id"`
	ExternalID       string         `json:"external_id"`
	Title            string         `json:"title"`
	ThumbnailURL     string         `json:"thumbnail_url,omitempty"`
	PublishedAt      *time.Time     `json:"published_at,omitempty"`
	Duration         int64          `json:"duration,omitempty"` // seconds, 0 = unknown
	DownloadStatus   DownloadStatus `json:"download_status"`
	WarehouseItemID  string         `json:"warehouse_item_id,omitempty"`
	MetadataComplete bool           `json:"metadata_complete"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (f FeedItem) EntityID() string { return f.ID }

// FormattedDuration returns the duration in a human-readable format.
func (f FeedItem) FormattedDuration() string {
	if f.Duration <= 0 {
		return "--:--"
	}
	d := time.Duration(f.Duration) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// WarehouseItem is a locally materialized media file, either the terminal
// state of a feed item download or a manual import (no FeedItemID).
type WarehouseItem struct {
	ID             string     `json:"id"`
	CreatorID      string     `json:"creator_id"`
	FeedItemID     string     `json:"feed_item_id,omitempty"`
	Title          string     `json:"title"`
	FilePath       string     `json:"file_path"`
	ThumbnailPath  string     `json:"thumbnail_path,omitempty"`
	Platform       Platform   `json:"platform,omitempty"`
	OriginalURL    string     `json:"original_url,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Duration       int64      `json:"duration,omitempty"`
	FileSize       int64      `json:"file_size"`
	ImportedAt     time.Time  `json:"imported_at"`
	IsManualImport bool       `json:"is_manual_import"`
}

func (w WarehouseItem) EntityID() string { return w.ID }

// FormattedFileSize returns the file size in a human-readable format.
func (w WarehouseItem) FormattedFileSize() string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case w.FileSize >= gb:
		return fmt.Sprintf("%.1f GB", float64(w.FileSize)/float64(gb))
	case w.FileSize > 0:
		return fmt.Sprintf("%d MB", w.FileSize/mb)
	default:
		return ""
	}
}

// Credential is a stored login context (cookie file) for a platform.
type Credential struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Platform   Platform  `json:"platform"`
	CookiePath string    `json:"cookie_path"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (c Credential) EntityID() string { return c.ID }

// AppSettings holds backend-persisted application settings.
type AppSettings struct {
	LibraryPath          string `json:"library_path"`
	DefaultQuality       string `json:"default_quality"`
	SyncIntervalSeconds  int    `json:"sync_interval_seconds"`
	Theme                string `json:"theme"`
	FirstRunCompleted    bool   `json:"first_run_completed"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	BassBoostPreset      string `json:"bass_boost_preset"`
	BassBoostCustomGain  int    `json:"bass_boost_custom_gain"`
}

// FeedItemCounts summarizes a creator's feed by download state.
type FeedItemCounts struct {
	Total         int `json:"total"`
	Downloaded    int `json:"downloaded"`
	NotDownloaded int `json:"not_downloaded"`
}

// RankedFeedItem is a feed item search hit with its relevance rank
// (lower is better).
type RankedFeedItem struct {
	FeedItem
	Rank int `json:"rank"`
}

// RankedWarehouseItem is a warehouse item search hit with its relevance rank.
type RankedWarehouseItem struct {
	WarehouseItem
	Rank int `json:"rank"`
}

// RankedCreator is a creator search hit with its relevance rank.
type RankedCreator struct {
	Creator
	Rank int `json:"rank"`
}

// GlobalSearchResults groups ranked hits across all entity collections.
type GlobalSearchResults struct {
	Creators       []RankedCreator       `json:"creators"`
	FeedItems      []RankedFeedItem      `json:"feed_items"`
	WarehouseItems []RankedWarehouseItem `json:"warehouse_items"`
}
