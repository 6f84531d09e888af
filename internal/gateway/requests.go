package gateway

import "github.com/mmcdole/stash/internal/domain"

// Request payloads for mutating commands. Optional fields are pointers so
// "not provided" and "set to zero" stay distinguishable on the wire.

type CreateCreatorRequest struct {
	Name      string `json:"name"`
	PhotoPath string `json:"photo_path,omitempty"`
}

type UpdateCreatorRequest struct {
	Name      *string `json:"name,omitempty"`
	PhotoPath *string `json:"photo_path,omitempty"`
}

type CreateSourceRequest struct {
	CreatorID    string          `json:"creator_id"`
	Platform     domain.Platform `json:"platform"`
	ChannelURL   string          `json:"channel_url"`
	CredentialID string          `json:"credential_id,omitempty"`
}

type UpdateSourceRequest struct {
	ChannelURL   *string              `json:"channel_url,omitempty"`
	ChannelName  *string              `json:"channel_name,omitempty"`
	CredentialID *string              `json:"credential_id,omitempty"`
	Status       *domain.SourceStatus `json:"status,omitempty"`
}

type CreateFeedItemRequest struct {
	SourceID     string  `json:"source_id"`
	ExternalID   string  `json:"external_id"`
	Title        string  `json:"title"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	PublishedAt  *string `json:"published_at,omitempty"` // RFC 3339
	Duration     int64   `json:"duration,omitempty"`
}

type UpdateFeedItemRequest struct {
	DownloadStatus  *domain.DownloadStatus `json:"download_status,omitempty"`
	WarehouseItemID *string                `json:"warehouse_item_id,omitempty"`
}

// CreateWarehouseItemRequest registers a media file record directly. A
// non-empty FeedItemID links the record to the feed item it materializes.
type CreateWarehouseItemRequest struct {
	CreatorID      string          `json:"creator_id"`
	FeedItemID     string          `json:"feed_item_id,omitempty"`
	Title          string          `json:"title"`
	FilePath       string          `json:"file_path"`
	ThumbnailPath  string          `json:"thumbnail_path,omitempty"`
	Platform       domain.Platform `json:"platform,omitempty"`
	OriginalURL    string          `json:"original_url,omitempty"`
	PublishedAt    *string         `json:"published_at,omitempty"` // RFC 3339
	Duration       int64           `json:"duration,omitempty"`
	FileSize       int64           `json:"file_size,omitempty"`
	IsManualImport bool            `json:"is_manual_import,omitempty"`
}

type ImportWarehouseItemRequest struct {
	CreatorID string          `json:"creator_id"`
	FilePath  string          `json:"file_path"`
	Title     string          `json:"title"`
	Platform  domain.Platform `json:"platform,omitempty"`
}

type CreateCredentialRequest struct {
	Label      string          `json:"label"`
	Platform   domain.Platform `json:"platform"`
	CookiePath string          `json:"cookie_path"`
	IsDefault  bool            `json:"is_default,omitempty"`
}

type UpdateCredentialRequest struct {
	Label      *string `json:"label,omitempty"`
	CookiePath *string `json:"cookie_path,omitempty"`
	IsDefault  *bool   `json:"is_default,omitempty"`
}

type UpdateAppSettingsRequest struct {
	LibraryPath          *string `json:"library_path,omitempty"`
	DefaultQuality       *string `json:"default_quality,omitempty"`
	SyncIntervalSeconds  *int    `json:"sync_interval_seconds,omitempty"`
	Theme                *string `json:"theme,omitempty"`
	FirstRunCompleted    *bool   `json:"first_run_completed,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
	BassBoostPreset      *string `json:"bass_boost_preset,omitempty"`
	BassBoostCustomGain  *int    `json:"bass_boost_custom_gain,omitempty"`
}

// SearchRequest parameterizes the search commands. CreatorID narrows scope
// where supported; Limit caps hits (backend default applies when 0).
type SearchRequest struct {
	Query     string `json:"query"`
	CreatorID string `json:"creator_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
