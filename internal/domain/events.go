package domain

// Push event names emitted by the backend. Events for the same entity id and
// kind arrive in causal order (started before progress before the terminal
// event); no ordering holds across entity ids.
const (
	EventSyncStarted   = "sync_started"
	EventSyncCompleted = "sync_completed"
	EventSyncError     = "sync_error"

	EventDownloadStarted   = "download_started"
	EventDownloadProgress  = "download_progress"
	EventDownloadCompleted = "download_completed"
	EventDownloadError     = "download_error"

	EventMetadataUpdate = "metadata_update"
)

// SyncEvent is the payload for sync_started/sync_completed/sync_error.
type SyncEvent struct {
	SourceID string `json:"source_id"`
	NewItems int    `json:"new_items,omitempty"`
	Message  string `json:"message,omitempty"`
}

// DownloadEvent is the payload for the download_* events. Percent and Speed
// are set on progress, WarehouseItemID on completion, Error on failure.
type DownloadEvent struct {
	FeedItemID      string  `json:"feed_item_id"`
	Percent         float64 `json:"percent,omitempty"`
	Speed           string  `json:"speed,omitempty"`
	WarehouseItemID string  `json:"warehouse_item_id,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// MetadataStatus is the phase reported by a metadata_update event.
type MetadataStatus string

const (
	MetadataStarted   MetadataStatus = "started"
	MetadataCompleted MetadataStatus = "completed"
	MetadataError     MetadataStatus = "error"
)

// MetadataEvent is the payload for metadata_update.
type MetadataEvent struct {
	FeedItemID string         `json:"feed_item_id"`
	Status     MetadataStatus `json:"status"`
	Message    string         `json:"message,omitempty"`
}
