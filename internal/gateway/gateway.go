// Package gateway is the uniform call surface to the backend: every
// operation is a named command with a typed request and response. The
// gateway performs no retries; retry policy belongs to each caller.
package gateway

import (
	"context"
	"fmt"
)

// Invoker dispatches one named command to the backend and decodes the
// response into result (which may be nil for commands without a payload).
type Invoker interface {
	Invoke(ctx context.Context, command string, params any, result any) error
}

// Error is a backend-reported command failure.
type Error struct {
	Command string `json:"command"`
	Code    string `json:"code"` // "not_found", "validation", "internal", ...
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Command, e.Message, e.Code)
}

// Error codes reported by the backend.
const (
	CodeNotFound   = "not_found"
	CodeValidation = "validation"
	CodeConflict   = "conflict"
	CodeInternal   = "internal"
)

// Backend command names.
const (
	CmdGetCreators   = "get_creators"
	CmdGetCreator    = "get_creator"
	CmdCreateCreator = "create_creator"
	CmdUpdateCreator = "update_creator"
	CmdDeleteCreator = "delete_creator"

	CmdGetSources   = "get_sources"
	CmdCreateSource = "create_source"
	CmdUpdateSource = "update_source"
	CmdDeleteSource = "delete_source"

	CmdGetFeedItems          = "get_feed_items"
	CmdGetFeedItemsByCreator = "get_feed_items_by_creator"
	CmdCreateFeedItem        = "create_feed_item"
	CmdUpdateFeedItem        = "update_feed_item"
	CmdGetFeedItemCounts     = "get_feed_item_counts"

	CmdSyncSource  = "sync_source"
	CmdSyncCreator = "sync_creator"
	CmdSyncAll     = "sync_all"

	CmdDownloadItems  = "download_items"
	CmdCancelDownload = "cancel_download"

	CmdFetchMetadata         = "fetch_metadata"
	CmdGetIncompleteMetadata = "get_incomplete_metadata"
	CmdPauseMetadataWorker   = "pause_metadata_worker"
	CmdResumeMetadataWorker  = "resume_metadata_worker"

	CmdGetWarehouseItems   = "get_warehouse_items"
	CmdCreateWarehouseItem = "create_warehouse_item"
	CmdDeleteWarehouseItem = "delete_warehouse_item"
	CmdImportWarehouseItem = "import_warehouse_item"

	CmdSearchFeedItems      = "search_feed_items"
	CmdSearchWarehouseItems = "search_warehouse_items"
	CmdSearchCreators       = "search_creators"
	CmdSearchGlobal         = "search_global"

	CmdGetAppSettings    = "get_app_settings"
	CmdUpdateAppSettings = "update_app_settings"

	CmdGetCredentials   = "get_credentials"
	CmdCreateCredential = "create_credential"
	CmdUpdateCredential = "update_credential"
	CmdDeleteCredential = "delete_credential"
)
