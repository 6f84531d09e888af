package gateway

import (
	"context"

	"github.com/mmcdole/stash/internal/domain"
)

// Client is the typed command surface over an Invoker. Errors are surfaced
// to the caller untouched; callers decide whether to notify, refetch, or
// degrade.
type Client struct {
	inv Invoker
}

// NewClient creates a client over the given transport.
func NewClient(inv Invoker) *Client {
	return &Client{inv: inv}
}

type idParams struct {
	ID string `json:"id"`
}

type creatorParams struct {
	CreatorID string `json:"creator_id"`
}

type idsParams struct {
	IDs []string `json:"ids"`
}

// === Creators ===

func (c *Client) Creators(ctx context.Context) ([]domain.Creator, error) {
	var out []domain.Creator
	err := c.inv.Invoke(ctx, CmdGetCreators, nil, &out)
	return out, err
}

func (c *Client) Creator(ctx context.Context, id string) (domain.Creator, error) {
	var out domain.Creator
	err := c.inv.Invoke(ctx, CmdGetCreator, idParams{ID: id}, &out)
	return out, err
}

func (c *Client) CreateCreator(ctx context.Context, req CreateCreatorRequest) (domain.Creator, error) {
	var out domain.Creator
	err := c.inv.Invoke(ctx, CmdCreateCreator, req, &out)
	return out, err
}

func (c *Client) UpdateCreator(ctx context.Context, id string, req UpdateCreatorRequest) (domain.Creator, error) {
	var out domain.Creator
	err := c.inv.Invoke(ctx, CmdUpdateCreator, struct {
		ID string `json:"id"`
		UpdateCreatorRequest
	}{id, req}, &out)
	return out, err
}

func (c *Client) DeleteCreator(ctx context.Context, id string) error {
	return c.inv.Invoke(ctx, CmdDeleteCreator, idParams{ID: id}, nil)
}

// === Sources ===

func (c *Client) Sources(ctx context.Context, creatorID string) ([]domain.Source, error) {
	var out []domain.Source
	err := c.inv.Invoke(ctx, CmdGetSources, creatorParams{CreatorID: creatorID}, &out)
	return out, err
}

func (c *Client) CreateSource(ctx context.Context, req CreateSourceRequest) (domain.Source, error) {
	var out domain.Source
	err := c.inv.Invoke(ctx, CmdCreateSource, req, &out)
	return out, err
}

func (c *Client) UpdateSource(ctx context.Context, id string, req UpdateSourceRequest) (domain.Source, error) {
	var out domain.Source
	err := c.inv.Invoke(ctx, CmdUpdateSource, struct {
		ID string `json:"id"`
		UpdateSourceRequest
	}{id, req}, &out)
	return out, err
}

func (c *Client) DeleteSource(ctx context.Context, id string) error {
	return c.inv.Invoke(ctx, CmdDeleteSource, idParams{ID: id}, nil)
}

// === Feed items ===

func (c *Client) FeedItems(ctx context.Context, sourceID string) ([]domain.FeedItem, error) {
	var out []domain.FeedItem
	err := c.inv.Invoke(ctx, CmdGetFeedItems, struct {
		SourceID string `json:"source_id"`
	}{sourceID}, &out)
	return out, err
}

func (c *Client) FeedItemsByCreator(ctx context.Context, creatorID string) ([]domain.FeedItem, error) {
	var out []domain.FeedItem
	err := c.inv.Invoke(ctx, CmdGetFeedItemsByCreator, creatorParams{CreatorID: creatorID}, &out)
	return out, err
}

func (c *Client) CreateFeedItem(ctx context.Context, req CreateFeedItemRequest) (domain.FeedItem, error) {
	var out domain.FeedItem
	err := c.inv.Invoke(ctx, CmdCreateFeedItem, req, &out)
	return out, err
}

func (c *Client) UpdateFeedItem(ctx context.Context, id string, req UpdateFeedItemRequest) (domain.FeedItem, error) {
	var out domain.FeedItem
	err := c.inv.Invoke(ctx, CmdUpdateFeedItem, struct {
		ID string `json:"id"`
		UpdateFeedItemRequest
	}{id, req}, &out)
	return out, err
}

func (c *Client) FeedItemCounts(ctx context.Context, creatorID string) (domain.FeedItemCounts, error) {
	var out domain.FeedItemCounts
	err := c.inv.Invoke(ctx, CmdGetFeedItemCounts, creatorParams{CreatorID: creatorID}, &out)
	return out, err
}

// === Sync ===

func (c *Client) SyncSource(ctx context.Context, sourceID string) error {
	return c.inv.Invoke(ctx, CmdSyncSource, idParams{ID: sourceID}, nil)
}

func (c *Client) SyncCreator(ctx context.Context, creatorID string) error {
	return c.inv.Invoke(ctx, CmdSyncCreator, creatorParams{CreatorID: creatorID}, nil)
}

func (c *Client) SyncAll(ctx context.Context) error {
	return c.inv.Invoke(ctx, CmdSyncAll, nil, nil)
}

// === Download ===

func (c *Client) DownloadItems(ctx context.Context, feedItemIDs []string) error {
	return c.inv.Invoke(ctx, CmdDownloadItems, idsParams{IDs: feedItemIDs}, nil)
}

func (c *Client) CancelDownload(ctx context.Context, feedItemID string) error {
	return c.inv.Invoke(ctx, CmdCancelDownload, idParams{ID: feedItemID}, nil)
}

// === Metadata ===

func (c *Client) FetchMetadata(ctx context.Context, feedItemIDs []string) error {
	return c.inv.Invoke(ctx, CmdFetchMetadata, idsParams{IDs: feedItemIDs}, nil)
}

func (c *Client) IncompleteMetadata(ctx context.Context, creatorID string, limit int) ([]string, error) {
	var out []string
	err := c.inv.Invoke(ctx, CmdGetIncompleteMetadata, struct {
		CreatorID string `json:"creator_id"`
		Limit     int    `json:"limit,omitempty"`
	}{creatorID, limit}, &out)
	return out, err
}

func (c *Client) PauseMetadataWorker(ctx context.Context) error {
	return c.inv.Invoke(ctx, CmdPauseMetadataWorker, nil, nil)
}

func (c *Client) ResumeMetadataWorker(ctx context.Context) error {
	return c.inv.Invoke(ctx, CmdResumeMetadataWorker, nil, nil)
}

// === Warehouse ===

func (c *Client) WarehouseItems(ctx context.Context, creatorID string) ([]domain.WarehouseItem, error) {
	var out []domain.WarehouseItem
	err := c.inv.Invoke(ctx, CmdGetWarehouseItems, creatorParams{CreatorID: creatorID}, &out)
	return out, err
}

func (c *Client) CreateWarehouseItem(ctx context.Context, req CreateWarehouseItemRequest) (domain.WarehouseItem, error) {
	var out domain.WarehouseItem
	err := c.inv.Invoke(ctx, CmdCreateWarehouseItem, req, &out)
	return out, err
}

func (c *Client) DeleteWarehouseItem(ctx context.Context, id string) error {
	return c.inv.Invoke(ctx, CmdDeleteWarehouseItem, idParams{ID: id}, nil)
}

func (c *Client) ImportWarehouseItem(ctx context.Context, req ImportWarehouseItemRequest) (domain.WarehouseItem, error) {
	var out domain.WarehouseItem
	err := c.inv.Invoke(ctx, CmdImportWarehouseItem, req, &out)
	return out, err
}

// === Search ===

func (c *Client) SearchFeedItems(ctx context.Context, req SearchRequest) ([]domain.RankedFeedItem, error) {
	var out []domain.RankedFeedItem
	err := c.inv.Invoke(ctx, CmdSearchFeedItems, req, &out)
	return out, err
}

func (c *Client) SearchWarehouseItems(ctx context.Context, req SearchRequest) ([]domain.RankedWarehouseItem, error) {
	var out []domain.RankedWarehouseItem
	err := c.inv.Invoke(ctx, CmdSearchWarehouseItems, req, &out)
	return out, err
}

func (c *Client) SearchCreators(ctx context.Context, req SearchRequest) ([]domain.RankedCreator, error) {
	var out []domain.RankedCreator
	err := c.inv.Invoke(ctx, CmdSearchCreators, req, &out)
	return out, err
}

func (c *Client) SearchGlobal(ctx context.Context, req SearchRequest) (domain.GlobalSearchResults, error) {
	var out domain.GlobalSearchResults
	err := c.inv.Invoke(ctx, CmdSearchGlobal, req, &out)
	return out, err
}

// === Settings ===

func (c *Client) AppSettings(ctx context.Context) (domain.AppSettings, error) {
	var out domain.AppSettings
	err := c.inv.Invoke(ctx, CmdGetAppSettings, nil, &out)
	return out, err
}

func (c *Client) UpdateAppSettings(ctx context.Context, req UpdateAppSettingsRequest) (domain.AppSettings, error) {
	var out domain.AppSettings
	err := c.inv.Invoke(ctx, CmdUpdateAppSettings, req, &out)
	return out, err
}

// === Credentials ===

func (c *Client) Credentials(ctx context.Context, platform domain.Platform) ([]domain.Credential, error) {
	var out []domain.Credential
	err := c.inv.Invoke(ctx, CmdGetCredentials, struct {
		Platform domain.Platform `json:"platform,omitempty"`
	}{platform}, &out)
	return out, err
}

func (c *Client) CreateCredential(ctx context.Context, req CreateCredentialRequest) (domain.Credential, error) {
	var out domain.Credential
	err := c.inv.Invoke(ctx, CmdCreateCredential, req, &out)
	return out, err
}

func (c *Client) UpdateCredential(ctx context.Context, id string, req UpdateCredentialRequest) (domain.Credential, error) {
	var out domain.Credential
	err := c.inv.Invoke(ctx, CmdUpdateCredential, struct {
		ID string `json:"id"`
		UpdateCredentialRequest
	}{id, req}, &out)
	return out, err
}

func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	return c.inv.Invoke(ctx, CmdDeleteCredential, idParams{ID: id}, nil)
}
