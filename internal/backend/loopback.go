package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
)

// Loopback is the in-process gateway.Invoker over the service. Params and
// results go through a JSON round trip so loopback and remote modes exercise
// identical wire shapes.
type Loopback struct {
	svc *Service
}

func NewLoopback(svc *Service) *Loopback {
	return &Loopback{svc: svc}
}

func (l *Loopback) Invoke(ctx context.Context, command string, params any, result any) error {
	out, err := l.dispatch(ctx, command, params)
	if err != nil {
		return commandError(command, err)
	}
	if result == nil {
		return nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return commandError(command, err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return commandError(command, err)
	}
	return nil
}

// commandError maps service errors onto the gateway error contract.
func commandError(command string, err error) *gateway.Error {
	code := gateway.CodeInternal
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = gateway.CodeNotFound
	case errors.Is(err, domain.ErrValidation):
		code = gateway.CodeValidation
	case errors.Is(err, domain.ErrConflict):
		code = gateway.CodeConflict
	}
	return &gateway.Error{Command: command, Code: code, Message: err.Error()}
}

func decode[T any](params any) (T, error) {
	var req T
	if params == nil {
		return req, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	return req, nil
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

type updateCreatorParams struct {
	ID string `json:"id"`
	gateway.UpdateCreatorRequest
}

type updateSourceParams struct {
	ID string `json:"id"`
	gateway.UpdateSourceRequest
}

type updateFeedItemParams struct {
	ID string `json:"id"`
	gateway.UpdateFeedItemRequest
}

type updateCredentialParams struct {
	ID string `json:"id"`
	gateway.UpdateCredentialRequest
}

func (l *Loopback) dispatch(ctx context.Context, command string, params any) (any, error) {
	switch command {
	case gateway.CmdGetCreators:
		return l.svc.Creators(ctx)
	case gateway.CmdGetCreator:
		p, err := decode[idParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.Creator(ctx, p.ID)
	case gateway.CmdCreateCreator:
		p, err := decode[gateway.CreateCreatorRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.CreateCreator(ctx, p)
	case gateway.CmdUpdateCreator:
		p, err := decode[updateCreatorParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.UpdateCreator(ctx, p.ID, p.UpdateCreatorRequest)
	case gateway.CmdDeleteCreator:
		p, err := decode[idParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.DeleteCreator(ctx, p.ID)

	case gateway.CmdGetSources:
		p, err := decode[creatorParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.Sources(ctx, p.CreatorID)
	case gateway.CmdCreateSource:
		p, err := decode[gateway.CreateSourceRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.CreateSource(ctx, p)
	case gateway.CmdUpdateSource:
		p, err := decode[updateSourceParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.UpdateSource(ctx, p.ID, p.UpdateSourceRequest)
	case gateway.CmdDeleteSource:
		p, err := decode[idParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.DeleteSource(ctx, p.ID)

	case gateway.CmdGetFeedItems:
		p, err := decode[struct {
			SourceID string `json:"source_id"`
		}](params)
		if err != nil {
			return nil, err
		}
		return l.svc.FeedItems(ctx, p.SourceID)
	case gateway.CmdGetFeedItemsByCreator:
		p, err := decode[creatorParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.FeedItemsByCreator(ctx, p.CreatorID)
	case gateway.CmdCreateFeedItem:
		p, err := decode[gateway.CreateFeedItemRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.CreateFeedItem(ctx, p)
	case gateway.CmdUpdateFeedItem:
		p, err := decode[updateFeedItemParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.UpdateFeedItem(ctx, p.ID, p.UpdateFeedItemRequest)
	case gateway.CmdGetFeedItemCounts:
		p, err := decode[creatorParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.FeedItemCounts(ctx, p.CreatorID)

	case gateway.CmdSyncSource:
		p, err := decode[idParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.SyncSource(ctx, p.ID)
	case gateway.CmdSyncCreator:
		p, err := decode[creatorParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.SyncCreator(ctx, p.CreatorID)
	case gateway.CmdSyncAll:
		return nil, l.svc.SyncAll(ctx)

	case gateway.CmdDownloadItems:
		p, err := decode[idsParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.DownloadItems(ctx, p.IDs)
	case gateway.CmdCancelDownload:
		p, err := decode[idParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.CancelDownload(ctx, p.ID)

	case gateway.CmdFetchMetadata:
		p, err := decode[idsParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.FetchMetadata(ctx, p.IDs)
	case gateway.CmdGetIncompleteMetadata:
		p, err := decode[struct {
			CreatorID string `json:"creator_id"`
			Limit     int    `json:"limit"`
		}](params)
		if err != nil {
			return nil, err
		}
		return l.svc.IncompleteMetadata(ctx, p.CreatorID, p.Limit)
	case gateway.CmdPauseMetadataWorker:
		return nil, l.svc.PauseMetadataWorker(ctx)
	case gateway.CmdResumeMetadataWorker:
		return nil, l.svc.ResumeMetadataWorker(ctx)

	case gateway.CmdGetWarehouseItems:
		p, err := decode[creatorParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.WarehouseItems(ctx, p.CreatorID)
	case gateway.CmdCreateWarehouseItem:
		p, err := decode[gateway.CreateWarehouseItemRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.CreateWarehouseItem(ctx, p)
	case gateway.CmdDeleteWarehouseItem:
		p, err := decode[idParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.DeleteWarehouseItem(ctx, p.ID)
	case gateway.CmdImportWarehouseItem:
		p, err := decode[gateway.ImportWarehouseItemRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.ImportWarehouseItem(ctx, p)

	case gateway.CmdSearchFeedItems:
		p, err := decode[gateway.SearchRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.SearchFeedItems(ctx, p)
	case gateway.CmdSearchWarehouseItems:
		p, err := decode[gateway.SearchRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.SearchWarehouseItems(ctx, p)
	case gateway.CmdSearchCreators:
		p, err := decode[gateway.SearchRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.SearchCreators(ctx, p)
	case gateway.CmdSearchGlobal:
		p, err := decode[gateway.SearchRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.SearchGlobal(ctx, p)

	case gateway.CmdGetAppSettings:
		return l.svc.AppSettings(ctx)
	case gateway.CmdUpdateAppSettings:
		p, err := decode[gateway.UpdateAppSettingsRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.UpdateAppSettings(ctx, p)

	case gateway.CmdGetCredentials:
		p, err := decode[struct {
			Platform domain.Platform `json:"platform"`
		}](params)
		if err != nil {
			return nil, err
		}
		return l.svc.Credentials(ctx, p.Platform)
	case gateway.CmdCreateCredential:
		p, err := decode[gateway.CreateCredentialRequest](params)
		if err != nil {
			return nil, err
		}
		return l.svc.CreateCredential(ctx, p)
	case gateway.CmdUpdateCredential:
		p, err := decode[updateCredentialParams](params)
		if err != nil {
			return nil, err
		}
		return l.svc.UpdateCredential(ctx, p.ID, p.UpdateCredentialRequest)
	case gateway.CmdDeleteCredential:
		p, err := decode[idParams](params)
		if err != nil {
			return nil, err
		}
		return nil, l.svc.DeleteCredential(ctx, p.ID)
	}

	return nil, fmt.Errorf("%w: unknown command %q", domain.ErrValidation, command)
}
