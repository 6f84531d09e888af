package session

import (
	"context"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
	"github.com/mmcdole/stash/internal/search"
	"github.com/mmcdole/stash/internal/state"
)

// App is the application-level state above any single creator library: the
// creator list, the cross-library search, and the factory for creator
// sessions.
type App struct {
	deps Deps

	Creators     *state.Collection[domain.Creator]
	GlobalSearch *search.GlobalSession
}

// NewApp creates the app-level state.
func NewApp(ctx context.Context, deps Deps) *App {
	a := &App{
		deps:     deps,
		Creators: state.NewCollection[domain.Creator](),
	}
	a.GlobalSearch = search.NewGlobalSession(ctx, deps.Client, search.Options{
		Quiet:    deps.SearchDebounce,
		Logger:   deps.Logger,
		OnUpdate: deps.OnChange,
	})
	return a
}

// Open starts a session for the creator and hydrates it.
func (a *App) Open(ctx context.Context, creatorID string) (*Session, error) {
	s := New(ctx, a.deps, creatorID)
	if err := s.Hydrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (a *App) notify() {
	if a.deps.OnChange != nil {
		a.deps.OnChange()
	}
}

// RefreshCreators refetches the creator list.
func (a *App) RefreshCreators(ctx context.Context) error {
	creators, err := a.deps.Client.Creators(ctx)
	if err != nil {
		return err
	}
	a.Creators.Replace(creators)
	a.notify()
	return nil
}

// CreateCreator adds a creator and applies it locally.
func (a *App) CreateCreator(ctx context.Context, req gateway.CreateCreatorRequest) (domain.Creator, error) {
	creator, err := a.deps.Client.CreateCreator(ctx, req)
	if err != nil {
		return domain.Creator{}, err
	}
	a.Creators.Upsert(creator)
	a.notify()
	return creator, nil
}

// RenameCreator updates a creator's name.
func (a *App) RenameCreator(ctx context.Context, id, name string) (domain.Creator, error) {
	creator, err := a.deps.Client.UpdateCreator(ctx, id, gateway.UpdateCreatorRequest{Name: &name})
	if err != nil {
		return domain.Creator{}, err
	}
	a.Creators.Upsert(creator)
	a.notify()
	return creator, nil
}

// DeleteCreator removes a creator optimistically; a backend failure restores
// the list by refetching.
func (a *App) DeleteCreator(ctx context.Context, id string) error {
	removed := a.Creators.Remove(id)
	if removed {
		a.notify()
	}
	if err := a.deps.Client.DeleteCreator(ctx, id); err != nil {
		if refErr := a.RefreshCreators(ctx); refErr != nil && a.deps.Logger != nil {
			a.deps.Logger.Error("failed to restore creators after delete error", "error", refErr)
		}
		return err
	}
	return nil
}

// Settings fetches the backend-persisted app settings.
func (a *App) Settings(ctx context.Context) (domain.AppSettings, error) {
	return a.deps.Client.AppSettings(ctx)
}

// UpdateSettings applies a partial settings update.
func (a *App) UpdateSettings(ctx context.Context, req gateway.UpdateAppSettingsRequest) (domain.AppSettings, error) {
	return a.deps.Client.UpdateAppSettings(ctx, req)
}

// Credentials lists stored credentials, optionally scoped to a platform.
func (a *App) Credentials(ctx context.Context, platform domain.Platform) ([]domain.Credential, error) {
	return a.deps.Client.Credentials(ctx, platform)
}

// SyncEverything asks the backend to sync every source in the library.
func (a *App) SyncEverything(ctx context.Context) error {
	return a.deps.Client.SyncAll(ctx)
}
