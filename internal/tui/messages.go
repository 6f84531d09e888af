package tui

import (
	"github.com/mmcdole/stash/internal/session"
)

// Message types for the TUI

// ErrMsg represents an error surfaced to the status bar
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// StateChangedMsg signals that engine state changed and the view should be
// rebuilt from fresh snapshots. Coalesced by Bubble Tea's render loop.
type StateChangedMsg struct{}

// CreatorsLoadedMsg signals that the creator list has been loaded
type CreatorsLoadedMsg struct{}

// SessionOpenedMsg carries a freshly hydrated creator session
type SessionOpenedMsg struct {
	Session *session.Session
}

// StatusMsg sets a temporary status bar message
type StatusMsg struct {
	Message string
	IsError bool
}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct{}

// TickMsg drives spinner animation while operations are in flight
type TickMsg struct{}
