package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the application key bindings
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	NextPane key.Binding
	Tab      key.Binding
	Select   key.Binding
	Back     key.Binding

	Sync     key.Binding
	Download key.Binding
	Cancel   key.Binding
	Delete   key.Binding
	Filter   key.Binding
	Search   key.Binding
	SortMode key.Binding

	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		Top:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "top")),
		Bottom:   key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "bottom")),
		NextPane: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Tab:      key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "feed/warehouse")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),

		Sync:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync")),
		Download: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		Cancel:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel download")),
		Delete:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete")),
		Filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search library")),
		Search:   key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "search everywhere")),
		SortMode: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "sort order")),

		Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}
