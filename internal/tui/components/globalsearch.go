package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/stash/internal/search"
	"github.com/mmcdole/stash/internal/tui/styles"
)

// GlobalSearch is the search-everywhere overlay. It owns only the input
// widget; results come from the global search session's snapshot at render
// time.
type GlobalSearch struct {
	input   textinput.Model
	width   int
	visible bool
}

func NewGlobalSearch() GlobalSearch {
	input := textinput.New()
	input.Placeholder = "Search creators, feed, warehouse..."
	input.Prompt = "🔍 "
	input.CharLimit = 120
	return GlobalSearch{input: input}
}

func (g *GlobalSearch) Show() tea.Cmd {
	g.visible = true
	g.input.SetValue("")
	return g.input.Focus()
}

func (g *GlobalSearch) Hide() {
	g.visible = false
	g.input.Blur()
}

func (g *GlobalSearch) Visible() bool { return g.visible }

// Value returns the current query text.
func (g *GlobalSearch) Value() string { return g.input.Value() }

func (g *GlobalSearch) SetWidth(width int) {
	g.width = width
	g.input.Width = width - 12
}

// Update forwards key input to the text field and reports whether the query
// text changed.
func (g *GlobalSearch) Update(msg tea.Msg) (tea.Cmd, bool) {
	before := g.input.Value()
	var cmd tea.Cmd
	g.input, cmd = g.input.Update(msg)
	return cmd, g.input.Value() != before
}

// View renders the overlay with the given snapshot.
func (g *GlobalSearch) View(snap search.GlobalSnapshot) string {
	var b strings.Builder
	b.WriteString(styles.ModalTitleStyle.Render("Search Everywhere"))
	b.WriteString("\n")
	b.WriteString(g.input.View())
	b.WriteString("\n\n")

	switch {
	case snap.Query == "":
		b.WriteString(styles.DimStyle.Render("type to search"))
	case snap.InFlight:
		b.WriteString(styles.DimStyle.Render("searching..."))
	case snap.Failed:
		b.WriteString(styles.ErrorStyle.Render("search unavailable"))
	default:
		b.WriteString(renderResults(snap))
	}

	return styles.ModalStyle.Width(g.width - 4).Render(b.String())
}

func renderResults(snap search.GlobalSnapshot) string {
	total := len(snap.Results.Creators) + len(snap.Results.FeedItems) + len(snap.Results.WarehouseItems)
	if total == 0 {
		return styles.DimStyle.Render(fmt.Sprintf("no matches for %q", snap.Query))
	}

	var b strings.Builder
	if len(snap.Results.Creators) > 0 {
		b.WriteString(styles.SubtitleStyle.Render("Creators"))
		b.WriteString("\n")
		for _, hit := range snap.Results.Creators {
			b.WriteString("  " + hit.Name + "\n")
		}
	}
	if len(snap.Results.FeedItems) > 0 {
		b.WriteString(styles.SubtitleStyle.Render("Feed"))
		b.WriteString("\n")
		for _, hit := range snap.Results.FeedItems {
			b.WriteString("  " + hit.Title + "\n")
		}
	}
	if len(snap.Results.WarehouseItems) > 0 {
		b.WriteString(styles.SubtitleStyle.Render("Warehouse"))
		b.WriteString("\n")
		for _, hit := range snap.Results.WarehouseItems {
			b.WriteString("  " + hit.Title + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
