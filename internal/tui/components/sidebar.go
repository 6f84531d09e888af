package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/tui/styles"
)

// BorderSize is the border overhead of a panel
const BorderSize = 2

// Sidebar lists creators and supports a fuzzy quick-filter.
type Sidebar struct {
	creators []domain.Creator
	syncing  map[string]bool

	filter      string
	filteredIdx []int // indexes into creators; nil when no filter active

	cursor       int
	offset       int
	width        int
	height       int
	focused      bool
	spinnerFrame int
}

// NewSidebar creates an empty sidebar.
func NewSidebar() Sidebar {
	return Sidebar{syncing: make(map[string]bool)}
}

// SetCreators replaces the creator list, keeping the cursor in range.
func (s *Sidebar) SetCreators(creators []domain.Creator) {
	s.creators = creators
	s.applyFilter()
}

// SetSyncing flags creators with a sync in flight, for the row spinner.
func (s *Sidebar) SetSyncing(syncing map[string]bool) {
	s.syncing = syncing
}

// SetFilter applies a fuzzy quick-filter over creator names.
func (s *Sidebar) SetFilter(query string) {
	s.filter = query
	s.applyFilter()
	s.cursor = 0
	s.offset = 0
}

func (s *Sidebar) applyFilter() {
	if s.filter == "" {
		s.filteredIdx = nil
		s.clampCursor()
		return
	}
	names := make([]string, len(s.creators))
	for i, c := range s.creators {
		names[i] = strings.ToLower(c.Name)
	}
	matches := fuzzy.Find(strings.ToLower(s.filter), names)
	s.filteredIdx = make([]int, len(matches))
	for i, match := range matches {
		s.filteredIdx[i] = match.Index
	}
	s.clampCursor()
}

// visible returns the creators currently listed, post-filter.
func (s *Sidebar) visible() []domain.Creator {
	if s.filteredIdx == nil {
		return s.creators
	}
	out := make([]domain.Creator, len(s.filteredIdx))
	for i, idx := range s.filteredIdx {
		out[i] = s.creators[idx]
	}
	return out
}

func (s *Sidebar) clampCursor() {
	n := len(s.visible())
	if s.cursor >= n {
		s.cursor = n - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.offset > s.cursor {
		s.offset = s.cursor
	}
}

// Selected returns the creator under the cursor.
func (s *Sidebar) Selected() *domain.Creator {
	visible := s.visible()
	if s.cursor < 0 || s.cursor >= len(visible) {
		return nil
	}
	c := visible[s.cursor]
	return &c
}

func (s *Sidebar) CursorUp() {
	if s.cursor > 0 {
		s.cursor--
	}
	if s.cursor < s.offset {
		s.offset = s.cursor
	}
}

func (s *Sidebar) CursorDown() {
	if s.cursor < len(s.visible())-1 {
		s.cursor++
	}
	if s.cursor >= s.offset+s.pageSize() {
		s.offset = s.cursor - s.pageSize() + 1
	}
}

func (s *Sidebar) CursorTop() {
	s.cursor = 0
	s.offset = 0
}

func (s *Sidebar) CursorBottom() {
	s.cursor = len(s.visible()) - 1
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.cursor >= s.offset+s.pageSize() {
		s.offset = s.cursor - s.pageSize() + 1
	}
}

func (s *Sidebar) SetSize(width, height int) {
	s.width = width
	s.height = height
}

func (s *Sidebar) SetFocused(focused bool) { s.focused = focused }
func (s *Sidebar) IsFocused() bool         { return s.focused }

func (s *Sidebar) SetSpinnerFrame(frame int) { s.spinnerFrame = frame }

// pageSize is the number of creator rows that fit in the panel.
func (s *Sidebar) pageSize() int {
	// Border, title, and filter line.
	size := s.height - BorderSize - 2
	if size < 1 {
		size = 1
	}
	return size
}

// View renders the panel.
func (s *Sidebar) View() string {
	style := styles.InactiveBorder
	if s.focused {
		style = styles.ActiveBorder
	}

	var b strings.Builder
	b.WriteString(styles.AccentStyle.Bold(true).Render("Creators"))
	b.WriteString("\n")
	if s.filter != "" {
		b.WriteString(styles.DimStyle.Render("filter: " + s.filter))
	}
	b.WriteString("\n")

	visible := s.visible()
	end := s.offset + s.pageSize()
	if end > len(visible) {
		end = len(visible)
	}
	innerWidth := s.width - BorderSize - 2
	for i := s.offset; i < end; i++ {
		creator := visible[i]
		label := creator.Name
		if s.syncing[creator.ID] {
			label = fmt.Sprintf("%s %s", styles.SpinnerFrames[s.spinnerFrame%len(styles.SpinnerFrames)], label)
		}
		label = truncate(label, innerWidth)
		if i == s.cursor {
			b.WriteString(styles.SelectedItemStyle.Render(label))
		} else {
			b.WriteString(styles.NormalItemStyle.Render(label))
		}
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	if len(visible) == 0 {
		b.WriteString(styles.DimStyle.Render("no creators"))
	}

	frameW, frameH := style.GetFrameSize()
	return style.
		Width(s.width - frameW).
		Height(s.height - frameH).
		Render(b.String())
}

// truncate shortens a string to fit the given cell width.
func truncate(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(text) <= width {
		return text
	}
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}
