package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/tui/styles"
)

// WarehouseList is the scrollable downloaded-media pane.
type WarehouseList struct {
	items []domain.WarehouseItem

	cursor  int
	offset  int
	width   int
	height  int
	focused bool
}

func NewWarehouseList() WarehouseList {
	return WarehouseList{}
}

// SetItems replaces the items, keeping cursor and window in range.
func (l *WarehouseList) SetItems(items []domain.WarehouseItem) {
	l.items = items
	if l.cursor >= len(items) {
		l.cursor = len(items) - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
	if l.offset > l.cursor {
		l.offset = l.cursor
	}
}

func (l *WarehouseList) Len() int { return len(l.items) }

// SelectedID returns the warehouse item id under the cursor.
func (l *WarehouseList) SelectedID() string {
	if l.cursor < 0 || l.cursor >= len(l.items) {
		return ""
	}
	return l.items[l.cursor].ID
}

func (l *WarehouseList) CursorUp() {
	if l.cursor > 0 {
		l.cursor--
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
}

func (l *WarehouseList) CursorDown() {
	if l.cursor < len(l.items)-1 {
		l.cursor++
	}
	if l.cursor >= l.offset+l.pageSize() {
		l.offset = l.cursor - l.pageSize() + 1
	}
}

func (l *WarehouseList) CursorTop() {
	l.cursor = 0
	l.offset = 0
}

func (l *WarehouseList) CursorBottom() {
	l.cursor = len(l.items) - 1
	if l.cursor < 0 {
		l.cursor = 0
	}
	if l.cursor >= l.offset+l.pageSize() {
		l.offset = l.cursor - l.pageSize() + 1
	}
}

func (l *WarehouseList) SetSize(width, height int) {
	l.width = width
	l.height = height
}

func (l *WarehouseList) SetFocused(focused bool) { l.focused = focused }
func (l *WarehouseList) IsFocused() bool         { return l.focused }

func (l *WarehouseList) pageSize() int {
	size := l.height - BorderSize - 1
	if size < 1 {
		size = 1
	}
	return size
}

// View renders the pane.
func (l *WarehouseList) View() string {
	style := styles.InactiveBorder
	if l.focused {
		style = styles.ActiveBorder
	}

	var b strings.Builder
	b.WriteString(styles.AccentStyle.Bold(true).Render("Warehouse"))
	b.WriteString(styles.DimStyle.Render(fmt.Sprintf("  %d files", len(l.items))))
	b.WriteString("\n")

	end := l.offset + l.pageSize()
	if end > len(l.items) {
		end = len(l.items)
	}
	innerWidth := l.width - BorderSize - 2
	for i := l.offset; i < end; i++ {
		b.WriteString(l.renderRow(l.items[i], i == l.cursor, innerWidth))
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	if len(l.items) == 0 {
		b.WriteString(styles.DimStyle.Render("no downloaded media"))
	}

	frameW, frameH := style.GetFrameSize()
	return style.
		Width(l.width - frameW).
		Height(l.height - frameH).
		Render(b.String())
}

func (l *WarehouseList) renderRow(item domain.WarehouseItem, selected bool, width int) string {
	marker := " "
	if item.IsManualImport {
		marker = styles.DimStyle.Render("⇣")
	}

	meta := item.FormattedFileSize()
	if meta == "" {
		meta = item.ImportedAt.Format("2006-01-02")
	} else {
		meta = item.ImportedAt.Format("2006-01-02") + "  " + meta
	}

	titleWidth := width - lipgloss.Width(meta) - 4
	title := truncate(item.Title, titleWidth)
	pad := width - lipgloss.Width(title) - lipgloss.Width(meta) - 3
	if pad < 1 {
		pad = 1
	}
	line := fmt.Sprintf("%s %s%s%s", marker, title, strings.Repeat(" ", pad), styles.DimStyle.Render(meta))

	if selected {
		return styles.SelectedItemStyle.Render(line)
	}
	return styles.NormalItemStyle.Render(line)
}
