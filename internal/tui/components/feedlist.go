package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/tui/styles"
)

// FeedRow is one renderable feed line: the entity plus its in-flight
// operation state.
type FeedRow struct {
	Item            domain.FeedItem
	Downloading     bool
	Percent         float64
	Speed           string
	MetadataLoading bool
}

// FeedList is the scrollable feed pane. Only rows inside the window are
// rendered; the same window is what gets reported as visible for metadata
// backfill.
type FeedList struct {
	rows []FeedRow

	cursor       int
	offset       int
	width        int
	height       int
	focused      bool
	spinnerFrame int
}

func NewFeedList() FeedList {
	return FeedList{}
}

// SetRows replaces the rows, keeping cursor and window in range.
func (l *FeedList) SetRows(rows []FeedRow) {
	l.rows = rows
	if l.cursor >= len(rows) {
		l.cursor = len(rows) - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
	if l.offset > l.cursor {
		l.offset = l.cursor
	}
}

func (l *FeedList) Len() int { return len(l.rows) }

// SelectedID returns the feed item id under the cursor.
func (l *FeedList) SelectedID() string {
	if l.cursor < 0 || l.cursor >= len(l.rows) {
		return ""
	}
	return l.rows[l.cursor].Item.ID
}

// Selected returns the row under the cursor.
func (l *FeedList) Selected() (FeedRow, bool) {
	if l.cursor < 0 || l.cursor >= len(l.rows) {
		return FeedRow{}, false
	}
	return l.rows[l.cursor], true
}

// VisibleIDs returns the ids of the rows inside the current window, in row
// order. This is the visibility set the backfill scheduler consumes.
func (l *FeedList) VisibleIDs() []string {
	end := l.offset + l.pageSize()
	if end > len(l.rows) {
		end = len(l.rows)
	}
	ids := make([]string, 0, end-l.offset)
	for i := l.offset; i < end; i++ {
		ids = append(ids, l.rows[i].Item.ID)
	}
	return ids
}

func (l *FeedList) CursorUp() {
	if l.cursor > 0 {
		l.cursor--
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
}

func (l *FeedList) CursorDown() {
	if l.cursor < len(l.rows)-1 {
		l.cursor++
	}
	if l.cursor >= l.offset+l.pageSize() {
		l.offset = l.cursor - l.pageSize() + 1
	}
}

func (l *FeedList) CursorTop() {
	l.cursor = 0
	l.offset = 0
}

func (l *FeedList) CursorBottom() {
	l.cursor = len(l.rows) - 1
	if l.cursor < 0 {
		l.cursor = 0
	}
	if l.cursor >= l.offset+l.pageSize() {
		l.offset = l.cursor - l.pageSize() + 1
	}
}

func (l *FeedList) SetSize(width, height int) {
	l.width = width
	l.height = height
}

func (l *FeedList) SetFocused(focused bool) { l.focused = focused }
func (l *FeedList) IsFocused() bool         { return l.focused }

func (l *FeedList) SetSpinnerFrame(frame int) { l.spinnerFrame = frame }

func (l *FeedList) pageSize() int {
	// Border plus header row.
	size := l.height - BorderSize - 1
	if size < 1 {
		size = 1
	}
	return size
}

// View renders the pane.
func (l *FeedList) View() string {
	style := styles.InactiveBorder
	if l.focused {
		style = styles.ActiveBorder
	}

	var b strings.Builder
	b.WriteString(styles.AccentStyle.Bold(true).Render("Feed"))
	b.WriteString(styles.DimStyle.Render(fmt.Sprintf("  %d items", len(l.rows))))
	b.WriteString("\n")

	end := l.offset + l.pageSize()
	if end > len(l.rows) {
		end = len(l.rows)
	}
	innerWidth := l.width - BorderSize - 2
	for i := l.offset; i < end; i++ {
		b.WriteString(l.renderRow(l.rows[i], i == l.cursor, innerWidth))
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	if len(l.rows) == 0 {
		b.WriteString(styles.DimStyle.Render("nothing here yet, press s to sync"))
	}

	frameW, frameH := style.GetFrameSize()
	return style.
		Width(l.width - frameW).
		Height(l.height - frameH).
		Render(b.String())
}

func (l *FeedList) renderRow(row FeedRow, selected bool, width int) string {
	dot := statusDot(row)

	meta := row.Item.FormattedDuration()
	if row.Item.PublishedAt != nil {
		meta = row.Item.PublishedAt.Format("2006-01-02") + "  " + meta
	}
	if row.MetadataLoading {
		meta = styles.SpinnerFrames[l.spinnerFrame%len(styles.SpinnerFrames)] + " loading"
	}
	if row.Downloading {
		meta = fmt.Sprintf("%3.0f%% %s", row.Percent, row.Speed)
	}

	titleWidth := width - lipgloss.Width(meta) - 4
	title := truncate(row.Item.Title, titleWidth)
	pad := width - lipgloss.Width(title) - lipgloss.Width(meta) - 3
	if pad < 1 {
		pad = 1
	}
	line := fmt.Sprintf("%s %s%s%s", dot, title, strings.Repeat(" ", pad), styles.DimStyle.Render(meta))

	if selected {
		return styles.SelectedItemStyle.Render(line)
	}
	return styles.NormalItemStyle.Render(line)
}

func statusDot(row FeedRow) string {
	switch row.Item.DownloadStatus {
	case domain.StatusDownloading:
		return styles.DownloadingDot
	case domain.StatusDownloaded:
		return styles.DownloadedDot
	case domain.StatusDownloadError:
		return styles.ErrorMark
	default:
		return styles.NotDownloadedDot
	}
}
