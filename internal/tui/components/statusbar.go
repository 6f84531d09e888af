package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/stash/internal/ops"
	"github.com/mmcdole/stash/internal/tui/styles"
)

// StatusBar is the single-line footer: transient messages on the left,
// in-flight operation counts on the right.
type StatusBar struct {
	width   int
	message string
	isError bool
}

func NewStatusBar() StatusBar {
	return StatusBar{}
}

func (s *StatusBar) SetWidth(width int) { s.width = width }

func (s *StatusBar) SetMessage(message string, isError bool) {
	s.message = message
	s.isError = isError
}

func (s *StatusBar) ClearMessage() {
	s.message = ""
	s.isError = false
}

// View renders the bar from the current operation snapshot.
func (s *StatusBar) View(operations map[ops.Key]ops.Operation, helpHint string) string {
	left := helpHint
	if s.message != "" {
		if s.isError {
			left = styles.ErrorStyle.Render(s.message)
		} else {
			left = s.message
		}
	}

	right := opsSummary(operations)
	pad := s.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	return styles.StatusBarStyle.Width(s.width).
		Render(left + strings.Repeat(" ", pad) + right)
}

// opsSummary compacts the operation snapshot into "2 syncing  1 downloading".
func opsSummary(operations map[ops.Key]ops.Operation) string {
	counts := make(map[ops.Kind]int)
	for key := range operations {
		counts[key.Kind]++
	}
	var parts []string
	if n := counts[ops.KindSync]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d syncing", n))
	}
	if n := counts[ops.KindDownload]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d downloading", n))
	}
	if n := counts[ops.KindMetadata]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d fetching metadata", n))
	}
	return strings.Join(parts, "  ")
}
