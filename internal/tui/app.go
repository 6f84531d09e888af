// Package tui is the Bubble Tea front-end over the session engine. The model
// never mutates engine state directly; it issues commands and rebuilds its
// rows from fresh snapshots whenever the engine reports a change.
package tui

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/stash/internal/ops"
	"github.com/mmcdole/stash/internal/session"
	"github.com/mmcdole/stash/internal/state"
	"github.com/mmcdole/stash/internal/tui/components"
	"github.com/mmcdole/stash/internal/tui/styles"
)

// Pane identifies the focusable panes
type Pane int

const (
	PaneSidebar Pane = iota
	PaneContent
)

// ContentTab selects what the content pane shows
type ContentTab int

const (
	TabFeed ContentTab = iota
	TabWarehouse
)

// inputMode routes key input
type inputMode int

const (
	modeNormal inputMode = iota
	modeFilter       // inline search over the open library, or sidebar filter
	modeGlobalSearch // search-everywhere overlay
)

const (
	tickInterval   = 100 * time.Millisecond
	statusDuration = 4 * time.Second
	sidebarWidth   = 28
)

// Notifier forwards engine change callbacks into the Bubble Tea program.
// The engine starts before the program exists, so attachment is late.
type Notifier struct {
	mu sync.Mutex
	p  *tea.Program
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Attach binds the running program. Safe to call once the program is built.
func (n *Notifier) Attach(p *tea.Program) {
	n.mu.Lock()
	n.p = p
	n.mu.Unlock()
}

// Notify schedules a state-driven repaint. Drops silently before Attach.
func (n *Notifier) Notify() {
	n.mu.Lock()
	p := n.p
	n.mu.Unlock()
	if p != nil {
		p.Send(StateChangedMsg{})
	}
}

// Model is the root TUI model
type Model struct {
	app  *session.App
	keys KeyMap

	sidebar       components.Sidebar
	feedList      components.FeedList
	warehouseList components.WarehouseList
	globalSearch  components.GlobalSearch
	statusBar     components.StatusBar
	filterInput   textinput.Model

	session *session.Session

	width        int
	height       int
	pane         Pane
	tab          ContentTab
	mode         inputMode
	sortKey      state.SortKey
	spinnerFrame int
	showHelp     bool
}

// NewModel creates the root model over the app-level engine state.
func NewModel(app *session.App) Model {
	filter := textinput.New()
	filter.Prompt = "/ "
	filter.CharLimit = 120

	m := Model{
		app:           app,
		keys:          DefaultKeyMap(),
		sidebar:       components.NewSidebar(),
		feedList:      components.NewFeedList(),
		warehouseList: components.NewWarehouseList(),
		globalSearch:  components.NewGlobalSearch(),
		statusBar:     components.NewStatusBar(),
		filterInput:   filter,
		pane:          PaneSidebar,
		sortKey:       state.SortDateDesc,
	}
	m.sidebar.SetFocused(true)
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCreators(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return TickMsg{} })
}

// === Commands ===

func (m Model) loadCreators() tea.Cmd {
	return func() tea.Msg {
		if err := m.app.RefreshCreators(context.Background()); err != nil {
			return ErrMsg{Err: err, Context: "loading creators"}
		}
		return CreatorsLoadedMsg{}
	}
}

func (m Model) openCreator(creatorID string) tea.Cmd {
	return func() tea.Msg {
		s, err := m.app.Open(context.Background(), creatorID)
		if err != nil {
			return ErrMsg{Err: err, Context: "opening library"}
		}
		return SessionOpenedMsg{Session: s}
	}
}

func (m Model) syncAll() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		if err := s.SyncAllSources(context.Background()); err != nil {
			return ErrMsg{Err: err, Context: "sync"}
		}
		return StatusMsg{Message: "sync started"}
	}
}

func (m Model) download(id string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		if err := s.Download(context.Background(), []string{id}); err != nil {
			return ErrMsg{Err: err, Context: "download"}
		}
		return StatusMsg{Message: "download queued"}
	}
}

func (m Model) cancelDownload(id string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		if err := s.CancelDownload(context.Background(), id); err != nil {
			return ErrMsg{Err: err, Context: "cancel"}
		}
		return StatusMsg{Message: "download canceled"}
	}
}

func (m Model) deleteWarehouseItem(id string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		if err := s.DeleteWarehouseItem(context.Background(), id); err != nil {
			return ErrMsg{Err: err, Context: "delete"}
		}
		return StatusMsg{Message: "deleted"}
	}
}

func clearStatusLater() tea.Cmd {
	return tea.Tick(statusDuration, func(time.Time) tea.Msg { return ClearStatusMsg{} })
}

// === Update ===

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.reportVisibility()
		return m, nil

	case TickMsg:
		m.spinnerFrame++
		m.sidebar.SetSpinnerFrame(m.spinnerFrame)
		m.feedList.SetSpinnerFrame(m.spinnerFrame)
		return m, tick()

	case CreatorsLoadedMsg:
		m.sidebar.SetCreators(m.app.Creators.Snapshot())
		// Auto-open the first library so the app is never empty-paned.
		if m.session == nil {
			if creator := m.sidebar.Selected(); creator != nil {
				return m, m.openCreator(creator.ID)
			}
		}
		return m, nil

	case SessionOpenedMsg:
		if m.session != nil {
			m.session.Close()
		}
		m.session = msg.Session
		m.refreshRows()
		m.reportVisibility()
		return m, nil

	case StateChangedMsg:
		m.sidebar.SetCreators(m.app.Creators.Snapshot())
		m.refreshRows()
		return m, nil

	case ErrMsg:
		m.statusBar.SetMessage(msg.Error(), true)
		return m, clearStatusLater()

	case StatusMsg:
		m.statusBar.SetMessage(msg.Message, msg.IsError)
		return m, clearStatusLater()

	case ClearStatusMsg:
		m.statusBar.ClearMessage()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeGlobalSearch:
		return m.handleGlobalSearchKey(msg)
	case modeFilter:
		return m.handleFilterKey(msg)
	}
	return m.handleNormalKey(msg)
}

func (m Model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.keys
	switch {
	case key.Matches(msg, keys.Quit):
		if m.session != nil {
			m.session.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, keys.NextPane):
		if m.pane == PaneSidebar {
			m.setPane(PaneContent)
		} else {
			m.setPane(PaneSidebar)
		}
		return m, nil

	case key.Matches(msg, keys.Tab):
		if m.tab == TabFeed {
			m.tab = TabWarehouse
		} else {
			m.tab = TabFeed
		}
		m.setPane(PaneContent)
		m.reportVisibility()
		return m, nil

	case key.Matches(msg, keys.Up):
		m.moveCursor(-1)
		return m, nil

	case key.Matches(msg, keys.Down):
		m.moveCursor(1)
		return m, nil

	case key.Matches(msg, keys.Top):
		m.moveCursorEdge(true)
		return m, nil

	case key.Matches(msg, keys.Bottom):
		m.moveCursorEdge(false)
		return m, nil

	case key.Matches(msg, keys.Select):
		if m.pane == PaneSidebar {
			if creator := m.sidebar.Selected(); creator != nil {
				if m.session == nil || m.session.CreatorID() != creator.ID {
					return m, m.openCreator(creator.ID)
				}
				m.setPane(PaneContent)
			}
		}
		return m, nil

	case key.Matches(msg, keys.Sync):
		if m.session != nil {
			return m, m.syncAll()
		}
		return m, nil

	case key.Matches(msg, keys.Download):
		if m.session != nil && m.pane == PaneContent && m.tab == TabFeed {
			if id := m.feedList.SelectedID(); id != "" {
				return m, m.download(id)
			}
		}
		return m, nil

	case key.Matches(msg, keys.Cancel):
		if m.session != nil && m.pane == PaneContent && m.tab == TabFeed {
			if id := m.feedList.SelectedID(); id != "" {
				return m, m.cancelDownload(id)
			}
		}
		return m, nil

	case key.Matches(msg, keys.Delete):
		if m.session != nil && m.pane == PaneContent && m.tab == TabWarehouse {
			if id := m.warehouseList.SelectedID(); id != "" {
				return m, m.deleteWarehouseItem(id)
			}
		}
		return m, nil

	case key.Matches(msg, keys.SortMode):
		m.sortKey = nextSortKey(m.sortKey)
		m.refreshRows()
		return m, nil

	case key.Matches(msg, keys.Filter):
		m.mode = modeFilter
		m.filterInput.SetValue("")
		return m, m.filterInput.Focus()

	case key.Matches(msg, keys.Search):
		m.mode = modeGlobalSearch
		return m, m.globalSearch.Show()

	case key.Matches(msg, keys.Back):
		// Esc drops any active library filter.
		if m.session != nil {
			m.session.Search.SetQuery("")
			m.refreshRows()
		}
		m.sidebar.SetFilter("")
		return m, nil
	}
	return m, nil
}

// handleFilterKey routes keystrokes while the inline filter input is open.
// Every change feeds the debounced search session; the views filter by
// substring until the backend id-set resolves.
func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.filterInput.Blur()
		if m.pane == PaneSidebar {
			m.sidebar.SetFilter("")
		} else if m.session != nil {
			m.session.Search.SetQuery("")
			m.refreshRows()
		}
		return m, nil
	case "enter":
		m.mode = modeNormal
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	before := m.filterInput.Value()
	m.filterInput, cmd = m.filterInput.Update(msg)
	if m.filterInput.Value() != before {
		if m.pane == PaneSidebar {
			m.sidebar.SetFilter(m.filterInput.Value())
		} else if m.session != nil {
			m.session.Search.SetQuery(m.filterInput.Value())
			m.refreshRows()
		}
	}
	return m, cmd
}

func (m Model) handleGlobalSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.globalSearch.Hide()
		m.app.GlobalSearch.Clear()
		return m, nil
	}

	cmd, changed := m.globalSearch.Update(msg)
	if changed {
		m.app.GlobalSearch.SetQuery(m.globalSearch.Value())
	}
	return m, cmd
}

// === State refresh ===

// refreshRows rebuilds both content panes from engine snapshots.
func (m *Model) refreshRows() {
	if m.session == nil {
		return
	}

	items := m.session.FeedView(state.FeedFilter{}, m.sortKey)
	rows := make([]components.FeedRow, len(items))
	for i, item := range items {
		row := components.FeedRow{Item: item}
		if op, ok := m.session.Tracker.Get(item.ID, ops.KindDownload); ok {
			row.Downloading = true
			row.Percent = op.Percent
			row.Speed = op.Speed
		}
		row.MetadataLoading = m.session.MetadataLoading(item.ID) ||
			m.session.Tracker.InFlight(item.ID, ops.KindMetadata)
		rows[i] = row
	}
	m.feedList.SetRows(rows)
	m.warehouseList.SetItems(m.session.WarehouseView(state.WarehouseFilter{}, m.sortKey))

	syncing := make(map[string]bool)
	for opKey := range m.session.Tracker.Snapshot() {
		if opKey.Kind == ops.KindSync {
			syncing[m.session.CreatorID()] = true
		}
	}
	m.sidebar.SetSyncing(syncing)
	m.reportVisibility()
}

// reportVisibility tells the engine which feed rows are on screen, feeding
// the metadata backfill scheduler.
func (m *Model) reportVisibility() {
	if m.session == nil {
		return
	}
	if m.tab == TabFeed {
		m.session.SetVisibleFeedItems(m.feedList.VisibleIDs())
	} else {
		m.session.SetVisibleFeedItems(nil)
	}
}

func (m *Model) setPane(pane Pane) {
	m.pane = pane
	m.sidebar.SetFocused(pane == PaneSidebar)
	m.feedList.SetFocused(pane == PaneContent && m.tab == TabFeed)
	m.warehouseList.SetFocused(pane == PaneContent && m.tab == TabWarehouse)
}

func (m *Model) moveCursor(delta int) {
	switch {
	case m.pane == PaneSidebar:
		if delta < 0 {
			m.sidebar.CursorUp()
		} else {
			m.sidebar.CursorDown()
		}
	case m.tab == TabFeed:
		if delta < 0 {
			m.feedList.CursorUp()
		} else {
			m.feedList.CursorDown()
		}
		m.reportVisibility()
	default:
		if delta < 0 {
			m.warehouseList.CursorUp()
		} else {
			m.warehouseList.CursorDown()
		}
	}
}

func (m *Model) moveCursorEdge(top bool) {
	switch {
	case m.pane == PaneSidebar:
		if top {
			m.sidebar.CursorTop()
		} else {
			m.sidebar.CursorBottom()
		}
	case m.tab == TabFeed:
		if top {
			m.feedList.CursorTop()
		} else {
			m.feedList.CursorBottom()
		}
		m.reportVisibility()
	default:
		if top {
			m.warehouseList.CursorTop()
		} else {
			m.warehouseList.CursorBottom()
		}
	}
}

func nextSortKey(current state.SortKey) state.SortKey {
	switch current {
	case state.SortDateDesc:
		return state.SortDateAsc
	case state.SortDateAsc:
		return state.SortTitle
	case state.SortTitle:
		return state.SortSize
	default:
		return state.SortDateDesc
	}
}

// === Layout and view ===

func (m *Model) layout() {
	contentWidth := m.width - sidebarWidth
	paneHeight := m.height - 1 // status bar
	m.sidebar.SetSize(sidebarWidth, paneHeight)
	m.feedList.SetSize(contentWidth, paneHeight)
	m.warehouseList.SetSize(contentWidth, paneHeight)
	m.globalSearch.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	m.filterInput.Width = contentWidth - 8
}

// View implements tea.Model
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var content string
	if m.tab == TabFeed {
		content = m.feedList.View()
	} else {
		content = m.warehouseList.View()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar.View(), content)

	var operations map[ops.Key]ops.Operation
	if m.session != nil {
		operations = m.session.Tracker.Snapshot()
	}
	footer := m.statusBar.View(operations, m.footerHint())

	screen := lipgloss.JoinVertical(lipgloss.Left, body, footer)

	if m.mode == modeGlobalSearch {
		overlay := m.globalSearch.View(m.app.GlobalSearch.Snapshot())
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, overlay)
	}
	if m.showHelp {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.helpView())
	}
	if m.mode == modeFilter {
		// Replace the footer with the live filter input.
		return lipgloss.JoinVertical(lipgloss.Left, body, m.filterInput.View())
	}
	return screen
}

func (m Model) footerHint() string {
	return "? help  / search  ctrl+k everywhere  s sync  d download  q quit"
}

func (m Model) helpView() string {
	lines := []string{
		styles.ModalTitleStyle.Render("Keys"),
		"j/k, ↑/↓     move",
		"g/G          top/bottom",
		"tab          switch pane",
		"w            feed/warehouse",
		"enter        open creator",
		"s            sync all sources",
		"d            download item",
		"c            cancel download",
		"x            delete warehouse item",
		"o            cycle sort order",
		"/            filter current view",
		"ctrl+k       search everywhere",
		"esc          clear filter",
		"q            quit",
	}
	return styles.ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
