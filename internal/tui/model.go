// Package tui is the terminal browser for one resource collection.
package tui

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ppiankov/aorta/internal/models"
)

// mode represents the current UI interaction mode.
type mode int

const (
	modeNormal mode = iota
	modeSearch
)

const defaultTableHeight = 15

// Loader fetches the stored content of one resource.
type Loader func(id string) ([]byte, error)

// Lister fetches the listing of the collection again.
type Lister func() ([]models.Entry, error)

// entriesMsg carries the result of a Lister call.
type entriesMsg struct {
	entries []models.Entry
	err     error
}

// contentMsg carries the result of a Loader call.
type contentMsg struct {
	id      string
	content string
	err     error
}

// Model is the top-level Bubble Tea model for the browse TUI.
type Model struct {
	// Data (replaced on reload)
	resourceType models.ResourceType
	allEntries   []models.Entry
	load         Loader
	list         Lister
	keys         keyMap

	// UI state
	table           table.Model
	searchInput     textinput.Model
	filteredEntries []models.Entry
	filters         filterState
	sortBy          sortField
	mode            mode
	width           int
	height          int
	statusMsg       string
	contentID       string
	content         string
	// clipboard is captured here for testing instead of writing to stdout
	clipboard string
}

// New creates a new TUI model over a listing. load may be nil, in which
// case entries cannot be opened; list may be nil, in which case the
// listing cannot be reloaded.
func New(t models.ResourceType, entries []models.Entry, load Loader, list Lister) Model {
	all := make([]models.Entry, len(entries))
	copy(all, entries)

	sortEntries(all, sortByID)
	tbl := newTable(buildRows(all), defaultTableHeight)

	ti := textinput.New()
	ti.Placeholder = "search..."
	ti.CharLimit = 64

	return Model{
		resourceType:    t,
		allEntries:      all,
		load:            load,
		list:            list,
		keys:            newKeyMap(list != nil),
		filteredEntries: all,
		table:           tbl,
		searchInput:     ti,
		sortBy:          sortByID,
		mode:            modeNormal,
		width:           80,
		height:          24,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		tableH := msg.Height - headerHeight - detailHeight - 3
		if tableH < 3 {
			tableH = 3
		}
		m.table.SetHeight(tableH)
		return m, nil

	case entriesMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Reload failed: %v", msg.err)
			return m, nil
		}
		m.allEntries = msg.entries
		m.rebuildTable()
		if !containsID(m.allEntries, m.contentID) {
			m.contentID, m.content = "", ""
		}
		m.statusMsg = fmt.Sprintf("Reloaded %d %s", len(m.allEntries), m.resourceType.Dir())
		return m, nil

	case contentMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Load failed: %v", msg.err)
			return m, nil
		}
		m.contentID = msg.id
		m.content = msg.content
		m.statusMsg = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	switch m.mode {
	case modeSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	default:
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeSearch {
		return m.handleSearchKey(msg)
	}
	return m.handleNormalKey(msg)
}

func (m Model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.searchInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Sort):
		m.sortBy = (m.sortBy + 1) % sortField(sortFieldCount)
		m.rebuildTable()
		m.statusMsg = fmt.Sprintf("Sort: %s", sortFieldName(m.sortBy))
		return m, nil
	case key.Matches(msg, m.keys.Open):
		cmd := m.openSelected()
		return m, cmd
	case key.Matches(msg, m.keys.Reload):
		m.statusMsg = "Reloading..."
		return m, reloadCmd(m.list)
	case key.Matches(msg, m.keys.Copy):
		m.copySelectedID()
		return m, nil
	case key.Matches(msg, m.keys.ClearFilter):
		m.filters = filterState{}
		m.statusMsg = ""
		m.rebuildTable()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filters.SearchText = m.searchInput.Value()
		m.mode = modeNormal
		m.searchInput.Blur()
		m.rebuildTable()
		return m, nil
	case "esc":
		m.mode = modeNormal
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m *Model) rebuildTable() {
	filtered := applyFilters(m.allEntries, m.filters)
	sortEntries(filtered, m.sortBy)
	m.filteredEntries = filtered
	m.table.SetRows(buildRows(filtered))
}

func (m *Model) selectedEntry() *models.Entry {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.filteredEntries) {
		return nil
	}
	return &m.filteredEntries[cursor]
}

// openSelected returns a command loading the selected entry's content.
func (m *Model) openSelected() tea.Cmd {
	entry := m.selectedEntry()
	if entry == nil {
		m.statusMsg = "Nothing selected"
		return nil
	}
	if m.load == nil {
		m.statusMsg = "Content not available"
		return nil
	}

	id, load := entry.ID, m.load
	m.statusMsg = "Loading " + id + "..."
	return func() tea.Msg {
		data, err := load(id)
		return contentMsg{id: id, content: string(data), err: err}
	}
}

func reloadCmd(list Lister) tea.Cmd {
	return func() tea.Msg {
		entries, err := list()
		if err != nil {
			return entriesMsg{err: err}
		}
		all := make([]models.Entry, len(entries))
		copy(all, entries)
		return entriesMsg{entries: all}
	}
}

func containsID(entries []models.Entry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// copySelectedID writes the selected id to clipboard via OSC 52.
func (m *Model) copySelectedID() {
	entry := m.selectedEntry()
	if entry == nil {
		m.statusMsg = "Nothing to copy"
		return
	}
	m.clipboard = entry.ID
	m.statusMsg = "Copied!"
	// OSC 52 clipboard escape: works in most modern terminals
	fmt.Printf("\033]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(entry.ID)))
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(renderHeader(m.resourceType, len(m.allEntries), len(m.filteredEntries), m.filters.SearchText, m.width))
	b.WriteString("\n")

	// Search bar overlay
	if m.mode == modeSearch {
		b.WriteString(styleSearchPrompt.Render("/ "))
		b.WriteString(m.searchInput.View())
		b.WriteString("\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	selected := m.selectedEntry()
	content := ""
	if selected != nil && selected.ID == m.contentID {
		content = m.content
	}
	b.WriteString(renderDetail(selected, content, m.width))
	b.WriteString("\n")

	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderFooter() string {
	left := m.keys.hints()
	right := fmt.Sprintf("%d/%d %s", len(m.filteredEntries), len(m.allEntries), m.resourceType.Dir())

	if m.statusMsg != "" {
		status := m.statusMsg
		if strings.Contains(status, "failed:") {
			status = styleError.Render(status)
		}
		right = status + "  " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return styleFooter.Render(left + strings.Repeat(" ", gap) + right)
}

// Run starts the Bubble Tea program. Called from the browse command.
func Run(t models.ResourceType, entries []models.Entry, load Loader, list Lister) error {
	m := New(t, entries, load, list)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
