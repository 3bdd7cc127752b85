package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/pathutil"

	tea "github.com/charmbracelet/bubbletea"
)

const pageSize = 10

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filterActive {
			return m, m.handleFilterKey(msg)
		}
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case dataLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.crawlMeta = msg.crawlMeta
		m.currentPath = msg.crawlMeta.RootPath
		m.showFolder(msg.entries, msg.rollup)

	case entriesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.showFolder(msg.entries, msg.rollup)

	case sentMsg:
		switch {
		case msg.err != nil && msg.count > 0:
			m.notice = fmt.Sprintf("Sent %d file(s) from %s, then failed: %v", msg.count, msg.path, msg.err)
		case msg.err != nil:
			m.notice = fmt.Sprintf("Could not send %s: %v", msg.path, msg.err)
		default:
			m.notice = fmt.Sprintf("Sent %d file(s) from %s to aria2", msg.count, msg.path)
		}
	}

	return m, nil
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return tea.Quit

	case key.Matches(msg, m.keys.Apply):
		m.filterActive = false

	case key.Matches(msg, m.keys.Clear):
		m.filterActive = false
		m.setFilter("")

	case key.Matches(msg, m.keys.Erase):
		if runes := []rune(m.filter); len(runes) > 0 {
			m.setFilter(string(runes[:len(runes)-1]))
		}

	case msg.Type == tea.KeyRunes:
		m.setFilter(m.filter + string(msg.Runes))
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.PageUp):
		m.moveCursor(-pageSize)
	case key.Matches(msg, m.keys.PageDown):
		m.moveCursor(pageSize)
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.moveCursor(len(m.entries))

	case key.Matches(msg, m.keys.Open):
		if sel, ok := m.selected(); ok && sel.Kind == entry.KindDir && sel.Listed {
			return m.openFolder(sel.Path)
		}

	case key.Matches(msg, m.keys.Back):
		if m.crawlMeta != nil && m.currentPath != m.crawlMeta.RootPath {
			return m.openFolder(pathutil.Parent(m.currentPath))
		}

	case key.Matches(msg, m.keys.Send):
		sel, ok := m.selected()
		if m.sender == nil || !ok {
			return nil
		}
		m.notice = fmt.Sprintf("Sending %s...", sel.Path)
		return m.sendSelection(sel.Path)

	case key.Matches(msg, m.keys.SortSize):
		return m.resort(SortBySize)
	case key.Matches(msg, m.keys.SortName):
		return m.resort(SortByName)
	case key.Matches(msg, m.keys.SortFile):
		return m.resort(SortByFiles)
	case key.Matches(msg, m.keys.SortDir):
		return m.resort(SortByDirs)

	case key.Matches(msg, m.keys.Filter):
		m.filterActive = true

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
	}
	return nil
}

func (m *Model) selected() (entryRow, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return entryRow{}, false
	}
	return m.entries[m.cursor], true
}

// moveCursor shifts the cursor by delta, clamped to the visible rows.
func (m *Model) moveCursor(delta int) {
	m.cursor = max(0, min(m.cursor+delta, len(m.entries)-1))
}

func (m *Model) openFolder(path string) tea.Cmd {
	m.currentPath = path
	m.filter = ""
	m.filterActive = false
	return m.loadEntries(path)
}

func (m *Model) resort(col SortColumn) tea.Cmd {
	m.sort = col
	return m.loadEntries(m.currentPath)
}

func (m *Model) showFolder(rows []entryRow, r *entry.Rollup) {
	m.filter = ""
	m.filterActive = false
	m.rollup = r
	m.allEntries = rows
	m.applyFilter()
}

func (m *Model) setFilter(f string) {
	m.filter = f
	m.applyFilter()
}
