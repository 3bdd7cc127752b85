package tui

import (
	"context"
	"database/sql"
	"strings"

	"github.com/michaelscutari/dredge/internal/db"
	"github.com/michaelscutari/dredge/internal/entry"

	tea "github.com/charmbracelet/bubbletea"
)

// SortColumn represents the current sort field.
type SortColumn int

const (
	SortBySize SortColumn = iota
	SortByName
	SortByFiles
	SortByDirs
)

func (s SortColumn) String() string {
	switch s {
	case SortByName:
		return "name"
	case SortByFiles:
		return "files"
	case SortByDirs:
		return "dirs"
	default:
		return "size"
	}
}

// Sender queues a download. *aria2.Client satisfies it.
type Sender interface {
	AddURI(ctx context.Context, uri, dir string) (string, error)
}

type entryRow = db.DisplayEntry

// Model holds the TUI state.
type Model struct {
	db          *sql.DB
	sender      Sender
	downloadDir string
	keys        keyMap

	crawlMeta   *entry.CrawlMeta
	currentPath string
	rollup      *entry.Rollup
	allEntries  []entryRow
	entries     []entryRow // allEntries narrowed by filter
	cursor      int
	sort        SortColumn

	filter       string
	filterActive bool
	showHelp     bool
	notice       string
	err          error

	width  int
	height int
}

// NewModel creates a new TUI model. sender may be nil, which disables
// sending to the download manager.
func NewModel(database *sql.DB, sender Sender, downloadDir string) *Model {
	return &Model{
		db:          database,
		sender:      sender,
		downloadDir: downloadDir,
		keys:        defaultKeyMap(),
		sort:        SortBySize,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.loadInitialData
}

type dataLoadedMsg struct {
	crawlMeta *entry.CrawlMeta
	entries   []entryRow
	rollup    *entry.Rollup
	err       error
}

func (m *Model) loadInitialData() tea.Msg {
	meta, err := db.GetCrawlMeta(m.db)
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	entries, err := db.LoadChildren(m.db, meta.RootPath, m.sort.String(), 1000)
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	rollup, err := db.GetRollup(m.db, meta.RootPath)
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	return dataLoadedMsg{
		crawlMeta: meta,
		entries:   entries,
		rollup:    rollup,
	}
}

type entriesLoadedMsg struct {
	entries []entryRow
	rollup  *entry.Rollup
	err     error
}

func (m *Model) loadEntries(path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := db.LoadChildren(m.db, path, m.sort.String(), 1000)
		if err != nil {
			return entriesLoadedMsg{err: err}
		}

		rollup, _ := db.GetRollup(m.db, path)

		return entriesLoadedMsg{
			entries: entries,
			rollup:  rollup,
		}
	}
}

type sentMsg struct {
	path  string
	count int
	err   error
}

// sendSelection queues every file at or beneath path.
func (m *Model) sendSelection(path string) tea.Cmd {
	sender, dir := m.sender, m.downloadDir
	return func() tea.Msg {
		files, err := db.LoadFiles(m.db, path)
		if err != nil {
			return sentMsg{path: path, err: err}
		}
		ctx := context.Background()
		for i, f := range files {
			if _, err := sender.AddURI(ctx, f.DownloadURL, dir); err != nil {
				return sentMsg{path: path, count: i, err: err}
			}
		}
		return sentMsg{path: path, count: len(files)}
	}
}

func (m *Model) applyFilter() {
	m.cursor = 0
	if m.filter == "" {
		m.entries = m.allEntries
		return
	}
	needle := strings.ToLower(m.filter)
	m.entries = make([]entryRow, 0, len(m.allEntries))
	for _, e := range m.allEntries {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			m.entries = append(m.entries, e)
		}
	}
}
