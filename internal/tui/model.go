// Package tui is an interactive browser over a scan's directory totals.
package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/michaelscutari/dirscan/internal/entry"
)

const listLimit = 1000

// Source provides directory listings to browse. It is implemented by a
// report database reader and by an in-memory scan.
type Source interface {
	ScanMeta() (*entry.ScanMeta, error)
	LoadChildren(path, sortBy string, limit int) ([]entry.Listing, error)
	GetRollup(path string) (*entry.Rollup, error)
}

// SortColumn represents the current sort field.
type SortColumn int

const (
	SortBySize SortColumn = iota
	SortByName
	SortByFiles
)

func (s SortColumn) String() string {
	switch s {
	case SortByName:
		return "name"
	case SortByFiles:
		return "files"
	default:
		return "size"
	}
}

// Model holds the TUI state.
type Model struct {
	source       Source
	keys         KeyMap
	currentPath  string
	allEntries   []entry.Listing
	entries      []entry.Listing
	cursor       int
	sort         SortColumn
	width        int
	height       int
	scanMeta     *entry.ScanMeta
	rollup       *entry.Rollup
	filter       string
	filterActive bool
	err          error
}

// NewModel creates a new TUI model.
func NewModel(source Source) *Model {
	return &Model{
		source: source,
		keys:   DefaultKeyMap(),
		sort:   SortBySize,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.loadInitialData
}

type dataLoadedMsg struct {
	scanMeta *entry.ScanMeta
	entries  []entry.Listing
	rollup   *entry.Rollup
	err      error
}

func (m *Model) loadInitialData() tea.Msg {
	meta, err := m.source.ScanMeta()
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	entries, err := m.source.LoadChildren(meta.RootPath, m.sort.String(), listLimit)
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	rollup, err := m.source.GetRollup(meta.RootPath)
	if err != nil {
		return dataLoadedMsg{err: err}
	}

	return dataLoadedMsg{
		scanMeta: meta,
		entries:  entries,
		rollup:   rollup,
	}
}

type entriesLoadedMsg struct {
	path    string
	entries []entry.Listing
	rollup  *entry.Rollup
	err     error
}

func (m *Model) loadEntries(path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := m.source.LoadChildren(path, m.sort.String(), listLimit)
		if err != nil {
			return entriesLoadedMsg{path: path, err: err}
		}

		rollup, _ := m.source.GetRollup(path)

		return entriesLoadedMsg{
			path:    path,
			entries: entries,
			rollup:  rollup,
		}
	}
}

func (m *Model) helpLine() string {
	bindings := m.keys.browseHelp()
	if m.filterActive {
		bindings = m.keys.filterHelp()
	}

	parts := make([]string, 0, len(bindings)+1)
	if m.filterActive {
		parts = append(parts, "Type to filter")
	}
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return strings.Join(parts, " | ")
}

func (m *Model) setEntries(entries []entry.Listing) {
	m.allEntries = entries
	m.applyFilter()
}

func (m *Model) applyFilter() {
	if m.filter == "" {
		m.entries = m.allEntries
	} else {
		filtered := make([]entry.Listing, 0, len(m.allEntries))
		needle := strings.ToLower(m.filter)
		for _, e := range m.allEntries {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				filtered = append(filtered, e)
			}
		}
		m.entries = filtered
	}
	m.cursor = 0
}
