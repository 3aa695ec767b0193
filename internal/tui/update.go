package tui

import (
	"path/filepath"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/michaelscutari/dirscan/internal/entry"
)

const pageSize = 10

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.scanMeta = msg.scanMeta
		m.currentPath = msg.scanMeta.RootPath
		m.filter = ""
		m.filterActive = false
		m.setEntries(msg.entries)
		m.rollup = msg.rollup
		return m, nil

	case entriesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		// Drop results for a directory the user already left.
		if msg.path != m.currentPath {
			return m, nil
		}
		m.filter = ""
		m.filterActive = false
		m.setEntries(msg.entries)
		m.rollup = msg.rollup
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterActive {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Open):
		if m.cursor < len(m.entries) {
			selected := m.entries[m.cursor]
			if selected.Kind == entry.KindDir {
				return m, m.navigate(selected.Path)
			}
		}

	case key.Matches(msg, m.keys.Back):
		if m.scanMeta != nil && m.currentPath != m.scanMeta.RootPath {
			return m, m.navigate(filepath.Dir(m.currentPath))
		}

	case key.Matches(msg, m.keys.SortSize):
		m.sort = SortBySize
		return m, m.loadEntries(m.currentPath)

	case key.Matches(msg, m.keys.SortName):
		m.sort = SortByName
		return m, m.loadEntries(m.currentPath)

	case key.Matches(msg, m.keys.SortFiles):
		m.sort = SortByFiles
		return m, m.loadEntries(m.currentPath)

	case key.Matches(msg, m.keys.Filter):
		m.filterActive = true

	case key.Matches(msg, m.keys.Top):
		m.cursor = 0

	case key.Matches(msg, m.keys.Bottom):
		if len(m.entries) > 0 {
			m.cursor = len(m.entries) - 1
		}

	case key.Matches(msg, m.keys.PageUp):
		m.cursor = max(m.cursor-pageSize, 0)

	case key.Matches(msg, m.keys.PageDown):
		m.cursor = max(min(m.cursor+pageSize, len(m.entries)-1), 0)
	}

	return m, nil
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ApplyInput):
		m.filterActive = false

	case key.Matches(msg, m.keys.ClearInput):
		m.filterActive = false
		m.filter = ""
		m.applyFilter()

	case key.Matches(msg, m.keys.DeleteChar):
		if len(m.filter) > 0 {
			runes := []rune(m.filter)
			m.filter = string(runes[:len(runes)-1])
			m.applyFilter()
		}

	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit

	case msg.Type == tea.KeyRunes:
		m.filter += msg.String()
		m.applyFilter()
	}

	return m, nil
}

func (m *Model) navigate(path string) tea.Cmd {
	m.currentPath = path
	m.filter = ""
	m.filterActive = false
	return m.loadEntries(path)
}
