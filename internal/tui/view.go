package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/michaelscutari/dirscan/internal/entry"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	}

	if m.scanMeta == nil {
		return "Loading..."
	}

	var b strings.Builder
	headerLines := 0

	writeLine := func(line string) {
		b.WriteString(line)
		b.WriteString("\n")
		headerLines++
	}

	writeLine(titleStyle.Render("dirscan - Directory Size Browser"))

	scanInfo := fmt.Sprintf("Scan: %s | Size: %s | Files: %s | Dirs: %s",
		m.scanMeta.StartTime.Format("2006-01-02 15:04"),
		FormatSize(m.scanMeta.TotalSize),
		FormatCount(m.scanMeta.FileCount),
		FormatCount(m.scanMeta.DirCount),
	)
	if m.scanMeta.UnreadableCount > 0 {
		scanInfo += fmt.Sprintf(" | Unreadable: %s", FormatCount(m.scanMeta.UnreadableCount))
	}
	writeLine(statsStyle.Render(scanInfo))

	pathLabel := fmt.Sprintf("Path: %s", truncateMiddle(m.currentPath, max(10, m.width-6)))
	writeLine(breadcrumbStyle.Render(pathLabel))

	dirInfo := ""
	if m.rollup != nil {
		dirInfo = fmt.Sprintf("Size: %s | %s files | %s subdirs",
			FormatSize(m.rollup.TotalSize),
			FormatCount(m.rollup.TotalFiles),
			FormatCount(m.rollup.TotalDirs),
		)
		if m.rollup.UnreadableFiles > 0 {
			dirInfo += fmt.Sprintf(" | %s unreadable", FormatCount(m.rollup.UnreadableFiles))
		}
	}

	status := fmt.Sprintf("Items: %s", FormatCount(int64(len(m.entries))))
	if m.filter != "" {
		status += fmt.Sprintf(" | Filter: %q", m.filter)
	}
	if m.cursor < len(m.entries) {
		sel := m.entries[m.cursor]
		status += fmt.Sprintf(" | Sel: %s (%s)", sel.Name, formatListingSize(sel))
	}
	writeLine(statusStyle.Render(status))

	if m.filterActive {
		writeLine(filterStyle.Render(fmt.Sprintf("Filter: %s_", m.filter)))
	} else if m.filter != "" {
		writeLine(filterStyle.Render(fmt.Sprintf("Filter: %s", m.filter)))
	}

	// Column headers with sort indicator
	sizeLabel := headerLabel("SIZE", m.sort == SortBySize, "v")
	filesLabel := headerLabel("FILES", m.sort == SortByFiles, "v")
	nameLabel := headerLabel("NAME", m.sort == SortByName, "^")

	footerLines := 2
	if dirInfo != "" {
		footerLines = 3
	}
	visibleRows := max(m.height-headerLines-footerLines, 5)

	startIdx := 0
	if m.cursor >= visibleRows {
		startIdx = m.cursor - visibleRows + 1
	}
	endIdx := min(len(m.entries), startIdx+visibleRows)

	widths := calcColumnWidths(m.entries, startIdx, endIdx, sizeLabel, filesLabel, "DIRS")
	nameWidth := calcNameWidth(m.width, widths)
	gap := strings.Repeat(" ", colGap)
	nameGap := strings.Repeat(" ", nameGapWidth)

	nameLabel = truncateRight(nameLabel, nameWidth)
	namePad := max(nameWidth-len(nameLabel), 0)
	header := fmt.Sprintf("%*s%s%*s%s%*s%s%s%s%s%*s",
		widths.size, sizeLabel,
		gap,
		widths.files, filesLabel,
		gap,
		widths.dirs, "DIRS",
		nameGap,
		nameLabel,
		strings.Repeat(" ", namePad),
		gap,
		barColWidth, barHeaderLabel(m.sort),
	)
	writeLine(headerStyle.Render(header))

	for i := startIdx; i < endIdx; i++ {
		b.WriteString(m.formatEntry(m.entries[i], i == m.cursor, widths, nameWidth))
		b.WriteString("\n")
	}

	displayedRows := min(len(m.entries)-startIdx, visibleRows)
	for i := displayedRows; i < visibleRows; i++ {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if dirInfo != "" {
		b.WriteString(statsStyle.Render(dirInfo))
		b.WriteString("\n")
	}
	help := m.helpLine()
	if len(m.entries) > 0 {
		help = fmt.Sprintf("%s [%d/%d]", help, m.cursor+1, len(m.entries))
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

type columnWidths struct {
	size  int
	files int
	dirs  int
}

const (
	colGap        = 2
	nameGapWidth  = 2
	minNameWidth  = 10
	barBlockWidth = 10                                        // number of block characters
	barPctWidth   = 4                                         // " 78%" or "100%"
	barGapWidth   = 1                                         // space between blocks and pct
	barColWidth   = barBlockWidth + barGapWidth + barPctWidth // 15
)

// formatListingSize shows "?" for files whose size could not be read.
func formatListingSize(e entry.Listing) string {
	if e.Kind != entry.KindDir && e.State != entry.SizeMeasured {
		return "?"
	}
	return FormatSize(e.TotalSize)
}

func calcColumnWidths(entries []entry.Listing, startIdx, endIdx int, sizeLabel, filesLabel, dirsLabel string) columnWidths {
	w := columnWidths{
		size:  len(sizeLabel),
		files: len(filesLabel),
		dirs:  len(dirsLabel),
	}

	for i := startIdx; i < endIdx; i++ {
		e := entries[i]
		w.size = max(w.size, len(formatListingSize(e)))
		w.files = max(w.files, len(FormatCount(e.TotalFiles)))
		w.dirs = max(w.dirs, len(FormatCount(e.TotalDirs)))
	}

	return w
}

func calcNameWidth(totalWidth int, w columnWidths) int {
	// data columns + gaps between them + gap before name + gap before bar + bar
	used := w.size + w.files + w.dirs + (colGap * 3) + nameGapWidth + barColWidth
	return max(totalWidth-used, minNameWidth)
}

func truncateRight(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func (m *Model) formatEntry(e entry.Listing, selected bool, widths columnWidths, nameWidth int) string {
	size := formatListingSize(e)
	files := FormatCount(e.TotalFiles)
	dirs := FormatCount(e.TotalDirs)

	var rawName string
	switch e.Kind {
	case entry.KindDir:
		rawName = e.Name + "/"
	case entry.KindSymlink:
		rawName = e.Name + "@"
	default:
		rawName = e.Name
	}

	rawName = truncateRight(rawName, nameWidth)
	var styledName string
	switch {
	case e.Kind == entry.KindDir:
		styledName = dirStyle.Render(rawName)
	case e.Kind == entry.KindSymlink:
		styledName = symlinkStyle.Render(rawName)
	case e.State == entry.SizeUnreadable:
		styledName = unreadableStyle.Render(rawName)
	default:
		styledName = fileStyle.Render(rawName)
	}

	// Pad name to fixed width so bar column aligns
	paddedName := styledName + strings.Repeat(" ", max(nameWidth-len(rawName), 0))

	entryVal, parentTotal := barValues(m.sort, e, m.rollup)
	bar := formatBar(entryVal, parentTotal)

	gap := strings.Repeat(" ", colGap)
	nameGap := strings.Repeat(" ", nameGapWidth)
	line := fmt.Sprintf("%*s%s%*s%s%*s%s%s%s%s",
		widths.size, size,
		gap,
		widths.files, files,
		gap,
		widths.dirs, dirs,
		nameGap,
		paddedName,
		gap,
		bar,
	)

	if selected {
		return selectedStyle.Render(line)
	}
	return line
}

func barHeaderLabel(sort SortColumn) string {
	if sort == SortByFiles {
		return "FILE%"
	}
	return "SIZE%"
}

func barValues(sort SortColumn, e entry.Listing, rollup *entry.Rollup) (int64, int64) {
	if rollup == nil {
		return 0, 0
	}
	if sort == SortByFiles {
		return e.TotalFiles, rollup.TotalFiles
	}
	return e.TotalSize, rollup.TotalSize
}

func formatBar(entryVal, parentTotal int64) string {
	if parentTotal <= 0 || entryVal <= 0 {
		empty := strings.Repeat("░", barBlockWidth)
		return barEmptyStyle.Render(empty) + fmt.Sprintf("  %3d%%", 0)
	}

	pct := min(float64(entryVal)/float64(parentTotal)*100, 100)

	filled := int(math.Round(pct / 100 * float64(barBlockWidth)))
	filled = min(max(filled, 1), barBlockWidth)

	filledStr := barFilledStyle.Render(strings.Repeat("█", filled))
	emptyStr := barEmptyStyle.Render(strings.Repeat("░", barBlockWidth-filled))
	return filledStr + emptyStr + fmt.Sprintf("  %3d%%", int(math.Round(pct)))
}

func headerLabel(label string, active bool, dir string) string {
	if active {
		return label + dir
	}
	return label
}

func truncateMiddle(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	head := (maxLen - 3) / 2
	tail := maxLen - 3 - head
	return s[:head] + "..." + s[len(s)-tail:]
}
