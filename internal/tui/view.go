package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/michaelscutari/dredge/internal/entry"
)

const (
	colGap       = 2
	minNameWidth = 10
	minRows      = 5
	barCells     = 10
	barWidth     = barCells + 2 + 4 // cells, gap, "100%"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	}
	if m.crawlMeta == nil {
		return "Loading..."
	}

	top := m.renderTop()
	bottom := m.renderBottom()
	rows := max(minRows, m.height-len(top)-len(bottom)-1)

	var b strings.Builder
	for _, line := range top {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(m.renderTable(rows))
	b.WriteByte('\n')
	b.WriteString(strings.Join(bottom, "\n"))
	return b.String()
}

// renderTop returns the title, crawl summary, location and filter lines.
func (m *Model) renderTop() []string {
	meta := m.crawlMeta
	lines := []string{
		titleStyle.Render("dredge - Index Browser"),
		statsStyle.Render(fmt.Sprintf("Crawl: %s | Size: %s | Files: %s | Folders: %s",
			meta.StartTime.Format("2006-01-02 15:04"),
			FormatSize(meta.TotalSize),
			FormatCount(meta.FileCount),
			FormatCount(meta.DirCount))),
		breadcrumbStyle.Render("Path: " + truncateMiddle(m.currentPath, max(10, m.width-6))),
	}

	status := "Items: " + FormatCount(int64(len(m.entries)))
	if m.filter != "" {
		status += fmt.Sprintf(" | Filter: %q", m.filter)
	}
	if sel, ok := m.selected(); ok {
		status += fmt.Sprintf(" | Sel: %s (%s)", sel.Name, sizeLabel(sel))
	}
	lines = append(lines, statusStyle.Render(status))

	switch {
	case m.filterActive:
		lines = append(lines, filterStyle.Render("Filter: "+m.filter+"_"))
	case m.filter != "":
		lines = append(lines, filterStyle.Render("Filter: "+m.filter))
	}
	return lines
}

// renderBottom returns the folder totals, the last notice and the key help.
func (m *Model) renderBottom() []string {
	var lines []string
	if m.rollup != nil {
		lines = append(lines, statsStyle.Render(fmt.Sprintf("Size: %s | %s files | %s folders",
			FormatSize(m.rollup.TotalSize),
			FormatCount(m.rollup.TotalFiles),
			FormatCount(m.rollup.TotalDirs))))
	}
	if m.notice != "" {
		lines = append(lines, noticeStyle.Render(m.notice))
	}

	canSend := m.sender != nil
	switch {
	case m.filterActive:
		lines = append(lines, helpStyle.Render(helpLine(m.keys.filterHelp())))
	case m.showHelp:
		for _, group := range m.keys.fullHelp(canSend) {
			lines = append(lines, helpLine(group))
		}
	default:
		help := helpLine(m.keys.shortHelp(canSend))
		if len(m.entries) > 0 {
			help += fmt.Sprintf(" [%d/%d]", m.cursor+1, len(m.entries))
		}
		lines = append(lines, helpStyle.Render(help))
	}
	return lines
}

func helpLine(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, helpKeyStyle.Render(h.Key)+" "+helpDescStyle.Render(h.Desc))
	}
	return strings.Join(parts, " • ")
}

type columns struct {
	size, files, dirs, name int
}

// renderTable draws the header and exactly rows entry lines around the cursor.
func (m *Model) renderTable(rows int) string {
	first := 0
	if m.cursor >= rows {
		first = m.cursor - rows + 1
	}
	last := min(len(m.entries), first+rows)

	sizeHdr := headerLabel("SIZE", m.sort == SortBySize, "v")
	filesHdr := headerLabel("FILES", m.sort == SortByFiles, "v")
	dirsHdr := headerLabel("DIRS", m.sort == SortByDirs, "v")
	nameHdr := headerLabel("NAME", m.sort == SortByName, "^")

	cols := columns{size: len(sizeHdr), files: len(filesHdr), dirs: len(dirsHdr)}
	for _, e := range m.entries[first:last] {
		cols.size = max(cols.size, len(sizeLabel(e)))
		cols.files = max(cols.files, len(FormatCount(e.TotalFiles)))
		cols.dirs = max(cols.dirs, len(FormatCount(e.TotalDirs)))
	}
	cols.name = max(minNameWidth, m.width-cols.size-cols.files-cols.dirs-colGap*4-barWidth)

	var b strings.Builder
	nameHdr = truncateRight(nameHdr, cols.name)
	b.WriteString(headerStyle.Render(cols.line(sizeHdr, filesHdr, dirsHdr,
		nameHdr+strings.Repeat(" ", cols.name-len(nameHdr)),
		fmt.Sprintf("%*s", barWidth, barHeaderLabel(m.sort)))))
	b.WriteByte('\n')

	for i := first; i < last; i++ {
		b.WriteString(m.renderRow(m.entries[i], i == m.cursor, cols))
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("\n", rows-(last-first)))
	return b.String()
}

func (c columns) line(size, files, dirs, name, bar string) string {
	gap := strings.Repeat(" ", colGap)
	return fmt.Sprintf("%*s%s%*s%s%*s%s%s%s%s", c.size, size, gap, c.files, files, gap, c.dirs, dirs, gap, name, gap, bar)
}

func (m *Model) renderRow(e entryRow, selected bool, cols columns) string {
	name := e.Name
	if e.Kind == entry.KindDir {
		name += "/"
	}
	name = truncateRight(name, cols.name)
	styled := nameStyle(e).Render(name) + strings.Repeat(" ", cols.name-len(name))

	val, total := barValues(m.sort, e, m.rollup)
	line := cols.line(sizeLabel(e), FormatCount(e.TotalFiles), FormatCount(e.TotalDirs), styled, formatBar(val, total))
	if selected {
		return selectedStyle.Render(line)
	}
	return line
}

// sizeLabel renders a row's size. Files without a reported size show "-",
// folders that were never listed show "?".
func sizeLabel(e entryRow) string {
	switch {
	case e.Kind == entry.KindDir && !e.Listed:
		return "?"
	case e.Kind == entry.KindFile && !e.HasSize:
		return "-"
	}
	return FormatSize(e.TotalSize)
}

func barHeaderLabel(sort SortColumn) string {
	switch sort {
	case SortByFiles:
		return "FILE%"
	case SortByDirs:
		return "DIR%"
	}
	return "SIZE%"
}

func barValues(sort SortColumn, e entryRow, r *entry.Rollup) (int64, int64) {
	if r == nil {
		return 0, 0
	}
	switch sort {
	case SortByFiles:
		return e.TotalFiles, r.TotalFiles
	case SortByDirs:
		return e.TotalDirs, r.TotalDirs
	}
	return e.TotalSize, r.TotalSize
}

// formatBar draws the share of part in whole as a bar and a percentage.
func formatBar(part, whole int64) string {
	pct := 0.0
	filled := 0
	if whole > 0 && part > 0 {
		pct = math.Min(float64(part)/float64(whole)*100, 100)
		filled = min(max(int(math.Round(pct/100*barCells)), 1), barCells)
	}
	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barCells-filled)) +
		fmt.Sprintf("  %3d%%", int(math.Round(pct)))
}

func headerLabel(label string, active bool, arrow string) string {
	if active {
		return label + arrow
	}
	return label
}

func truncateRight(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n <= 3:
		return s[:n]
	}
	return s[:n-3] + "..."
}

func truncateMiddle(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n <= 3:
		return s[:n]
	}
	head := (n - 3) / 2
	tail := n - 3 - head
	return s[:head] + "..." + s[len(s)-tail:]
}
