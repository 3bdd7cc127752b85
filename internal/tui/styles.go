package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/michaelscutari/dredge/internal/entry"
)

// ANSI 256 palette.
var (
	accent = lipgloss.Color("39")
	subtle = lipgloss.Color("245")
	faint  = lipgloss.Color("240")
	good   = lipgloss.Color("76")
	warn   = lipgloss.Color("214")
	bright = lipgloss.Color("255")
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	statsStyle      = lipgloss.NewStyle().Foreground(subtle).MarginBottom(1)
	breadcrumbStyle = lipgloss.NewStyle().Foreground(subtle)
	statusStyle     = lipgloss.NewStyle().Foreground(subtle)
	filterStyle     = lipgloss.NewStyle().Foreground(warn)
	noticeStyle     = lipgloss.NewStyle().Foreground(good)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(faint).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(faint)

	// Row styles.
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(accent)
	dirStyle      = lipgloss.NewStyle().Bold(true).Foreground(accent)
	unlistedStyle = lipgloss.NewStyle().Italic(true).Foreground(faint)
	fileStyle     = lipgloss.NewStyle().Foreground(bright)

	barFilledStyle = lipgloss.NewStyle().Foreground(good)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(faint)

	helpStyle     = lipgloss.NewStyle().Foreground(faint).MarginTop(1)
	helpKeyStyle  = lipgloss.NewStyle().Foreground(subtle)
	helpDescStyle = lipgloss.NewStyle().Foreground(faint)
)

// nameStyle picks the row style for an entry's name.
func nameStyle(e entryRow) lipgloss.Style {
	switch {
	case e.Kind == entry.KindDir && !e.Listed:
		return unlistedStyle
	case e.Kind == entry.KindDir:
		return dirStyle
	}
	return fileStyle
}

// FormatSize formats a byte count for display.
func FormatSize(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}

// FormatCount formats a count for display.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}
