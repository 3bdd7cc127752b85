package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Open     key.Binding
	Back     key.Binding
	Send     key.Binding
	SortSize key.Binding
	SortName key.Binding
	SortFile key.Binding
	SortDir  key.Binding
	Filter   key.Binding
	Help     key.Binding
	Quit     key.Binding

	// Filter mode.
	Apply     key.Binding
	Clear     key.Binding
	Erase     key.Binding
	ForceQuit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "page down")),
		Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
		Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
		Open:     key.NewBinding(key.WithKeys("enter", "l", "right"), key.WithHelp("enter", "open")),
		Back:     key.NewBinding(key.WithKeys("backspace", "h", "left"), key.WithHelp("backspace", "up a folder")),
		Send:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "send to aria2")),
		SortSize: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "by size")),
		SortName: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "by name")),
		SortFile: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "by files")),
		SortDir:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "by folders")),
		Filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

		Apply:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
		Clear:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
		Erase:     key.NewBinding(key.WithKeys("backspace")),
		ForceQuit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// shortHelp lists the bindings shown on the footer line.
func (k keyMap) shortHelp(canSend bool) []key.Binding {
	b := []key.Binding{k.Up, k.Down, k.Open, k.Back, k.Filter}
	if canSend {
		b = append(b, k.Send)
	}
	return append(b, k.Help, k.Quit)
}

// fullHelp lists every browsing binding, grouped for the help panel.
func (k keyMap) fullHelp(canSend bool) [][]key.Binding {
	actions := []key.Binding{k.Open, k.Back, k.Filter}
	if canSend {
		actions = append(actions, k.Send)
	}
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		actions,
		{k.SortSize, k.SortName, k.SortFile, k.SortDir},
		{k.Help, k.Quit},
	}
}

func (k keyMap) filterHelp() []key.Binding {
	return []key.Binding{k.Apply, k.Clear, k.ForceQuit}
}
