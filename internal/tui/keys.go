package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the browser's key bindings.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Open       key.Binding
	Back       key.Binding
	Top        key.Binding
	Bottom     key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	SortSize   key.Binding
	SortName   key.Binding
	SortFiles  key.Binding
	Filter     key.Binding
	ApplyInput key.Binding
	ClearInput key.Binding
	DeleteChar key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑", "move"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓", "move"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter", "l", "right"),
			key.WithHelp("enter", "open"),
		),
		Back: key.NewBinding(
			key.WithKeys("backspace", "h", "left"),
			key.WithHelp("backspace", "close"),
		),
		Top: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "bottom"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdown", "page down"),
		),
		SortSize: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sort size"),
		),
		SortName: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "sort name"),
		),
		SortFiles: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "sort files"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		ApplyInput: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "apply"),
		),
		ClearInput: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear"),
		),
		DeleteChar: key.NewBinding(
			key.WithKeys("backspace"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// browseHelp and filterHelp list the bindings shown in the help line.
func (k KeyMap) browseHelp() []key.Binding {
	return []key.Binding{k.Up, k.Open, k.Back, k.SortSize, k.SortName, k.SortFiles, k.Filter, k.Quit}
}

func (k KeyMap) filterHelp() []key.Binding {
	return []key.Binding{k.ApplyInput, k.ClearInput}
}
