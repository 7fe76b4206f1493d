// Package keys contains keybinding definitions.
package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings for the application.
type KeyMap struct {
	// Tree navigation
	Up       key.Binding
	Down     key.Binding
	Expand   key.Binding
	Collapse key.Binding
	Top      key.Binding
	Bottom   key.Binding

	// Tree actions
	Select         key.Binding
	ClearSelection key.Binding
	Search         key.Binding
	Reload         key.Binding
	Open           key.Binding

	// Category visibility
	Isolate key.Binding
	Hide    key.Binding
	ShowAll key.Binding

	// Toolbar
	Area        key.Binding
	Length      key.Binding
	Volume      key.Binding
	Highlighter key.Binding
	Clipper     key.Binding
	OrbitLock   key.Binding

	// Viewport gestures, aimed at the row under the cursor
	Pick   key.Binding
	Create key.Binding
	Finish key.Binding
	Remove key.Binding
	Cut    key.Binding

	// General
	Help   key.Binding
	Logs   key.Binding
	Focus  key.Binding
	Copy   key.Binding
	Escape key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "move down"),
		),
		Expand: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "expand"),
		),
		Collapse: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "collapse"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "first row"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "last row"),
		),

		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "highlight row"),
		),
		ClearSelection: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear highlight"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search tree"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload trees"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open model"),
		),

		Isolate: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "isolate category"),
		),
		Hide: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "hide category"),
		),
		ShowAll: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "show all"),
		),

		Area: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "area measurer"),
		),
		Length: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "length measurer"),
		),
		Volume: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "volume measurer"),
		),
		Highlighter: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "highlighter"),
		),
		Clipper: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "clipper"),
		),
		OrbitLock: key.NewBinding(
			key.WithKeys("6"),
			key.WithHelp("6", "orbit lock"),
		),

		Pick: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "click element"),
		),
		Create: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "double-click element"),
		),
		Finish: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "finish measurement"),
		),
		Remove: key.NewBinding(
			key.WithKeys("delete", "backspace"),
			key.WithHelp("del", "delete last"),
		),
		Cut: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "delete plane"),
		),

		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Logs: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "logs"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch panel"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy properties"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "go back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Select, k.Help, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Expand, k.Collapse, k.Top, k.Bottom},               // Navigation
		{k.Select, k.ClearSelection, k.Search, k.Reload, k.Open},            // Tree
		{k.Isolate, k.Hide, k.ShowAll},                                      // Categories
		{k.Area, k.Length, k.Volume, k.Highlighter, k.Clipper, k.OrbitLock}, // Toolbar
		{k.Pick, k.Create, k.Finish, k.Remove, k.Cut},                       // Viewport
		{k.Help, k.Logs, k.Focus, k.Copy, k.Escape, k.Quit},                 // General
	}
}

// SearchKeyMap defines the keybindings while the search input is focused.
type SearchKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Accept key.Binding
	Cancel key.Binding
}

// DefaultSearchKeyMap returns the keybindings for the search input.
func DefaultSearchKeyMap() SearchKeyMap {
	return SearchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("↑/ctrl+p", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "ctrl+n"),
			key.WithHelp("↓/ctrl+n", "move down"),
		),
		Accept: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "keep filter"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
	}
}

// Tree and Search are the bindings in use.
var (
	Tree   = DefaultKeyMap()
	Search = DefaultSearchKeyMap()
)
