package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds every binding. Which ones are live depends on the screen.
type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding
	Back  key.Binding
	Quit  key.Binding
	Help  key.Binding

	Open     key.Binding
	Close    key.Binding
	Next     key.Binding
	Prev     key.Binding
	Clear    key.Binding
	Text     key.Binding
	Relation key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Back:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),

		Open:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open")),
		Close:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "close")),
		Next:     key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n/→", "next step")),
		Prev:     key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p/←", "prev step")),
		Clear:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
		Text:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "labels")),
		Relation: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "relations")),
	}
}

// screenKeys narrows the key map to one screen for the help view.
type screenKeys struct {
	keyMap
	screen screen
}

func (k screenKeys) ShortHelp() []key.Binding {
	switch k.screen {
	case screenLayer:
		return []key.Binding{k.Open, k.Close, k.Next, k.Prev, k.Back, k.Help}
	default:
		return []key.Binding{k.Up, k.Down, k.Enter, k.Back, k.Quit}
	}
}

func (k screenKeys) FullHelp() [][]key.Binding {
	if k.screen != screenLayer {
		return [][]key.Binding{k.ShortHelp()}
	}
	return [][]key.Binding{
		{k.Open, k.Close, k.Clear},
		{k.Next, k.Prev},
		{k.Text, k.Relation},
		{k.Back, k.Help, k.Quit},
	}
}
