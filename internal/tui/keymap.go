package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit       key.Binding
	reload     key.Binding
	toggleHelp key.Binding
	prevView   key.Binding
	nextView   key.Binding
	rowUp      key.Binding
	rowDown    key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		prevView:   key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "previous view")),
		nextView:   key.NewBinding(key.WithKeys("l", "right", "tab"), key.WithHelp("l/→", "next view")),
		rowUp:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "row up")),
		rowDown:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "row down")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.prevView, k.nextView, k.reload, k.quit}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.prevView, k.nextView, k.rowUp, k.rowDown},
		{k.reload, k.toggleHelp, k.quit},
	}
}
