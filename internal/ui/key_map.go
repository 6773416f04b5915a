package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	enter   key.Binding
	back    key.Binding
	yes     key.Binding
	no      key.Binding
	cancel  key.Binding
	restart key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "transfer")),
		no:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "back")),
		cancel:  key.NewBinding(key.WithKeys("c", "esc"), key.WithHelp("c", "cancel transfer")),
		restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "pick another")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// help for each view
func (k keyMap) forView(v ViewState, browsing bool) []key.Binding {
	switch v {
	case PlaylistListView:
		return []key.Binding{k.enter, k.quit}
	case TrackListView:
		return []key.Binding{k.enter, k.back, k.quit}
	case ConfirmView:
		return []key.Binding{k.yes, k.no, k.quit}
	case TransferView:
		return []key.Binding{k.cancel, k.quit}
	case ResultView:
		if browsing {
			return []key.Binding{k.restart, k.quit}
		}
		return []key.Binding{k.quit}
	default:
		return []key.Binding{k.quit}
	}
}
