// internal/ui/keymap.go

package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap grupuje skróty klawiszowe warstwy kart. Wszystkie używają
// modyfikatora ctrl, żeby nie kolidować z wejściem zdalnego terminala.
type KeyMap struct {
	NextTab     key.Binding
	PrevTab     key.Binding
	NewTab      key.Binding
	CloseTab    key.Binding
	ToggleSplit key.Binding
	Paste       key.Binding
	Transfer    key.Binding
	Reconnect   key.Binding
	Quit        key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextTab: key.NewBinding(
			key.WithKeys("ctrl+right", "ctrl+n"),
			key.WithHelp("ctrl+→", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("ctrl+left", "ctrl+p"),
			key.WithHelp("ctrl+←", "previous tab"),
		),
		NewTab: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("ctrl+t", "new tab"),
		),
		CloseTab: key.NewBinding(
			key.WithKeys("ctrl+w"),
			key.WithHelp("ctrl+w", "close tab"),
		),
		ToggleSplit: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "toggle split"),
		),
		Paste: key.NewBinding(
			key.WithKeys("ctrl+v"),
			key.WithHelp("ctrl+v", "paste"),
		),
		Transfer: key.NewBinding(
			key.WithKeys("ctrl+f"),
			key.WithHelp("ctrl+f", "file transfer"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "reconnect"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("ctrl+q", "quit"),
		),
	}
}
