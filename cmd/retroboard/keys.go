package main

import "github.com/charmbracelet/bubbles/key"

// keyMap lists the remote's key bindings.
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Scan    key.Binding
	Toggle  key.Binding
	RSSI    key.Binding
	Linked  key.Binding
	Command key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Scan: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "scan"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect/disconnect"),
		),
		RSSI: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "signal"),
		),
		Linked: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "already connected"),
		),
		Command: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("1-9", "send command"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Scan, k.Toggle, k.Command, k.RSSI, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.Scan, k.Linked, k.RSSI},
		{k.Command, k.Quit},
	}
}
