package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Quit        key.Binding
	Search      key.Binding
	Sort        key.Binding
	Open        key.Binding
	Reload      key.Binding
	Copy        key.Binding
	ClearFilter key.Binding
}

// newKeyMap returns the bindings of a browser. Reload is only offered
// when the listing can be fetched again.
func newKeyMap(canReload bool) keyMap {
	km := keyMap{
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Search:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Sort:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		Open:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "show")),
		Reload:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Copy:        key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy id")),
		ClearFilter: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
	}
	km.Reload.SetEnabled(canReload)
	return km
}

// hints renders the enabled bindings for the footer.
func (k keyMap) hints() string {
	var parts []string
	for _, b := range []key.Binding{k.Quit, k.Search, k.Sort, k.Open, k.Reload, k.Copy, k.ClearFilter} {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return strings.Join(parts, "  ")
}
