package core

import "pkt.systems/channeldeck/schema"

// State is the registry's process-wide data. A State is never mutated after
// it has been published; the transition functions below build the next one.
type State struct {
	// Tabs holds each client's tabs in insertion (display) order.
	Tabs map[schema.ClientID][]Tab
	// Selected holds the focused tab per client.
	Selected map[schema.ClientID]schema.TabID
}

// EmptyState returns a State with no clients.
func EmptyState() State {
	return State{
		Tabs:     map[schema.ClientID][]Tab{},
		Selected: map[schema.ClientID]schema.TabID{},
	}
}

// TabsOf returns a copy of the client's tabs.
func (s State) TabsOf(clientID schema.ClientID) []Tab {
	return append([]Tab(nil), s.Tabs[clientID]...)
}

// Find returns the tab and its index, or false when absent.
func (s State) Find(clientID schema.ClientID, tabID schema.TabID) (Tab, int, bool) {
	for i, tab := range s.Tabs[clientID] {
		if tab.ID == tabID {
			return tab, i, true
		}
	}
	return Tab{}, -1, false
}

// SelectedOf returns the selected tab for the client, if any.
func (s State) SelectedOf(clientID schema.ClientID) (schema.TabID, bool) {
	id, ok := s.Selected[clientID]
	return id, ok
}

func (s State) clone() State {
	next := State{
		Tabs:     make(map[schema.ClientID][]Tab, len(s.Tabs)+1),
		Selected: make(map[schema.ClientID]schema.TabID, len(s.Selected)+1),
	}
	for client, tabs := range s.Tabs {
		next.Tabs[client] = tabs
	}
	for client, id := range s.Selected {
		next.Selected[client] = id
	}
	return next
}

// WithTab appends tab to the client's sequence, creating it when absent.
func WithTab(s State, clientID schema.ClientID, tab Tab) State {
	next := s.clone()
	prev := s.Tabs[clientID]
	tabs := make([]Tab, 0, len(prev)+1)
	tabs = append(tabs, prev...)
	next.Tabs[clientID] = append(tabs, tab)
	return next
}

// WithUpdate applies update to the matching tab. It reports false and returns s
// unchanged when the client or tab is absent.
func WithUpdate(s State, clientID schema.ClientID, tabID schema.TabID, update TabUpdate) (State, Tab, bool) {
	return replaceTab(s, clientID, tabID, func(tab Tab) Tab { return tab.apply(update) })
}

// WithTitle renames the matching tab.
func WithTitle(s State, clientID schema.ClientID, tabID schema.TabID, title schema.TabTitle) (State, Tab, bool) {
	return replaceTab(s, clientID, tabID, func(tab Tab) Tab {
		tab.Title = title
		return tab
	})
}

// WithLifecycle replaces the tab's hook set.
func WithLifecycle(s State, clientID schema.ClientID, tabID schema.TabID, lifecycle Lifecycle) (State, Tab, bool) {
	return replaceTab(s, clientID, tabID, func(tab Tab) Tab {
		tab.Lifecycle = lifecycle
		return tab
	})
}

func replaceTab(s State, clientID schema.ClientID, tabID schema.TabID, fn func(Tab) Tab) (State, Tab, bool) {
	_, idx, ok := s.Find(clientID, tabID)
	if !ok {
		return s, Tab{}, false
	}
	prev := s.Tabs[clientID]
	tabs := make([]Tab, len(prev))
	copy(tabs, prev)
	tabs[idx] = fn(tabs[idx])
	next := s.clone()
	next.Tabs[clientID] = tabs
	return next, tabs[idx], true
}

// WithoutTab removes the tab from the client's sequence. When the removed tab
// was selected, selection moves to the previous sibling, else the next
// sibling, else it is cleared. The returned bool is false on a miss.
func WithoutTab(s State, clientID schema.ClientID, tabID schema.TabID) (State, Tab, bool) {
	removed, idx, ok := s.Find(clientID, tabID)
	if !ok {
		return s, Tab{}, false
	}
	prev := s.Tabs[clientID]
	tabs := make([]Tab, 0, len(prev)-1)
	tabs = append(tabs, prev[:idx]...)
	tabs = append(tabs, prev[idx+1:]...)

	next := s.clone()
	if len(tabs) == 0 {
		delete(next.Tabs, clientID)
	} else {
		next.Tabs[clientID] = tabs
	}
	if selected, ok := s.Selected[clientID]; ok && selected == tabID {
		switch {
		case idx > 0:
			next.Selected[clientID] = tabs[idx-1].ID
		case len(tabs) > 0:
			next.Selected[clientID] = tabs[0].ID
		default:
			delete(next.Selected, clientID)
		}
	}
	return next, removed, true
}

// WithSelection records tabID as the client's focused tab without checking
// that it exists.
func WithSelection(s State, clientID schema.ClientID, tabID schema.TabID) State {
	next := s.clone()
	next.Selected[clientID] = tabID
	return next
}
