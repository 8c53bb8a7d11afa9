package core

import "pkt.systems/channeldeck/schema"

// Lifecycle is the hook set a hosted channel registers for its tab.
// Every hook is optional; a missing OnBeforeDestroy allows destruction.
type Lifecycle struct {
	OnFocus         func()
	OnBlur          func()
	OnBeforeDestroy func() bool
}

// Tab is a UI slot bound to zero or one channel instance.
// Tabs are values; the registry replaces them rather than mutating them.
type Tab struct {
	ID        schema.TabID
	ChannelID schema.ChannelID
	Title     schema.TabTitle
	// Content is an opaque reference to whatever the host renders for the tab.
	Content   any
	Loading   bool
	Errored   bool
	Lifecycle Lifecycle
}

// TabData describes a tab to create.
type TabData struct {
	ChannelID schema.ChannelID
	Title     schema.TabTitle
	Content   any
	Loading   bool
	Errored   bool
	Lifecycle Lifecycle
}

// TabUpdate is the restricted patch applied by UpdateTab. Nil fields are left
// untouched. Titles change only through Registry.SetTitle.
type TabUpdate struct {
	Content *any
	Loading *bool
	Errored *bool
}

// Snapshot returns a transport-friendly view of the tab.
func (t Tab) Snapshot(selected bool) schema.TabSnapshot {
	return schema.TabSnapshot{
		ID:        t.ID,
		ChannelID: t.ChannelID,
		Title:     t.Title,
		Loading:   t.Loading,
		Errored:   t.Errored,
		Selected:  selected,
	}
}

func (t Tab) apply(update TabUpdate) Tab {
	if update.Content != nil {
		t.Content = *update.Content
	}
	if update.Loading != nil {
		t.Loading = *update.Loading
	}
	if update.Errored != nil {
		t.Errored = *update.Errored
	}
	return t
}

// Bool returns a pointer to b for use in TabUpdate.
func Bool(b bool) *bool {
	return &b
}

// ContentRef returns a pointer to content for use in TabUpdate.
func ContentRef(content any) *any {
	return &content
}
