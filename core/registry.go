package core

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"pkt.systems/channeldeck/internal/logx"
	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

// Registry owns the tab/channel state of the process. Writers are serialized;
// readers load the current State snapshot without locking and never observe a
// partially applied change.
type Registry struct {
	cfg    schema.RegistryConfig
	sink   EventSink
	logger pslog.Logger
	newID  func() schema.TabID

	mu    sync.Mutex
	state atomic.Pointer[State]
}

// NewRegistry constructs an empty registry.
func NewRegistry(cfg schema.RegistryConfig, deps RegistryDeps) (*Registry, error) {
	normalized, err := schema.NormalizeRegistryConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	newID := deps.NewID
	if newID == nil {
		newID = newTabID
	}
	r := &Registry{
		cfg:    normalized,
		sink:   deps.EventSink,
		logger: logger,
		newID:  newID,
	}
	empty := EmptyState()
	r.state.Store(&empty)
	return r, nil
}

// Snapshot returns the current state. Callers must treat it as read-only.
func (r *Registry) Snapshot() State {
	return *r.state.Load()
}

// Tabs returns the client's tabs in display order.
func (r *Registry) Tabs(clientID schema.ClientID) []Tab {
	return r.Snapshot().TabsOf(clientKey(clientID))
}

// Tab returns a single tab.
func (r *Registry) Tab(clientID schema.ClientID, tabID schema.TabID) (Tab, bool) {
	tab, _, ok := r.Snapshot().Find(clientKey(clientID), tabID)
	return tab, ok
}

// Selected returns the client's focused tab, if any.
func (r *Registry) Selected(clientID schema.ClientID) (schema.TabID, bool) {
	return r.Snapshot().SelectedOf(clientKey(clientID))
}

// CreateTab appends a new tab for the client and returns its id before any
// channel work starts.
func (r *Registry) CreateTab(ctx context.Context, clientID schema.ClientID, data TabData) (schema.TabID, error) {
	clientID, err := schema.NormalizeClientID(clientID)
	if err != nil {
		return "", err
	}
	tab := Tab{
		ID:        r.newID(),
		ChannelID: schema.NormalizeChannelID(data.ChannelID),
		Title:     schema.TabTitle(formatTitle(string(data.Title), r.cfg.TitleMax, r.cfg.TitleSuffix)),
		Content:   data.Content,
		Loading:   data.Loading,
		Errored:   data.Errored,
		Lifecycle: data.Lifecycle,
	}
	log := logx.WithClientTab(ctx, clientID, tab.ID)

	r.mu.Lock()
	next := WithTab(r.Snapshot(), clientID, tab)
	r.state.Store(&next)
	selected := next.Selected[clientID]
	r.mu.Unlock()

	r.emit(schema.TabEvent{
		ClientID:    clientID,
		Type:        schema.TabEventCreated,
		Tab:         tab.Snapshot(selected == tab.ID),
		SelectedTab: selected,
	})
	logx.WithChannel(log, tab.ChannelID).Info("registry tab created", "title", tab.Title)
	return tab.ID, nil
}

// UpdateTab patches the mutable fields of a tab. Misses are ignored.
func (r *Registry) UpdateTab(ctx context.Context, clientID schema.ClientID, tabID schema.TabID, update TabUpdate) {
	clientID = clientKey(clientID)
	tab, ok := r.replace(ctx, clientID, tabID, func(s State) (State, Tab, bool) {
		return WithUpdate(s, clientID, tabID, update)
	})
	if ok {
		logx.WithClientTab(ctx, clientID, tabID).Trace("registry tab updated", "loading", tab.Loading, "errored", tab.Errored)
	}
}

// SetTitle renames a tab, applying the configured length limit. Misses are
// ignored.
func (r *Registry) SetTitle(ctx context.Context, clientID schema.ClientID, tabID schema.TabID, title schema.TabTitle) {
	clientID = clientKey(clientID)
	title = schema.TabTitle(formatTitle(string(title), r.cfg.TitleMax, r.cfg.TitleSuffix))
	tab, ok := r.replace(ctx, clientID, tabID, func(s State) (State, Tab, bool) {
		return WithTitle(s, clientID, tabID, title)
	})
	if ok {
		logx.WithClientTab(ctx, clientID, tabID).Debug("registry tab renamed", "title", tab.Title)
	}
}

// replace publishes the state built by fn and emits an updated event.
func (r *Registry) replace(ctx context.Context, clientID schema.ClientID, tabID schema.TabID, fn func(State) (State, Tab, bool)) (Tab, bool) {
	r.mu.Lock()
	next, tab, ok := fn(r.Snapshot())
	if ok {
		r.state.Store(&next)
	}
	selected := next.Selected[clientID]
	r.mu.Unlock()

	if !ok {
		logx.WithClientTab(ctx, clientID, tabID).Debug("registry tab update ignored")
		return Tab{}, false
	}
	r.emit(schema.TabEvent{
		ClientID:    clientID,
		Type:        schema.TabEventUpdated,
		Tab:         tab.Snapshot(selected == tab.ID),
		SelectedTab: selected,
	})
	return tab, true
}

// Setup replaces the lifecycle hooks of a tab. Later calls overwrite earlier ones.
func (r *Registry) Setup(ctx context.Context, clientID schema.ClientID, tabID schema.TabID, lifecycle Lifecycle) {
	clientID = clientKey(clientID)
	r.mu.Lock()
	next, _, ok := WithLifecycle(r.Snapshot(), clientID, tabID, lifecycle)
	if ok {
		r.state.Store(&next)
	}
	r.mu.Unlock()

	log := logx.WithClientTab(ctx, clientID, tabID)
	if !ok {
		log.Debug("registry lifecycle setup ignored")
		return
	}
	log.Debug("registry lifecycle setup", "before_destroy", lifecycle.OnBeforeDestroy != nil)
}

// DestroyTab removes a tab after its OnBeforeDestroy hook allowed it. It
// reports whether the tab was removed.
func (r *Registry) DestroyTab(ctx context.Context, clientID schema.ClientID, tabID schema.TabID) bool {
	clientID = clientKey(clientID)
	log := logx.WithClientTab(ctx, clientID, tabID)
	tab, ok := r.Tab(clientID, tabID)
	if !ok {
		log.Debug("registry tab destroy ignored")
		return false
	}
	if hook := tab.Lifecycle.OnBeforeDestroy; hook != nil && !hook() {
		selected, _ := r.Selected(clientID)
		r.emit(schema.TabEvent{
			ClientID:    clientID,
			Type:        schema.TabEventVetoed,
			Tab:         tab.Snapshot(selected == tab.ID),
			SelectedTab: selected,
		})
		log.Info("registry tab destroy vetoed")
		return false
	}

	r.mu.Lock()
	prev := r.Snapshot()
	next, removed, ok := WithoutTab(prev, clientID, tabID)
	if ok {
		r.state.Store(&next)
	}
	r.mu.Unlock()
	if !ok {
		log.Debug("registry tab already destroyed")
		return false
	}

	prevSelected, _ := prev.SelectedOf(clientID)
	selected, hasSelected := next.SelectedOf(clientID)
	r.emit(schema.TabEvent{
		ClientID:    clientID,
		Type:        schema.TabEventDestroyed,
		Tab:         removed.Snapshot(false),
		SelectedTab: selected,
	})
	if prevSelected == tabID && hasSelected {
		if focused, _, ok := next.Find(clientID, selected); ok {
			r.emit(schema.TabEvent{
				ClientID:    clientID,
				Type:        schema.TabEventSelected,
				Tab:         focused.Snapshot(true),
				SelectedTab: selected,
			})
			if focused.Lifecycle.OnFocus != nil {
				focused.Lifecycle.OnFocus()
			}
		}
	}
	log.Info("registry tab destroyed", "selected", selected)
	return true
}

// SetSelectedTab records focus for the client. The id is not validated;
// hooks fire only for tabs that exist.
func (r *Registry) SetSelectedTab(ctx context.Context, clientID schema.ClientID, tabID schema.TabID) {
	clientID = clientKey(clientID)
	r.mu.Lock()
	prev := r.Snapshot()
	next := WithSelection(prev, clientID, tabID)
	r.state.Store(&next)
	r.mu.Unlock()

	log := logx.WithClientTab(ctx, clientID, tabID)
	prevID, hadPrev := prev.SelectedOf(clientID)
	if hadPrev && prevID == tabID {
		log.Trace("registry tab already selected")
		return
	}
	if hadPrev {
		if blurred, _, ok := next.Find(clientID, prevID); ok && blurred.Lifecycle.OnBlur != nil {
			blurred.Lifecycle.OnBlur()
		}
	}
	focused, _, ok := next.Find(clientID, tabID)
	if !ok {
		log.Debug("registry selected unknown tab")
		r.emit(schema.TabEvent{
			ClientID:    clientID,
			Type:        schema.TabEventSelected,
			Tab:         schema.TabSnapshot{ID: tabID, Selected: true},
			SelectedTab: tabID,
		})
		return
	}
	r.emit(schema.TabEvent{
		ClientID:    clientID,
		Type:        schema.TabEventSelected,
		Tab:         focused.Snapshot(true),
		SelectedTab: tabID,
	})
	if focused.Lifecycle.OnFocus != nil {
		focused.Lifecycle.OnFocus()
	}
	log.Info("registry tab selected")
}

func (r *Registry) emit(event schema.TabEvent) {
	if r.sink == nil {
		return
	}
	r.sink.OnTabEvent(event)
}

// clientKey normalizes a client id for lookups. Invalid ids come back trimmed
// and simply miss.
func clientKey(clientID schema.ClientID) schema.ClientID {
	if normalized, err := schema.NormalizeClientID(clientID); err == nil {
		return normalized
	}
	return schema.ClientID(strings.TrimSpace(string(clientID)))
}

func formatTitle(title string, max int, suffix string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if max <= 0 || len(runes) <= max {
		return title
	}
	cut := max - len([]rune(suffix))
	if cut < 1 {
		return string(runes[:max])
	}
	return string(runes[:cut]) + suffix
}
