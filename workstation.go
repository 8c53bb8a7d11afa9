// Package channeldeck ties the tab registry, the channel catalog and the
// layout store together into a host-facing workstation.
package channeldeck

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/channeldeck/channel"
	"pkt.systems/channeldeck/core"
	"pkt.systems/channeldeck/internal/logx"
	"pkt.systems/channeldeck/internal/persist"
	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

// Config configures a workstation.
type Config struct {
	Registry schema.RegistryConfig
}

// Deps captures dependencies required to build a workstation.
type Deps struct {
	Catalog *channel.Catalog
	// Sink receives tab events. Session events are wired by the channels.
	Sink    core.EventSink
	Layouts *persist.Store
	Logger  pslog.Logger
}

type instanceKey struct {
	client schema.ClientID
	tab    schema.TabID
}

// Workstation mounts channels into registry tabs and owns the mounted instances.
type Workstation struct {
	registry *core.Registry
	catalog  *channel.Catalog
	layouts  *persist.Store
	log      pslog.Logger

	mu        sync.Mutex
	instances map[instanceKey]channel.Instance
}

// New constructs a workstation.
func New(cfg Config, deps Deps) (*Workstation, error) {
	if deps.Catalog == nil {
		return nil, errors.New("channel catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	registry, err := core.NewRegistry(cfg.Registry, core.RegistryDeps{EventSink: deps.Sink, Logger: logger})
	if err != nil {
		return nil, err
	}
	return &Workstation{
		registry:  registry,
		catalog:   deps.Catalog,
		layouts:   deps.Layouts,
		log:       logger,
		instances: make(map[instanceKey]channel.Instance),
	}, nil
}

// Registry exposes the tab registry for read access.
func (w *Workstation) Registry() *core.Registry {
	return w.registry
}

// OpenTab creates a tab for the channel, mounts the channel into it and
// selects it. The tab id is returned even when mounting failed; the tab is
// then marked errored.
func (w *Workstation) OpenTab(ctx context.Context, clientID schema.ClientID, channelID schema.ChannelID, title schema.TabTitle) (schema.TabID, error) {
	ch, err := w.catalog.Lookup(channelID)
	if err != nil {
		return "", err
	}
	tabID, err := w.registry.CreateTab(ctx, clientID, core.TabData{ChannelID: ch.ID(), Title: title, Loading: true})
	if err != nil {
		return "", err
	}
	clientID, _ = schema.NormalizeClientID(clientID)
	log := logx.WithClientTab(ctx, clientID, tabID)
	ctx = logx.ContextWithClientTabLogger(ctx, log, clientID, tabID)

	inst, err := ch.Mount(ctx, &tabHandle{w: w, clientID: clientID, tabID: tabID})
	if err != nil {
		log.Warn("workstation mount failed", "err", err)
		w.registry.UpdateTab(ctx, clientID, tabID, core.TabUpdate{Loading: core.Bool(false), Errored: core.Bool(true)})
		return tabID, err
	}
	if _, ok := w.registry.Tab(clientID, tabID); !ok {
		inst.Dispose()
		return tabID, schema.ErrTabNotFound
	}
	w.mu.Lock()
	w.instances[instanceKey{client: clientID, tab: tabID}] = inst
	w.mu.Unlock()
	w.registry.SetSelectedTab(ctx, clientID, tabID)
	log.Info("workstation tab opened", "channel", ch.ID())
	return tabID, nil
}

// CloseTab destroys the tab through the registry and disposes its instance
// when the destruction was allowed.
func (w *Workstation) CloseTab(ctx context.Context, clientID schema.ClientID, tabID schema.TabID) bool {
	if !w.registry.DestroyTab(ctx, clientID, tabID) {
		return false
	}
	key := instanceKey{client: clientID, tab: tabID}
	w.mu.Lock()
	inst := w.instances[key]
	delete(w.instances, key)
	w.mu.Unlock()
	if inst != nil {
		inst.Dispose()
	}
	logx.WithClientTab(ctx, clientID, tabID).Info("workstation tab closed")
	return true
}

// Select focuses a tab.
func (w *Workstation) Select(ctx context.Context, clientID schema.ClientID, tabID schema.TabID) {
	w.registry.SetSelectedTab(ctx, clientID, tabID)
}

// Reconnect replaces the remote session of the tab's channel instance.
func (w *Workstation) Reconnect(ctx context.Context, clientID schema.ClientID, tabID schema.TabID) error {
	inst, ok := w.Instance(clientID, tabID)
	if !ok {
		return schema.ErrTabNotFound
	}
	return inst.Reconnect(ctx)
}

// Instance returns the channel instance mounted into the tab.
func (w *Workstation) Instance(clientID schema.ClientID, tabID schema.TabID) (channel.Instance, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	inst, ok := w.instances[instanceKey{client: clientID, tab: tabID}]
	return inst, ok
}

// CloseAll closes every tab of the client. Vetoed tabs stay open; their count
// is returned.
func (w *Workstation) CloseAll(ctx context.Context, clientID schema.ClientID) int {
	vetoed := 0
	for _, tab := range w.registry.Tabs(clientID) {
		if !w.CloseTab(ctx, clientID, tab.ID) {
			vetoed++
		}
	}
	return vetoed
}

// SaveLayout stores the client's tab order, titles and selection.
func (w *Workstation) SaveLayout(clientID schema.ClientID) error {
	if w.layouts == nil {
		return errors.New("layout store is not configured")
	}
	selected, _ := w.registry.Selected(clientID)
	layout := persist.ClientLayout{Selected: -1}
	for i, tab := range w.registry.Tabs(clientID) {
		layout.Tabs = append(layout.Tabs, persist.LayoutTab{ChannelID: tab.ChannelID, Title: tab.Title})
		if tab.ID == selected {
			layout.Selected = i
		}
	}
	return w.layouts.Save(clientID, layout)
}

// RestoreLayout reopens the client's saved tabs with fresh channel instances.
// Tabs whose channel is no longer offered are skipped.
func (w *Workstation) RestoreLayout(ctx context.Context, clientID schema.ClientID) ([]schema.TabID, error) {
	if w.layouts == nil {
		return nil, errors.New("layout store is not configured")
	}
	layout, ok, err := w.layouts.Load(clientID)
	if err != nil || !ok {
		return nil, err
	}
	log := logx.WithClient(ctx, clientID)
	var opened []schema.TabID
	var selected schema.TabID
	for i, tab := range layout.Tabs {
		id, err := w.OpenTab(ctx, clientID, tab.ChannelID, tab.Title)
		if errors.Is(err, schema.ErrUnknownChannel) {
			log.Warn("workstation restore skipped tab", "channel", tab.ChannelID)
			continue
		}
		if id == "" {
			return opened, err
		}
		opened = append(opened, id)
		if i == layout.Selected {
			selected = id
		}
	}
	if selected != "" {
		w.registry.SetSelectedTab(ctx, clientID, selected)
	}
	log.Info("workstation layout restored", "tabs", len(opened))
	return opened, nil
}

// tabHandle binds a mounted instance to its registry entry.
type tabHandle struct {
	w        *Workstation
	clientID schema.ClientID
	tabID    schema.TabID
}

func (t *tabHandle) ClientID() schema.ClientID { return t.clientID }

func (t *tabHandle) ID() schema.TabID { return t.tabID }

func (t *tabHandle) SetLoading(loading bool) {
	t.update(core.TabUpdate{Loading: core.Bool(loading)})
}

func (t *tabHandle) SetErrored(errored bool) {
	t.update(core.TabUpdate{Errored: core.Bool(errored)})
}

func (t *tabHandle) SetTitle(title schema.TabTitle) {
	t.w.registry.SetTitle(context.Background(), t.clientID, t.tabID, title)
}

func (t *tabHandle) SetContent(content any) {
	t.update(core.TabUpdate{Content: core.ContentRef(content)})
}

func (t *tabHandle) Setup(lifecycle core.Lifecycle) {
	t.w.registry.Setup(context.Background(), t.clientID, t.tabID, lifecycle)
}

func (t *tabHandle) Close() bool {
	return t.w.CloseTab(context.Background(), t.clientID, t.tabID)
}

func (t *tabHandle) update(update core.TabUpdate) {
	t.w.registry.UpdateTab(context.Background(), t.clientID, t.tabID, update)
}
