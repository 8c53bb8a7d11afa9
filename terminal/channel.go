package terminal

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/channeldeck/channel"
	"pkt.systems/channeldeck/internal/logx"
	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

// ChannelDeps are the shared collaborators of every terminal instance.
type ChannelDeps struct {
	Transport Transport
	Clipboard Clipboard
	// NewSurface returns the rendering surface for a fresh session. Nil
	// records output in memory only.
	NewSurface func(tab channel.Tab) Surface
	Observer   func(schema.SessionEvent)
	Logger     pslog.Logger
}

// Channel is the built-in terminal channel.
type Channel struct {
	cfg  schema.TerminalConfig
	deps ChannelDeps
}

// NewChannel constructs the terminal channel.
func NewChannel(cfg schema.TerminalConfig, deps ChannelDeps) (*Channel, error) {
	if deps.Transport == nil {
		return nil, errors.New("terminal transport is required")
	}
	return &Channel{cfg: schema.NormalizeTerminalConfig(cfg), deps: deps}, nil
}

// ID implements channel.Channel.
func (c *Channel) ID() schema.ChannelID {
	return schema.ChannelTerminal
}

// Mount implements channel.Channel. The handshake runs in the background; use
// Instance.Wait to observe its outcome.
func (c *Channel) Mount(ctx context.Context, tab channel.Tab) (channel.Instance, error) {
	log := c.deps.Logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log = logx.WithChannel(log, schema.ChannelTerminal).With("client", tab.ClientID(), "tab", tab.ID())
	inst := &Instance{channel: c, tab: tab, log: log, ctx: logx.Detach(ctx)}
	if err := inst.launch(); err != nil {
		return nil, err
	}
	return inst, nil
}

// Instance is a terminal channel mounted into a tab. It owns the current
// session and replaces it on reconnect.
type Instance struct {
	channel *Channel
	tab     channel.Tab
	log     pslog.Logger
	ctx     context.Context

	mu       sync.Mutex
	session  *Session
	surface  Surface
	ready    chan struct{}
	err      error
	disposed bool
}

func (i *Instance) launch() error {
	var surface Surface
	if i.channel.deps.NewSurface != nil {
		surface = i.channel.deps.NewSurface(i.tab)
	}
	if surface == nil {
		surface = NewWriterSurface(nil, i.channel.cfg.ScrollbackLines)
	}
	session, err := NewSession(i.ctx, i.channel.cfg, i.tab.ClientID(), i.tab.ID(), Deps{
		Transport: i.channel.deps.Transport,
		Tab:       i.tab,
		Surface:   surface,
		Clipboard: i.channel.deps.Clipboard,
		Logger:    i.log,
		Observer:  i.channel.deps.Observer,
	})
	if err != nil {
		return err
	}
	ready := make(chan struct{})
	i.mu.Lock()
	if i.disposed {
		i.mu.Unlock()
		return schema.ErrSessionClosed
	}
	i.session = session
	i.surface = surface
	i.ready = ready
	i.err = nil
	i.mu.Unlock()
	i.tab.SetContent(surface)

	go func() {
		err := session.Start(i.ctx)
		if err != nil {
			i.log.Warn("terminal start failed", "err", err)
		}
		i.mu.Lock()
		if i.session == session {
			i.err = err
		}
		i.mu.Unlock()
		close(ready)
	}()
	return nil
}

// Session returns the current session.
func (i *Instance) Session() *Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session
}

// Surface returns the current session's surface.
func (i *Instance) Surface() Surface {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.surface
}

// Wait blocks until the current session finished starting and returns the
// start error.
func (i *Instance) Wait(ctx context.Context) error {
	i.mu.Lock()
	ready := i.ready
	i.mu.Unlock()
	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Reconnect implements channel.Instance: the old session is torn down and a
// fresh one is started on the same tab.
func (i *Instance) Reconnect(ctx context.Context) error {
	old := i.Session()
	if old != nil {
		if err := old.Reconnect(ctx); err != nil && !errors.Is(err, schema.ErrSessionClosed) {
			return err
		}
	}
	i.tab.SetErrored(false)
	i.log.Info("terminal reconnecting")
	return i.launch()
}

// Dispose implements channel.Instance.
func (i *Instance) Dispose() {
	i.mu.Lock()
	if i.disposed {
		i.mu.Unlock()
		return
	}
	i.disposed = true
	session := i.session
	i.mu.Unlock()
	if session != nil {
		session.Dispose()
	}
}
