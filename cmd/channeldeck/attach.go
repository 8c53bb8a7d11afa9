package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/channeldeck"
	"pkt.systems/channeldeck/channel"
	"pkt.systems/channeldeck/internal/appconfig"
	"pkt.systems/channeldeck/internal/clipboard"
	"pkt.systems/channeldeck/internal/eventbus"
	"pkt.systems/channeldeck/schema"
	"pkt.systems/channeldeck/terminal"
	"pkt.systems/channeldeck/transport"
	"pkt.systems/pslog"
)

const shutdownTimeout = 3 * time.Second

type attachOptions struct {
	cfgPath  string
	clientID string
	restore  bool
}

func newAttachCmd() *cobra.Command {
	var opts attachOptions
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Open terminal tabs on the configured backend",
		Long: "Open terminal tabs on the configured backend.\n\n" +
			"Keys after Ctrl-]: c new tab, n/p next/previous tab, x close tab,\n" +
			"r reconnect, v paste clipboard, d or q detach, Ctrl-] literal Ctrl-].",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAttach(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&opts.clientID, "client", "", "client id (default: $USER)")
	cmd.Flags().BoolVar(&opts.restore, "restore", false, "reopen the tabs saved at the last detach")
	return cmd
}

func runAttach(ctx context.Context, opts attachOptions, in io.Reader, out io.Writer) error {
	logger := pslog.Ctx(ctx)
	cfg, err := appconfig.Load(opts.cfgPath)
	if err != nil {
		return err
	}
	clientID, err := resolveClientID(opts.clientID)
	if err != nil {
		return err
	}
	logger = logger.With("client", clientID)

	client, err := transport.Dial(ctx, cfg.TransportSettings(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	logger.Info("attach connected", "endpoint", cfg.Endpoint())

	d, err := newDeck(cfg, clientID, client, out, logger)
	if err != nil {
		return err
	}
	events, cancel := d.bus.Subscribe(clientID)
	defer cancel()

	if opts.restore {
		if _, err := d.ws.RestoreLayout(ctx, clientID); err != nil {
			logger.Warn("attach restore failed", "err", err)
		}
	}
	if len(d.ws.Registry().Tabs(clientID)) == 0 {
		if _, err := d.ws.OpenTab(ctx, clientID, schema.ChannelTerminal, ""); err != nil {
			logger.Warn("attach open tab failed", "err", err)
		}
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return err
		}
		defer func() { _ = term.Restore(int(f.Fd()), state) }()
	}

	err = d.loop(ctx, readChunks(in), events, client.Done())
	d.shutdown()
	return err
}

// deck is the interactive state of one attach run.
type deck struct {
	ws     *channeldeck.Workstation
	bus    *eventbus.Bus
	screen *screen
	client schema.ClientID
	keys   chordReader
	log    pslog.Logger
}

func newDeck(cfg appconfig.Config, clientID schema.ClientID, tr terminal.Transport, out io.Writer, logger pslog.Logger) (*deck, error) {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	bus := eventbus.New(logger)
	scr := newScreen(out, cfg.Terminal.ScrollbackLines)
	sink := channeldeck.NewFanout(bus, scr)
	termChannel, err := terminal.NewChannel(cfg.TerminalSettings(), terminal.ChannelDeps{
		Transport:  tr,
		Clipboard:  clipboard.New(),
		NewSurface: scr.NewSurface,
		Observer:   sink.OnSessionEvent,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	catalog, err := channel.NewCatalog(termChannel)
	if err != nil {
		return nil, err
	}
	layouts, err := openLayouts(cfg, logger)
	if err != nil {
		return nil, err
	}
	ws, err := channeldeck.New(channeldeck.Config{Registry: cfg.RegistrySettings()}, channeldeck.Deps{
		Catalog: catalog,
		Sink:    sink,
		Layouts: layouts,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return &deck{ws: ws, bus: bus, screen: scr, client: clientID, log: logger}, nil
}

func (d *deck) loop(ctx context.Context, input <-chan []byte, events <-chan eventbus.Event, done <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return errors.New("connection lost")
		case chunk, ok := <-input:
			if !ok {
				return nil
			}
			for _, step := range d.keys.Feed(chunk) {
				if d.apply(ctx, step) {
					return nil
				}
			}
		case ev := <-events:
			d.logEvent(ev)
			if ev.Type == eventbus.EventTab && ev.Tab.Type == schema.TabEventDestroyed && len(d.ws.Registry().Tabs(d.client)) == 0 {
				d.log.Info("attach last tab closed")
				return nil
			}
		}
	}
}

// apply runs one key step and reports whether to detach.
func (d *deck) apply(ctx context.Context, step keyStep) bool {
	if step.action == actionNone {
		if len(step.input) == 0 {
			return false
		}
		if session := d.session(); session != nil {
			if err := session.Input(ctx, step.input); err != nil {
				d.log.Debug("attach input dropped", "err", err)
			}
		}
		return false
	}
	switch step.action {
	case actionNewTab:
		if _, err := d.ws.OpenTab(ctx, d.client, schema.ChannelTerminal, ""); err != nil {
			d.log.Warn("attach open tab failed", "err", err)
		}
	case actionNextTab:
		d.cycle(ctx, 1)
	case actionPrevTab:
		d.cycle(ctx, -1)
	case actionCloseTab:
		d.closeSelected(ctx)
	case actionReconnect:
		if tabID, ok := d.ws.Registry().Selected(d.client); ok {
			if err := d.ws.Reconnect(ctx, d.client, tabID); err != nil {
				d.log.Warn("attach reconnect failed", "err", err)
			}
		}
	case actionPaste:
		if session := d.session(); session != nil {
			if err := session.Paste(ctx); err != nil {
				d.log.Debug("attach paste skipped", "err", err)
			}
		}
	case actionDetach:
		return true
	}
	return false
}

func (d *deck) instance(tabID schema.TabID) *terminal.Instance {
	inst, ok := d.ws.Instance(d.client, tabID)
	if !ok {
		return nil
	}
	termInst, _ := inst.(*terminal.Instance)
	return termInst
}

func (d *deck) session() *terminal.Session {
	tabID, ok := d.ws.Registry().Selected(d.client)
	if !ok {
		return nil
	}
	if inst := d.instance(tabID); inst != nil {
		return inst.Session()
	}
	return nil
}

func (d *deck) cycle(ctx context.Context, step int) {
	tabs := d.ws.Registry().Tabs(d.client)
	if len(tabs) == 0 {
		return
	}
	selected, _ := d.ws.Registry().Selected(d.client)
	idx := 0
	for i, tab := range tabs {
		if tab.ID == selected {
			idx = i
			break
		}
	}
	idx = (idx + step + len(tabs)) % len(tabs)
	d.ws.Select(ctx, d.client, tabs[idx].ID)
}

// closeSelected asks the remote to close the selected terminal. A session
// that never connected is dropped locally.
func (d *deck) closeSelected(ctx context.Context) {
	tabID, ok := d.ws.Registry().Selected(d.client)
	if !ok {
		return
	}
	inst := d.instance(tabID)
	if inst == nil || inst.Session() == nil {
		d.ws.CloseTab(ctx, d.client, tabID)
		return
	}
	err := inst.Session().Close(ctx)
	switch {
	case err == nil:
	case errors.Is(err, schema.ErrCloseRejected):
		d.screen.status(tabID, "remote refused to close the terminal")
	default:
		d.log.Debug("attach close fell back to local", "err", err)
		d.ws.CloseTab(ctx, d.client, tabID)
	}
}

func (d *deck) logEvent(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.EventTab:
		d.log.Debug("attach tab event", "type", ev.Tab.Type, "tab", ev.Tab.Tab.ID, "selected", ev.Tab.SelectedTab)
	case eventbus.EventSession:
		d.log.Debug("attach session event", "tab", ev.Session.TabID, "terminal", ev.Session.TerminalID, "state", ev.Session.State, "err", ev.Session.Err)
	}
}

// shutdown saves the layout and closes every terminal with the remote.
func (d *deck) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.ws.SaveLayout(d.client); err != nil {
		d.log.Warn("attach layout save failed", "err", err)
	}
	for _, tab := range d.ws.Registry().Tabs(d.client) {
		if inst := d.instance(tab.ID); inst != nil && inst.Session() != nil {
			if err := inst.Session().Close(ctx); err != nil {
				d.log.Debug("attach terminal close failed", "tab", tab.ID, "err", err)
			}
		}
	}
	if vetoed := d.ws.CloseAll(ctx, d.client); vetoed > 0 {
		d.log.Warn("attach tabs left open", "count", vetoed)
	}
}

func readChunks(in io.Reader) <-chan []byte {
	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		buf := make([]byte, 4096)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				out <- chunk
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
