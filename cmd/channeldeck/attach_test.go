package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"pkt.systems/channeldeck/internal/appconfig"
	"pkt.systems/channeldeck/internal/seqcodec"
	"pkt.systems/channeldeck/schema"
	"pkt.systems/channeldeck/terminal"
	"pkt.systems/channeldeck/transport"
	"pkt.systems/channeldeck/transport/transporttest"
)

func TestDeckDrivesTerminalTabs(t *testing.T) {
	srv := newTerminalServer(t)
	d, out := newTestDeck(t, srv)
	ctx := context.Background()

	first := openAndWait(t, d)
	if !strings.Contains(out.String(), "welcome") {
		t.Fatalf("expected seeded scroll-back on screen, got %q", out.String())
	}
	if d.apply(ctx, keyStep{input: []byte("ls\r")}) {
		t.Fatalf("input must not detach")
	}
	var sent schema.SendDataRequest
	for _, env := range srv.Seen() {
		if env.Method == terminal.MethodData {
			if err := json.Unmarshal(env.Data, &sent); err != nil {
				t.Fatalf("decode data: %v", err)
			}
		}
	}
	if sent.Sequence != 1 || sent.TerminalData != seqcodec.Encode([]byte("ls\r")) {
		t.Fatalf("unexpected data request %+v", sent)
	}

	d.apply(ctx, keyStep{action: actionNewTab})
	tabs := d.ws.Registry().Tabs("agent-1")
	if len(tabs) != 2 {
		t.Fatalf("expected two tabs, got %d", len(tabs))
	}
	second := tabs[1].ID
	waitInstance(t, d, second)
	if got, _ := d.ws.Registry().Selected("agent-1"); got != second {
		t.Fatalf("expected new tab selected")
	}
	d.apply(ctx, keyStep{action: actionPrevTab})
	if got, _ := d.ws.Registry().Selected("agent-1"); got != first {
		t.Fatalf("expected first tab selected after cycling back")
	}

	if !d.apply(ctx, keyStep{action: actionDetach}) {
		t.Fatalf("expected detach")
	}
	d.shutdown()
	if n := len(d.ws.Registry().Tabs("agent-1")); n != 0 {
		t.Fatalf("expected tabs closed on shutdown, got %d", n)
	}
	closes := 0
	for _, env := range srv.Seen() {
		if env.Method == terminal.MethodClose {
			closes++
		}
	}
	if closes != 2 {
		t.Fatalf("expected two close calls, got %d", closes)
	}
}

func TestDeckLoopStopsOnDetachAndLastTab(t *testing.T) {
	srv := newTerminalServer(t)
	d, _ := newTestDeck(t, srv)
	ctx := context.Background()
	events, cancel := d.bus.Subscribe("agent-1")
	defer cancel()

	input := make(chan []byte, 1)
	input <- []byte{prefixKey, 'q'}
	if err := d.loop(ctx, input, events, nil); err != nil {
		t.Fatalf("loop: %v", err)
	}

	id := openAndWait(t, d)
	if err := srv.Push(schema.TerminalCloseEvent("t-1"), nil); err != nil {
		t.Fatalf("push: %v", err)
	}
	loopCtx, loopCancel := context.WithTimeout(ctx, 2*time.Second)
	defer loopCancel()
	if err := d.loop(loopCtx, make(chan []byte), events, nil); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if _, ok := d.ws.Registry().Tab("agent-1", id); ok {
		t.Fatalf("expected remote close to remove the tab")
	}
}

func newTerminalServer(t *testing.T) *transporttest.Server {
	t.Helper()
	srv := transporttest.NewServer()
	t.Cleanup(srv.Close)
	srv.Handle(terminal.MethodHandshake, func(json.RawMessage) (any, error) {
		return schema.HandshakeResponse{ID: "t-1"}, nil
	})
	srv.Handle(terminal.MethodConnect, func(json.RawMessage) (any, error) {
		return schema.ConnectResponse{Content: []string{"welcome"}}, nil
	})
	srv.Handle(terminal.MethodData, func(json.RawMessage) (any, error) {
		return schema.SendDataResponse{Accepted: true}, nil
	})
	srv.Handle(terminal.MethodClose, func(json.RawMessage) (any, error) {
		return schema.CloseConnectionResponse{Accepted: true}, nil
	})
	return srv
}

func newTestDeck(t *testing.T, srv *transporttest.Server) (*deck, *lockedBuffer) {
	t.Helper()
	cfg, err := appconfig.Load(writeTestConfig(t, t.TempDir(), srv.URL()))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	client, err := transport.Dial(context.Background(), cfg.TransportSettings(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	out := &lockedBuffer{}
	d, err := newDeck(cfg, "agent-1", client, out, nil)
	if err != nil {
		t.Fatalf("new deck: %v", err)
	}
	return d, out
}

func openAndWait(t *testing.T, d *deck) schema.TabID {
	t.Helper()
	id, err := d.ws.OpenTab(context.Background(), "agent-1", schema.ChannelTerminal, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitInstance(t, d, id)
	return id
}

func waitInstance(t *testing.T, d *deck, id schema.TabID) {
	t.Helper()
	inst := d.instance(id)
	if inst == nil {
		t.Fatalf("expected terminal instance for %s", id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := inst.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
