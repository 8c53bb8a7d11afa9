package eventbus

import (
	"testing"
	"time"

	"pkt.systems/channeldeck/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("agent-1")
	defer cancel()

	event := schema.TabEvent{ClientID: "agent-1", Type: schema.TabEventCreated, Tab: schema.TabSnapshot{ID: "tab1"}}
	bus.OnTabEvent(event)

	select {
	case got := <-ch:
		if got.Type != EventTab {
			t.Fatalf("expected tab event, got %v", got.Type)
		}
		if got.Tab.ClientID != event.ClientID || got.Tab.Tab.ID != "tab1" {
			t.Fatalf("unexpected payload: %+v", got.Tab)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestSessionEventsAreScopedToClient(t *testing.T) {
	bus := New(nil)
	mine, cancelMine := bus.Subscribe("agent-1")
	defer cancelMine()
	other, cancelOther := bus.Subscribe("agent-2")
	defer cancelOther()

	bus.OnSessionEvent(schema.SessionEvent{ClientID: "agent-1", TerminalID: "t-1", State: schema.SessionConnected})

	select {
	case got := <-mine:
		if got.Type != EventSession || got.Session.State != schema.SessionConnected {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("unexpected event for other client: %+v", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("agent-1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	bus.OnTabEvent(schema.TabEvent{ClientID: "agent-1"})
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("agent-1")
	defer cancel()

	bus.OnTabEvent(schema.TabEvent{ClientID: "agent-1"})
	done := make(chan struct{})
	go func() {
		bus.OnTabEvent(schema.TabEvent{ClientID: "agent-1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}
