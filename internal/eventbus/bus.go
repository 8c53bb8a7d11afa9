package eventbus

import (
	"context"
	"sync"

	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTab carries tab lifecycle updates.
	EventTab EventType = "tab"
	// EventSession carries terminal session state transitions.
	EventSession EventType = "session"
)

// Event is a host-facing notification for one client.
type Event struct {
	Type    EventType
	Tab     schema.TabEvent
	Session schema.SessionEvent
}

// Bus fans events out to per-client subscribers. Publishing never blocks;
// events for a full subscriber are dropped.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.ClientID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.ClientID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the client and returns a channel + cancel.
func (b *Bus) Subscribe(clientID schema.ClientID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	clientSubs := b.subs[clientID]
	if clientSubs == nil {
		clientSubs = make(map[chan Event]struct{})
		b.subs[clientID] = clientSubs
	}
	clientSubs[ch] = struct{}{}
	count := len(clientSubs)
	b.mu.Unlock()
	b.log.With("client", clientID).Debug("eventbus subscribe", "subs", count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[clientID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, clientID)
				}
			}
			close(ch)
			b.mu.Unlock()
			b.log.With("client", clientID).Debug("eventbus unsubscribe")
		})
	}
}

// OnTabEvent publishes a tab event.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(event.ClientID, Event{Type: EventTab, Tab: event})
}

// OnSessionEvent publishes a session event.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	b.publish(event.ClientID, Event{Type: EventSession, Session: event})
}

func (b *Bus) publish(clientID schema.ClientID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	clientSubs := b.subs[clientID]
	if len(clientSubs) == 0 {
		return
	}
	dropped := 0
	for sub := range clientSubs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.With("client", clientID).Trace("eventbus dropped", "count", dropped)
	}
}
