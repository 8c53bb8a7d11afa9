package core

import "pkt.systems/channeldeck/schema"

// EventSink receives tab events from the registry.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
}
