package channeldeck

import (
	"pkt.systems/channeldeck/core"
	"pkt.systems/channeldeck/schema"
)

// SessionSink receives terminal session transitions.
type SessionSink interface {
	OnSessionEvent(event schema.SessionEvent)
}

// EventSink receives every host-facing event.
type EventSink interface {
	core.EventSink
	SessionSink
}

// Fanout forwards events to every sink in order.
type Fanout struct {
	sinks []EventSink
}

// NewFanout builds a fanout over the non-nil sinks.
func NewFanout(sinks ...EventSink) Fanout {
	out := Fanout{sinks: make([]EventSink, 0, len(sinks))}
	for _, sink := range sinks {
		if sink != nil {
			out.sinks = append(out.sinks, sink)
		}
	}
	return out
}

// OnTabEvent implements core.EventSink.
func (f Fanout) OnTabEvent(event schema.TabEvent) {
	for _, sink := range f.sinks {
		sink.OnTabEvent(event)
	}
}

// OnSessionEvent implements SessionSink.
func (f Fanout) OnSessionEvent(event schema.SessionEvent) {
	for _, sink := range f.sinks {
		sink.OnSessionEvent(event)
	}
}
