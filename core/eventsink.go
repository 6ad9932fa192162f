package core

import "pkt.systems/codebench/schema"

// EventSink receives session events from the core service.
type EventSink interface {
	OnSessionEvent(event schema.SessionEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(event schema.SessionEvent)

// OnSessionEvent calls f.
func (f EventSinkFunc) OnSessionEvent(event schema.SessionEvent) {
	f(event)
}
