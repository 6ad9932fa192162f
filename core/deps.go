package core

import (
	"time"

	"pkt.systems/pslog"
)

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Executor  Executor
	Generator Generator
	EventSink EventSink
	Logger    pslog.Logger
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}
