package schema

// SessionEventType describes a session lifecycle or state change.
type SessionEventType string

const (
	// SessionEventCreated indicates a session was opened.
	SessionEventCreated SessionEventType = "created"
	// SessionEventUpdated indicates document, buffer or notice state changed.
	SessionEventUpdated SessionEventType = "updated"
	// SessionEventOperation indicates an operation status change.
	SessionEventOperation SessionEventType = "operation"
	// SessionEventReset indicates a session was reset to defaults.
	SessionEventReset SessionEventType = "reset"
	// SessionEventClosed indicates a session was closed.
	SessionEventClosed SessionEventType = "closed"
)

// SessionEvent carries a state change and the snapshot after it.
type SessionEvent struct {
	SessionID SessionID
	Type      SessionEventType
	Operation OperationName
	Snapshot  SessionSnapshot
}
