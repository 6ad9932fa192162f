package schema

// SessionID identifies an editing session.
type SessionID string

// NoticeID identifies a dismissible notice.
type NoticeID string

// Language identifies a supported source language.
type Language string

// ThemeName identifies an editor theme.
type ThemeName string

// OperationName identifies one of the asynchronous remote operations.
type OperationName string

const (
	// OperationRun executes the document source remotely.
	OperationRun OperationName = "run"
	// OperationGenerate asks the inference service for code.
	OperationGenerate OperationName = "generate"
	// OperationQuery sends a free-text chat query.
	OperationQuery OperationName = "query"
)

// Operations lists every operation name in display order.
func Operations() []OperationName {
	return []OperationName{OperationRun, OperationGenerate, OperationQuery}
}

// OperationState is the lifecycle state of an operation.
type OperationState string

const (
	// OperationIdle means the operation has not been invoked since the last reset.
	OperationIdle OperationState = "idle"
	// OperationPending means a remote call is in flight.
	OperationPending OperationState = "pending"
	// OperationSucceeded means the latest call settled successfully.
	OperationSucceeded OperationState = "succeeded"
	// OperationFailed means the latest call settled with an error.
	OperationFailed OperationState = "failed"
)

// Settled reports whether the state is a settled outcome.
func (s OperationState) Settled() bool {
	return s == OperationSucceeded || s == OperationFailed
}

// GeneratePurpose routes a generation request to a model.
type GeneratePurpose string

const (
	// PurposeCode asks for generated source code.
	PurposeCode GeneratePurpose = "code"
	// PurposeChat answers a free-text query.
	PurposeChat GeneratePurpose = "chat"
)
