package schema

import "time"

// DocumentSnapshot is the editable document of a session.
type DocumentSnapshot struct {
	Language   Language  `json:"language"`
	SourceText string    `json:"source_text"`
	Theme      ThemeName `json:"theme"`
}

// ExecutionResult is the normalized outcome of a remote run.
type ExecutionResult struct {
	OutputLines []string `json:"output_lines"`
	HasError    bool     `json:"has_error"`
}

// ChatTurn is one answered chat query.
type ChatTurn struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// OperationStatus is the lifecycle view of one operation.
type OperationStatus struct {
	State     OperationState `json:"state"`
	Seq       uint64         `json:"seq"`
	Message   string         `json:"message,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	SettledAt time.Time      `json:"settled_at,omitzero"`
}

// Pending reports whether a call is in flight.
func (s OperationStatus) Pending() bool {
	return s.State == OperationPending
}

// Notice is a transient, dismissible failure notification.
type Notice struct {
	ID          NoticeID      `json:"id"`
	Operation   OperationName `json:"operation,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
}

// SessionSnapshot is a read-only copy of a session for presentation layers.
type SessionSnapshot struct {
	ID               SessionID                         `json:"id"`
	Document         DocumentSnapshot                  `json:"document"`
	Output           *ExecutionResult                  `json:"output,omitempty"`
	GeneratedCode    string                            `json:"generated_code"`
	ChatHistory      []ChatTurn                        `json:"chat_history"`
	QueryInput       string                            `json:"query_input"`
	Operations       map[OperationName]OperationStatus `json:"operations"`
	Notices          []Notice                          `json:"notices"`
	ImportInProgress bool                              `json:"import_in_progress"`
	CreatedAt        time.Time                         `json:"created_at"`
	UpdatedAt        time.Time                         `json:"updated_at"`
}

// Status returns the status of the named operation, idle when unknown.
func (s SessionSnapshot) Status(op OperationName) OperationStatus {
	if status, ok := s.Operations[op]; ok {
		return status
	}
	return OperationStatus{State: OperationIdle}
}

// LanguageInfo describes a supported language for selection lists.
type LanguageInfo struct {
	Language Language `json:"language"`
	Version  string   `json:"version"`
	Snippet  string   `json:"snippet"`
}

// Runtime is an execution runtime advertised by the execution service.
type Runtime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases,omitempty"`
}
