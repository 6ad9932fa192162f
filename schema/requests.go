package schema

import "io"

// Session lifecycle.

// CreateSessionRequest describes a request to open a session.
type CreateSessionRequest struct {
	Language Language
	Theme    ThemeName
}

// CreateSessionResponse reports the new session.
type CreateSessionResponse struct {
	Session SessionSnapshot
}

// GetSessionRequest describes a request to read a session snapshot.
type GetSessionRequest struct {
	SessionID SessionID
}

// GetSessionResponse reports the session snapshot.
type GetSessionResponse struct {
	Session SessionSnapshot
}

// ListSessionsRequest describes a request to list sessions.
type ListSessionsRequest struct{}

// ListSessionsResponse reports the open session ids in creation order.
type ListSessionsResponse struct {
	Sessions []SessionID
}

// CloseSessionRequest describes a request to close a session.
type CloseSessionRequest struct {
	SessionID SessionID
}

// CloseSessionResponse reports the final snapshot of the closed session.
type CloseSessionResponse struct {
	Session SessionSnapshot
}

// ResetSessionRequest describes a request to reset a session to defaults.
type ResetSessionRequest struct {
	SessionID SessionID
}

// ResetSessionResponse reports the reset session.
type ResetSessionResponse struct {
	Session SessionSnapshot
}

// Document intents.

// SelectLanguageRequest describes a language switch.
type SelectLanguageRequest struct {
	SessionID SessionID
	Language  Language
}

// SelectLanguageResponse reports the updated session.
type SelectLanguageResponse struct {
	Session SessionSnapshot
	// SnippetLoaded is false when an import in progress kept the current text.
	SnippetLoaded bool
}

// EditSourceRequest carries an explicit edit of the document text.
type EditSourceRequest struct {
	SessionID  SessionID
	SourceText string
}

// EditSourceResponse reports the updated session.
type EditSourceResponse struct {
	Session SessionSnapshot
}

// ToggleThemeRequest describes a theme flip.
type ToggleThemeRequest struct {
	SessionID SessionID
}

// ToggleThemeResponse reports the applied theme.
type ToggleThemeResponse struct {
	Theme   ThemeName
	Session SessionSnapshot
}

// SetThemeRequest describes a request to set the theme explicitly.
type SetThemeRequest struct {
	SessionID SessionID
	Theme     ThemeName
}

// SetThemeResponse reports the applied theme.
type SetThemeResponse struct {
	Theme   ThemeName
	Session SessionSnapshot
}

// ImportFileRequest carries a selected file.
type ImportFileRequest struct {
	SessionID SessionID
	FileName  string
	Content   io.Reader
}

// ImportFileResponse reports the imported document.
type ImportFileResponse struct {
	Session   SessionSnapshot
	Extension string
	// LanguageMismatch is set when the extension belongs to a different
	// language than the one selected; the language is left unchanged.
	LanguageMismatch bool
	DetectedLanguage Language
}

// Remote operations.

// RunRequest asks to execute the document source.
type RunRequest struct {
	SessionID SessionID
}

// RunResponse reports the settled run.
type RunResponse struct {
	Session SessionSnapshot
	Status  OperationStatus
	// Accepted is false when the request was a no-op (empty source).
	Accepted bool
	// Discarded is set when the session was reset or closed while the call
	// was in flight and the result was dropped.
	Discarded bool
}

// GenerateRequest asks the inference service for code.
type GenerateRequest struct {
	SessionID SessionID
	Prompt    string
}

// GenerateResponse reports the settled generation.
type GenerateResponse struct {
	Session   SessionSnapshot
	Status    OperationStatus
	Accepted  bool
	Discarded bool
}

// SetQueryInputRequest updates the chat input buffer.
type SetQueryInputRequest struct {
	SessionID SessionID
	Text      string
}

// SetQueryInputResponse reports the updated session.
type SetQueryInputResponse struct {
	Session SessionSnapshot
}

// SendQueryRequest sends a chat query. An empty Text sends the input buffer.
type SendQueryRequest struct {
	SessionID SessionID
	Text      string
}

// SendQueryResponse reports the settled query.
type SendQueryResponse struct {
	Session   SessionSnapshot
	Status    OperationStatus
	Turn      *ChatTurn
	Accepted  bool
	Discarded bool
}

// Side buffers and notices.

// UpdateGeneratedCodeRequest carries a user edit of the generated code buffer.
type UpdateGeneratedCodeRequest struct {
	SessionID SessionID
	Text      string
}

// UpdateGeneratedCodeResponse reports the updated session.
type UpdateGeneratedCodeResponse struct {
	Session SessionSnapshot
}

// DismissNoticeRequest dismisses a notice.
type DismissNoticeRequest struct {
	SessionID SessionID
	NoticeID  NoticeID
}

// DismissNoticeResponse reports the updated session.
type DismissNoticeResponse struct {
	Session SessionSnapshot
}
