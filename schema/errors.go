package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidSession indicates an invalid session identifier.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionNotFound indicates a session could not be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidLanguage indicates an unsupported language.
	ErrInvalidLanguage = errors.New("unsupported language")
	// ErrInvalidTheme indicates an unsupported theme.
	ErrInvalidTheme = errors.New("unsupported theme")
	// ErrOperationPending indicates the operation already has a call in flight.
	ErrOperationPending = errors.New("operation already pending")
	// ErrNoticeNotFound indicates the notice was already dismissed or never existed.
	ErrNoticeNotFound = errors.New("notice not found")
	// ErrNoExecutor indicates no execution client is configured.
	ErrNoExecutor = errors.New("execution client not configured")
	// ErrNoGenerator indicates no generation client is configured.
	ErrNoGenerator = errors.New("generation client not configured")

	// ErrNoExtension indicates an imported file name has no extension.
	ErrNoExtension = errors.New("file has no extension")
	// ErrUnsupportedFileType indicates the extension is not in the allow-list.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrImportDecode indicates the file content is not valid UTF-8 text.
	ErrImportDecode = errors.New("file is not valid UTF-8 text")
	// ErrImportTooLarge indicates the file exceeds the import size limit.
	ErrImportTooLarge = errors.New("file too large")
)

// ValidationError describes a rejected file import.
type ValidationError struct {
	FileName  string
	Extension string
	Err       error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	if e.Err == nil {
		return fmt.Sprintf("import %q rejected", e.FileName)
	}
	if e.Extension != "" {
		return fmt.Sprintf("import %q: %v (.%s)", e.FileName, e.Err, e.Extension)
	}
	return fmt.Sprintf("import %q: %v", e.FileName, e.Err)
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsValidation reports whether err is a file import validation failure.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
