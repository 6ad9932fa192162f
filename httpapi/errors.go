package httpapi

import (
	"errors"
	"net/http"

	"pkt.systems/codebench/core"
	"pkt.systems/codebench/schema"
)

// Error kinds reported in JSON error bodies.
const (
	errorKindInvalid     = "invalid_request"
	errorKindValidation  = "validation"
	errorKindNotFound    = "not_found"
	errorKindPending     = "pending"
	errorKindTooLarge    = "too_large"
	errorKindRateLimited = "rate_limited"
	errorKindUnavailable = "unavailable"
	errorKindRemote      = "remote"
	errorKindInternal    = "internal"
)

var errRateLimited = errors.New("rate limit exceeded")

type errorPayload struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	RemoteKind string `json:"remote_kind,omitempty"`
}

// statusForError maps service errors to an HTTP status and error kind.
func statusForError(err error) (int, string) {
	var remote *core.RemoteError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, errorKindRateLimited
	case errors.Is(err, schema.ErrImportTooLarge):
		return http.StatusRequestEntityTooLarge, errorKindTooLarge
	case schema.IsValidation(err), errors.Is(err, schema.ErrImportDecode):
		return http.StatusBadRequest, errorKindValidation
	case errors.Is(err, schema.ErrSessionNotFound), errors.Is(err, schema.ErrNoticeNotFound):
		return http.StatusNotFound, errorKindNotFound
	case errors.Is(err, schema.ErrOperationPending):
		return http.StatusConflict, errorKindPending
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidSession),
		errors.Is(err, schema.ErrInvalidLanguage),
		errors.Is(err, schema.ErrInvalidTheme):
		return http.StatusBadRequest, errorKindInvalid
	case errors.Is(err, schema.ErrNoExecutor), errors.Is(err, schema.ErrNoGenerator):
		return http.StatusServiceUnavailable, errorKindUnavailable
	case errors.As(err, &remote):
		return http.StatusBadGateway, errorKindRemote
	default:
		return http.StatusInternalServerError, errorKindInternal
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, kind := statusForError(err)
	payload := errorPayload{Error: err.Error(), Kind: kind}
	if kind == errorKindRemote {
		payload.RemoteKind = string(core.RemoteErrorKindOf(err))
	}
	writeJSON(w, status, payload)
}
