package logx

import (
	"context"

	"pkt.systems/codebench/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	operationKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSessionOp annotates the logger with session and operation identifiers.
func WithSessionOp(ctx context.Context, sessionID schema.SessionID, op schema.OperationName) pslog.Logger {
	log := WithSession(ctx, sessionID)
	if op != "" {
		if current, ok := ctx.Value(operationKey).(schema.OperationName); ok && current == op {
			return log
		}
		log = log.With("op", op)
	}
	return log
}

// WithStatus annotates the logger with operation status fields.
func WithStatus(log pslog.Logger, status schema.OperationStatus) pslog.Logger {
	log = log.With("state", status.State, "seq", status.Seq)
	if status.ErrorKind != "" {
		log = log.With("error_kind", status.ErrorKind)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithOperation stores the operation marker on the context for log de-duplication.
func ContextWithOperation(ctx context.Context, op schema.OperationName) context.Context {
	if ctx == nil || op == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, op)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// ContextWithSessionOpLogger attaches the logger and session/operation markers to the context.
func ContextWithSessionOpLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID, op schema.OperationName) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithOperation(ContextWithSession(ctx, sessionID), op)
}

// CopyContextFields copies session/operation markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if session, ok := src.Value(sessionKey).(schema.SessionID); ok && session != "" {
		dst = ContextWithSession(dst, session)
	}
	if op, ok := src.Value(operationKey).(schema.OperationName); ok && op != "" {
		dst = ContextWithOperation(dst, op)
	}
	return dst
}
