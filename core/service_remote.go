package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkt.systems/codebench/internal/logx"
	"pkt.systems/codebench/schema"
	"pkt.systems/pslog"
)

// Fallback notice descriptions when a remote error carries no message.
const (
	noticeErrorTitle    = "An error occurred."
	runFailedMessage    = "Unable to run code"
	genFailedMessage    = "Unable to generate code"
	queryFailedMessage  = "Error fetching prediction"
	timeoutMessage      = "operation timed out after %s"
	defaultRemoteFailed = "remote call failed"
)

// remoteCall is one in-flight invocation of an operation.
type remoteCall struct {
	sess   *session
	op     schema.OperationName
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// outcome is how a remote call settled.
type outcome struct {
	status    schema.OperationStatus
	snap      schema.SessionSnapshot
	discarded bool
}

func (s *service) Run(ctx context.Context, req schema.RunRequest) (schema.RunResponse, error) {
	if ctx == nil {
		return schema.RunResponse{}, errMissingContext
	}
	if s.executor == nil {
		return schema.RunResponse{}, schema.ErrNoExecutor
	}
	log := logx.WithSessionOp(ctx, req.SessionID, schema.OperationRun)

	var execReq ExecuteRequest
	call, snap, accepted, err := s.begin(ctx, req.SessionID, schema.OperationRun, func(sess *session) bool {
		if sess.Document.SourceText == "" {
			return false
		}
		execReq = ExecuteRequest{Language: sess.Document.Language, SourceText: sess.Document.SourceText}
		return true
	})
	if err != nil {
		log.Warn("service run rejected", "err", err)
		return schema.RunResponse{}, err
	}
	if !accepted {
		log.Debug("service run skipped", "reason", "empty source")
		return schema.RunResponse{Session: snap, Status: snap.Status(schema.OperationRun)}, nil
	}
	log.Info("service run start", "seq", call.seq, "language", execReq.Language)

	result, runErr := s.executor.Execute(call.ctx, execReq)
	out := s.settle(log, call, runErr, runFailedMessage, func(sess *session) {
		res := result
		res.OutputLines = append([]string(nil), result.OutputLines...)
		sess.Output = &res
	})
	return schema.RunResponse{Session: out.snap, Status: out.status, Accepted: true, Discarded: out.discarded}, nil
}

func (s *service) Generate(ctx context.Context, req schema.GenerateRequest) (schema.GenerateResponse, error) {
	if ctx == nil {
		return schema.GenerateResponse{}, errMissingContext
	}
	if s.generator == nil {
		return schema.GenerateResponse{}, schema.ErrNoGenerator
	}
	log := logx.WithSessionOp(ctx, req.SessionID, schema.OperationGenerate)
	prompt := req.Prompt
	if prompt == "" {
		prompt = s.cfg.DefaultGeneratePrompt
	}

	call, _, _, err := s.begin(ctx, req.SessionID, schema.OperationGenerate, nil)
	if err != nil {
		log.Warn("service generate rejected", "err", err)
		return schema.GenerateResponse{}, err
	}
	log.Info("service generate start", "seq", call.seq, "prompt_bytes", len(prompt))

	text, genErr := s.generator.Generate(call.ctx, GenerateRequest{Prompt: prompt, Purpose: schema.PurposeCode})
	out := s.settle(log, call, genErr, genFailedMessage, func(sess *session) {
		sess.GeneratedCode = text
	})
	return schema.GenerateResponse{Session: out.snap, Status: out.status, Accepted: true, Discarded: out.discarded}, nil
}

func (s *service) SendQuery(ctx context.Context, req schema.SendQueryRequest) (schema.SendQueryResponse, error) {
	if ctx == nil {
		return schema.SendQueryResponse{}, errMissingContext
	}
	if s.generator == nil {
		return schema.SendQueryResponse{}, schema.ErrNoGenerator
	}
	log := logx.WithSessionOp(ctx, req.SessionID, schema.OperationQuery)

	query := req.Text
	call, snap, accepted, err := s.begin(ctx, req.SessionID, schema.OperationQuery, func(sess *session) bool {
		if strings.TrimSpace(query) == "" {
			query = sess.QueryInput
		}
		return strings.TrimSpace(query) != ""
	})
	if err != nil {
		log.Warn("service query rejected", "err", err)
		return schema.SendQueryResponse{}, err
	}
	if !accepted {
		log.Debug("service query skipped", "reason", "empty query")
		return schema.SendQueryResponse{Session: snap, Status: snap.Status(schema.OperationQuery)}, nil
	}
	log.Info("service query start", "seq", call.seq, "query_bytes", len(query))

	response, queryErr := s.generator.Generate(call.ctx, GenerateRequest{Prompt: query, Purpose: schema.PurposeChat})
	var turn *schema.ChatTurn
	out := s.settle(log, call, queryErr, queryFailedMessage, func(sess *session) {
		t := schema.ChatTurn{Query: query, Response: response}
		if sess.history.Append(t) {
			turn = &t
		}
		sess.QueryInput = ""
	})
	return schema.SendQueryResponse{Session: out.snap, Status: out.status, Turn: turn, Accepted: true, Discarded: out.discarded}, nil
}

// begin marks op pending and returns its call handle. A nil or true-returning
// precondition accepts the call; false leaves the operation untouched and
// returns the current snapshot.
func (s *service) begin(ctx context.Context, id schema.SessionID, op schema.OperationName, precondition func(sess *session) bool) (remoteCall, schema.SessionSnapshot, bool, error) {
	s.mu.Lock()
	sess, err := s.sessionLocked(id)
	if err != nil {
		s.mu.Unlock()
		return remoteCall{}, schema.SessionSnapshot{}, false, err
	}
	state := sess.operation(op)
	if state.status.Pending() {
		s.mu.Unlock()
		return remoteCall{}, schema.SessionSnapshot{}, false, schema.ErrOperationPending
	}
	if precondition != nil && !precondition(sess) {
		snap := sess.Snapshot()
		s.mu.Unlock()
		return remoteCall{}, snap, false, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	callCtx = logx.ContextWithOperation(logx.ContextWithSession(callCtx, id), op)
	now := s.now()
	state.counter++
	state.cancel = cancel
	state.status = schema.OperationStatus{State: schema.OperationPending, Seq: state.counter, StartedAt: now}
	sess.UpdatedAt = now
	snap := sess.Snapshot()
	call := remoteCall{sess: sess, op: op, seq: state.counter, ctx: callCtx, cancel: cancel}
	s.mu.Unlock()

	s.emit(schema.SessionEventOperation, op, snap)
	return call, snap, true, nil
}

// settle applies the result of call when it is still current. apply runs
// under the lock on success only; failures never touch the document, the
// output or the chat history.
func (s *service) settle(log pslog.Logger, call remoteCall, callErr error, fallback string, apply func(sess *session)) outcome {
	defer call.cancel()
	timedOut := errors.Is(call.ctx.Err(), context.DeadlineExceeded)

	s.mu.Lock()
	sess := call.sess
	if s.sessions[sess.ID] != sess || !sess.current(call.op, call.seq) {
		snap := sess.Snapshot()
		status := snap.Status(call.op)
		s.mu.Unlock()
		s.logger.With("session", sess.ID, "op", call.op).Info("service operation result discarded", "seq", call.seq)
		return outcome{status: status, snap: snap, discarded: true}
	}
	now := s.now()
	state := sess.operation(call.op)
	state.cancel = nil
	status := schema.OperationStatus{Seq: call.seq, StartedAt: state.status.StartedAt, SettledAt: now}
	if callErr == nil {
		status.State = schema.OperationSucceeded
		apply(sess)
	} else {
		kind := RemoteErrorKindOf(callErr)
		message := callErr.Error()
		if timedOut {
			kind = RemoteErrorTimeout
			message = fmt.Sprintf(timeoutMessage, s.cfg.OperationTimeout)
		}
		if message == "" {
			message = defaultRemoteFailed
		}
		status.State = schema.OperationFailed
		status.ErrorKind = string(kind)
		status.Message = message
		sess.addNotice(schema.Notice{
			ID:          schema.NoticeID(newID(now)),
			Operation:   call.op,
			Title:       noticeErrorTitle,
			Description: noticeDescription(message, fallback),
			CreatedAt:   now,
		}, s.cfg.MaxNotices)
	}
	state.status = status
	sess.UpdatedAt = now
	snap := sess.Snapshot()
	s.mu.Unlock()

	s.emit(schema.SessionEventOperation, call.op, snap)
	log = logx.WithStatus(log, status)
	if callErr != nil {
		log.Warn("service operation failed", "err", callErr)
	} else {
		log.Info("service operation succeeded")
	}
	return outcome{status: status, snap: snap}
}

func noticeDescription(message, fallback string) string {
	if message == "" || message == defaultRemoteFailed {
		return fallback
	}
	return message
}
