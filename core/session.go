package core

import (
	"context"
	"time"

	"pkt.systems/codebench/schema"
)

// session tracks the state of a single editing session.
type session struct {
	ID            schema.SessionID
	Document      schema.DocumentSnapshot
	Output        *schema.ExecutionResult
	GeneratedCode string
	QueryInput    string
	Importing     bool
	importGen     uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	history       *chatHistory
	notices       []schema.Notice
	ops           map[schema.OperationName]*operation
}

// operation tracks one remote operation name of a session.
type operation struct {
	status  schema.OperationStatus
	counter uint64
	cancel  context.CancelFunc
}

func newSession(id schema.SessionID, lang schema.Language, theme schema.ThemeName, maxTurns int, now time.Time) *session {
	sess := &session{
		ID: id,
		Document: schema.DocumentSnapshot{
			Language:   lang,
			SourceText: lang.Snippet(),
			Theme:      theme,
		},
		CreatedAt: now,
		UpdatedAt: now,
		history:   newChatHistory(maxTurns),
		ops:       make(map[schema.OperationName]*operation, len(schema.Operations())),
	}
	for _, name := range schema.Operations() {
		sess.ops[name] = &operation{status: schema.OperationStatus{State: schema.OperationIdle}}
	}
	return sess
}

func (s *session) operation(name schema.OperationName) *operation {
	op := s.ops[name]
	if op == nil {
		op = &operation{status: schema.OperationStatus{State: schema.OperationIdle}}
		s.ops[name] = op
	}
	return op
}

// current reports whether seq is still the pending call of op.
func (s *session) current(name schema.OperationName, seq uint64) bool {
	op := s.ops[name]
	return op != nil && op.status.Pending() && op.status.Seq == seq
}

// cancelAll cancels in-flight calls and marks every operation idle. The
// counters are kept so late results fail the sequence check.
func (s *session) cancelAll() {
	for _, op := range s.ops {
		if op.cancel != nil {
			op.cancel()
			op.cancel = nil
		}
		op.status = schema.OperationStatus{State: schema.OperationIdle, Seq: op.counter}
	}
}

// reset restores the document defaults and clears every derived buffer.
func (s *session) reset(lang schema.Language, theme schema.ThemeName, now time.Time) {
	s.cancelAll()
	s.Document = schema.DocumentSnapshot{
		Language:   lang,
		SourceText: lang.Snippet(),
		Theme:      theme,
	}
	s.Output = nil
	s.GeneratedCode = ""
	s.QueryInput = ""
	s.Importing = false
	s.importGen++
	s.history.Clear()
	s.notices = nil
	s.UpdatedAt = now
}

func (s *session) addNotice(notice schema.Notice, max int) {
	s.notices = append(s.notices, notice)
	if max > 0 && len(s.notices) > max {
		s.notices = append([]schema.Notice(nil), s.notices[len(s.notices)-max:]...)
	}
}

func (s *session) dismissNotice(id schema.NoticeID) bool {
	for i, notice := range s.notices {
		if notice.ID == id {
			s.notices = append(s.notices[:i:i], s.notices[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a transport-friendly copy of the session.
func (s *session) Snapshot() schema.SessionSnapshot {
	snap := schema.SessionSnapshot{
		ID:               s.ID,
		Document:         s.Document,
		GeneratedCode:    s.GeneratedCode,
		ChatHistory:      s.history.Turns(),
		QueryInput:       s.QueryInput,
		Operations:       make(map[schema.OperationName]schema.OperationStatus, len(s.ops)),
		Notices:          append([]schema.Notice{}, s.notices...),
		ImportInProgress: s.Importing,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
	if s.Output != nil {
		out := schema.ExecutionResult{
			OutputLines: append([]string(nil), s.Output.OutputLines...),
			HasError:    s.Output.HasError,
		}
		snap.Output = &out
	}
	for name, op := range s.ops {
		snap.Operations[name] = op.status
	}
	return snap
}
