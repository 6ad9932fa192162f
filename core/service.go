package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/codebench/internal/logx"
	"pkt.systems/codebench/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior.
type service struct {
	cfg       schema.ServiceConfig
	executor  Executor
	generator Generator
	sink      EventSink
	logger    pslog.Logger
	now       func() time.Time
	mu        sync.Mutex
	sessions  map[schema.SessionID]*session
	order     []schema.SessionID
}

var errMissingContext = errors.New("missing context")

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		cfg:       normalized,
		executor:  deps.Executor,
		generator: deps.Generator,
		sink:      deps.EventSink,
		logger:    logger,
		now:       now,
		sessions:  make(map[schema.SessionID]*session),
	}, nil
}

func (s *service) CreateSession(ctx context.Context, req schema.CreateSessionRequest) (schema.CreateSessionResponse, error) {
	if ctx == nil {
		return schema.CreateSessionResponse{}, errMissingContext
	}
	lang := s.cfg.DefaultLanguage
	if req.Language != "" {
		normalized, err := schema.NormalizeLanguage(string(req.Language))
		if err != nil {
			return schema.CreateSessionResponse{}, err
		}
		lang = normalized
	}
	theme := s.cfg.DefaultTheme
	if req.Theme != "" {
		normalized, ok := schema.NormalizeThemeName(string(req.Theme))
		if !ok {
			return schema.CreateSessionResponse{}, schema.ErrInvalidTheme
		}
		theme = normalized
	}

	now := s.now()
	sess := newSession(schema.SessionID(newID(now)), lang, theme, s.cfg.MaxChatTurns, now)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	snap := sess.Snapshot()
	s.mu.Unlock()

	s.emit(schema.SessionEventCreated, "", snap)
	logx.WithSession(ctx, sess.ID).Info("service session created", "language", lang, "theme", theme)
	return schema.CreateSessionResponse{Session: snap}, nil
}

func (s *service) GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error) {
	if ctx == nil {
		return schema.GetSessionResponse{}, errMissingContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.sessionLocked(req.SessionID)
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	return schema.GetSessionResponse{Session: sess.Snapshot()}, nil
}

func (s *service) ListSessions(ctx context.Context, req schema.ListSessionsRequest) (schema.ListSessionsResponse, error) {
	_ = req
	if ctx == nil {
		return schema.ListSessionsResponse{}, errMissingContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.ListSessionsResponse{Sessions: append([]schema.SessionID{}, s.order...)}, nil
}

func (s *service) CloseSession(ctx context.Context, req schema.CloseSessionRequest) (schema.CloseSessionResponse, error) {
	if ctx == nil {
		return schema.CloseSessionResponse{}, errMissingContext
	}
	log := logx.WithSession(ctx, req.SessionID)

	s.mu.Lock()
	sess, err := s.sessionLocked(req.SessionID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("service session close failed", "err", err)
		return schema.CloseSessionResponse{}, err
	}
	sess.cancelAll()
	sess.UpdatedAt = s.now()
	delete(s.sessions, sess.ID)
	s.order = removeSessionID(s.order, sess.ID)
	snap := sess.Snapshot()
	s.mu.Unlock()

	s.emit(schema.SessionEventClosed, "", snap)
	log.Info("service session closed")
	return schema.CloseSessionResponse{Session: snap}, nil
}

func (s *service) ResetSession(ctx context.Context, req schema.ResetSessionRequest) (schema.ResetSessionResponse, error) {
	if ctx == nil {
		return schema.ResetSessionResponse{}, errMissingContext
	}
	log := logx.WithSession(ctx, req.SessionID)

	s.mu.Lock()
	sess, err := s.sessionLocked(req.SessionID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("service session reset failed", "err", err)
		return schema.ResetSessionResponse{}, err
	}
	sess.reset(s.cfg.DefaultLanguage, s.cfg.DefaultTheme, s.now())
	snap := sess.Snapshot()
	s.mu.Unlock()

	s.emit(schema.SessionEventReset, "", snap)
	log.Info("service session reset")
	return schema.ResetSessionResponse{Session: snap}, nil
}

func (s *service) SelectLanguage(ctx context.Context, req schema.SelectLanguageRequest) (schema.SelectLanguageResponse, error) {
	if ctx == nil {
		return schema.SelectLanguageResponse{}, errMissingContext
	}
	log := logx.WithSession(ctx, req.SessionID)
	lang, err := schema.NormalizeLanguage(string(req.Language))
	if err != nil {
		log.Warn("service language select failed", "language", req.Language, "err", err)
		return schema.SelectLanguageResponse{}, err
	}

	s.mu.Lock()
	sess, err := s.sessionLocked(req.SessionID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("service language select failed", "err", err)
		return schema.SelectLanguageResponse{}, err
	}
	sess.Document.Language = lang
	loaded := !sess.Importing
	if loaded {
		sess.Document.SourceText = lang.Snippet()
	}
	sess.UpdatedAt = s.now()
	snap := sess.Snapshot()
	s.mu.Unlock()

	s.emit(schema.SessionEventUpdated, "", snap)
	log.Info("service language selected", "language", lang, "snippet_loaded", loaded)
	return schema.SelectLanguageResponse{Session: snap, SnippetLoaded: loaded}, nil
}

func (s *service) EditSource(ctx context.Context, req schema.EditSourceRequest) (schema.EditSourceResponse, error) {
	if ctx == nil {
		return schema.EditSourceResponse{}, errMissingContext
	}
	snap, err := s.update(req.SessionID, func(sess *session) error {
		sess.Document.SourceText = req.SourceText
		return nil
	})
	if err != nil {
		return schema.EditSourceResponse{}, err
	}
	logx.WithSession(ctx, req.SessionID).Debug("service source edited", "bytes", len(req.SourceText))
	return schema.EditSourceResponse{Session: snap}, nil
}

func (s *service) ToggleTheme(ctx context.Context, req schema.ToggleThemeRequest) (schema.ToggleThemeResponse, error) {
	if ctx == nil {
		return schema.ToggleThemeResponse{}, errMissingContext
	}
	snap, err := s.update(req.SessionID, func(sess *session) error {
		sess.Document.Theme = sess.Document.Theme.Toggle()
		return nil
	})
	if err != nil {
		return schema.ToggleThemeResponse{}, err
	}
	logx.WithSession(ctx, req.SessionID).Info("service theme toggled", "theme", snap.Document.Theme)
	return schema.ToggleThemeResponse{Theme: snap.Document.Theme, Session: snap}, nil
}

func (s *service) SetTheme(ctx context.Context, req schema.SetThemeRequest) (schema.SetThemeResponse, error) {
	if ctx == nil {
		return schema.SetThemeResponse{}, errMissingContext
	}
	theme, ok := schema.NormalizeThemeName(string(req.Theme))
	if !ok {
		return schema.SetThemeResponse{}, schema.ErrInvalidTheme
	}
	snap, err := s.update(req.SessionID, func(sess *session) error {
		sess.Document.Theme = theme
		return nil
	})
	if err != nil {
		return schema.SetThemeResponse{}, err
	}
	logx.WithSession(ctx, req.SessionID).Info("service theme set", "theme", theme)
	return schema.SetThemeResponse{Theme: theme, Session: snap}, nil
}

func (s *service) SetQueryInput(ctx context.Context, req schema.SetQueryInputRequest) (schema.SetQueryInputResponse, error) {
	if ctx == nil {
		return schema.SetQueryInputResponse{}, errMissingContext
	}
	snap, err := s.update(req.SessionID, func(sess *session) error {
		sess.QueryInput = req.Text
		return nil
	})
	if err != nil {
		return schema.SetQueryInputResponse{}, err
	}
	return schema.SetQueryInputResponse{Session: snap}, nil
}

func (s *service) UpdateGeneratedCode(ctx context.Context, req schema.UpdateGeneratedCodeRequest) (schema.UpdateGeneratedCodeResponse, error) {
	if ctx == nil {
		return schema.UpdateGeneratedCodeResponse{}, errMissingContext
	}
	snap, err := s.update(req.SessionID, func(sess *session) error {
		sess.GeneratedCode = req.Text
		return nil
	})
	if err != nil {
		return schema.UpdateGeneratedCodeResponse{}, err
	}
	return schema.UpdateGeneratedCodeResponse{Session: snap}, nil
}

func (s *service) DismissNotice(ctx context.Context, req schema.DismissNoticeRequest) (schema.DismissNoticeResponse, error) {
	if ctx == nil {
		return schema.DismissNoticeResponse{}, errMissingContext
	}
	snap, err := s.update(req.SessionID, func(sess *session) error {
		if !sess.dismissNotice(req.NoticeID) {
			return schema.ErrNoticeNotFound
		}
		return nil
	})
	if err != nil {
		logx.WithSession(ctx, req.SessionID).Warn("service notice dismiss failed", "notice", req.NoticeID, "err", err)
		return schema.DismissNoticeResponse{}, err
	}
	return schema.DismissNoticeResponse{Session: snap}, nil
}

// update applies fn to the session under the lock and emits an update event.
func (s *service) update(id schema.SessionID, fn func(sess *session) error) (schema.SessionSnapshot, error) {
	s.mu.Lock()
	sess, err := s.sessionLocked(id)
	if err != nil {
		s.mu.Unlock()
		return schema.SessionSnapshot{}, err
	}
	if err := fn(sess); err != nil {
		s.mu.Unlock()
		return schema.SessionSnapshot{}, err
	}
	sess.UpdatedAt = s.now()
	snap := sess.Snapshot()
	s.mu.Unlock()
	s.emit(schema.SessionEventUpdated, "", snap)
	return snap, nil
}

func (s *service) sessionLocked(id schema.SessionID) (*session, error) {
	if err := schema.ValidateSessionID(id); err != nil {
		return nil, err
	}
	sess := s.sessions[id]
	if sess == nil {
		return nil, schema.ErrSessionNotFound
	}
	return sess, nil
}

func (s *service) emit(kind schema.SessionEventType, op schema.OperationName, snap schema.SessionSnapshot) {
	if s.sink == nil {
		return
	}
	s.sink.OnSessionEvent(schema.SessionEvent{
		SessionID: snap.ID,
		Type:      kind,
		Operation: op,
		Snapshot:  snap,
	})
}

func removeSessionID(ids []schema.SessionID, id schema.SessionID) []schema.SessionID {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
