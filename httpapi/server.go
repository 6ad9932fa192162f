package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"pkt.systems/codebench/core"
	"pkt.systems/codebench/internal/logx"
	"pkt.systems/codebench/schema"
	"pkt.systems/pslog"
)

// multipartOverhead is added to the import limit to cover form framing.
const multipartOverhead = 64 << 10

// RuntimeLister lists the runtimes offered by the execution service.
type RuntimeLister interface {
	Runtimes(ctx context.Context) ([]schema.Runtime, error)
}

// Server hosts the HTTP API.
type Server struct {
	cfg      Config
	service  core.Service
	hub      *Hub
	runtimes RuntimeLister
	limiter  *rateLimiter
	basePath string
}

// NewServer constructs a new HTTP server. runtimes may be nil.
func NewServer(cfg Config, service core.Service, hub *Hub, runtimes RuntimeLister) *Server {
	if hub == nil {
		hub = NewHub(cfg.StreamHistory)
	}
	if cfg.MaxImportBytes <= 0 {
		cfg.MaxImportBytes = schema.DefaultMaxImportBytes
	}
	return &Server{
		cfg:      cfg,
		service:  service,
		hub:      hub,
		runtimes: runtimes,
		limiter:  newRateLimiter(cfg.RatePerMinute, cfg.Burst),
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// SetBaseContext starts background maintenance bound to ctx.
func (s *Server) SetBaseContext(ctx context.Context) {
	if s == nil || ctx == nil || s.limiter == nil {
		return
	}
	go s.limiter.run(ctx)
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("GET /api/runtimes", s.handleRuntimes)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleGetSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.withSession(s.handleCloseSession))
	mux.HandleFunc("GET /api/sessions/{id}/editor", s.withSession(s.handleEditorView))
	mux.HandleFunc("GET /api/sessions/{id}/codegen", s.withSession(s.handleCodegenView))
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.withSession(s.handleStream))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	mux.HandleFunc("POST /api/sessions/{id}/language", s.withSession(s.handleSelectLanguage))
	mux.HandleFunc("POST /api/sessions/{id}/source", s.withSession(s.handleEditSource))
	mux.HandleFunc("POST /api/sessions/{id}/theme", s.withSession(s.handleSetTheme))
	mux.HandleFunc("POST /api/sessions/{id}/theme/toggle", s.withSession(s.handleToggleTheme))
	mux.HandleFunc("POST /api/sessions/{id}/import", s.withSession(s.handleImport))
	mux.HandleFunc("POST /api/sessions/{id}/run", s.withSession(s.handleRun))
	mux.HandleFunc("POST /api/sessions/{id}/generate", s.withSession(s.handleGenerate))
	mux.HandleFunc("POST /api/sessions/{id}/generated", s.withSession(s.handleUpdateGenerated))
	mux.HandleFunc("POST /api/sessions/{id}/query", s.withSession(s.handleSendQuery))
	mux.HandleFunc("POST /api/sessions/{id}/query/input", s.withSession(s.handleSetQueryInput))
	mux.HandleFunc("POST /api/sessions/{id}/notices/{notice}/dismiss", s.withSession(s.handleDismissNotice))

	handler := withRequestLogging(withRateLimit(mux, s.limiter), sessionFromPath)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID)

// withSession resolves the {id} path value and attaches a session logger to
// the request context.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := schema.SessionID(r.PathValue("id"))
		if err := schema.ValidateSessionID(sessionID); err != nil {
			writeServiceError(w, err)
			return
		}
		log := logx.WithSession(r.Context(), sessionID)
		ctx := logx.ContextWithSessionLogger(r.Context(), log, sessionID)
		next(w, r.WithContext(ctx), sessionID)
	}
}

type sessionPayload struct {
	Session schema.SessionSnapshot `json:"session"`
}

type createSessionPayload struct {
	Language schema.Language  `json:"language"`
	Theme    schema.ThemeName `json:"theme"`
}

type languagePayload struct {
	Session       schema.SessionSnapshot `json:"session"`
	SnippetLoaded bool                   `json:"snippet_loaded"`
}

type themePayload struct {
	Session     schema.SessionSnapshot `json:"session"`
	Theme       schema.ThemeName       `json:"theme"`
	EditorTheme string                 `json:"editor_theme"`
}

type importPayload struct {
	Session          schema.SessionSnapshot `json:"session"`
	Extension        string                 `json:"extension"`
	DetectedLanguage schema.Language        `json:"detected_language,omitempty"`
	LanguageMismatch bool                   `json:"language_mismatch"`
}

type operationPayload struct {
	Session   schema.SessionSnapshot `json:"session"`
	Status    schema.OperationStatus `json:"status"`
	Accepted  bool                   `json:"accepted"`
	Discarded bool                   `json:"discarded"`
	Turn      *schema.ChatTurn       `json:"turn,omitempty"`
}

type textPayload struct {
	Text string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": languageInfos()})
}

func (s *Server) handleRuntimes(w http.ResponseWriter, r *http.Request) {
	if s.runtimes == nil {
		writeServiceError(w, schema.ErrNoExecutor)
		return
	}
	runtimes, err := s.runtimes.Runtimes(r.Context())
	if err != nil {
		pslog.Ctx(r.Context()).Warn("http runtimes failed", "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runtimes": runtimes})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ListSessions(r.Context(), schema.ListSessionsRequest{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sessions := resp.Sessions
	if sessions == nil {
		sessions = []schema.SessionID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionPayload
	if err := decodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.CreateSession(r.Context(), schema.CreateSessionRequest{Language: req.Language, Theme: req.Theme})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload{Session: resp.Session})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	snap, err := s.snapshot(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload{Session: snap})
}

func (s *Server) handleEditorView(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	snap, err := s.snapshot(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewEditorView(snap))
}

func (s *Server) handleCodegenView(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	snap, err := s.snapshot(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewCodegenView(snap))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	resp, err := s.service.CloseSession(r.Context(), schema.CloseSessionRequest{SessionID: sessionID})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload{Session: resp.Session})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	resp, err := s.service.ResetSession(r.Context(), schema.ResetSessionRequest{SessionID: sessionID})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload{Session: resp.Session})
}

func (s *Server) handleSelectLanguage(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	var req struct {
		Language schema.Language `json:"language"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.SelectLanguage(r.Context(), schema.SelectLanguageRequest{SessionID: sessionID, Language: req.Language})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, languagePayload{Session: resp.Session, SnippetLoaded: resp.SnippetLoaded})
}

func (s *Server) handleEditSource(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	var req struct {
		SourceText string `json:"source_text"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.EditSource(r.Context(), schema.EditSourceRequest{SessionID: sessionID, SourceText: req.SourceText})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload{Session: resp.Session})
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	var req struct {
		Theme schema.ThemeName `json:"theme"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.SetTheme(r.Context(), schema.SetThemeRequest{SessionID: sessionID, Theme: req.Theme})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, themePayload{Session: resp.Session, Theme: resp.Theme, EditorTheme: resp.Theme.EditorTheme()})
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	resp, err := s.service.ToggleTheme(r.Context(), schema.ToggleThemeRequest{SessionID: sessionID})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, themePayload{Session: resp.Session, Theme: resp.Theme, EditorTheme: resp.Theme.EditorTheme()})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	log := pslog.Ctx(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImportBytes+multipartOverhead)

	var req schema.ImportFileRequest
	mediaType := r.Header.Get("Content-Type")
	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeServiceError(w, requestBodyError(err))
			return
		}
		defer closeMultipart(file)
		req = schema.ImportFileRequest{SessionID: sessionID, FileName: header.Filename, Content: file}
	} else {
		var body struct {
			FileName string `json:"file_name"`
			Content  string `json:"content"`
		}
		if err := decodeJSON(r.Body, &body); err != nil {
			writeServiceError(w, err)
			return
		}
		req = schema.ImportFileRequest{SessionID: sessionID, FileName: body.FileName, Content: strings.NewReader(body.Content)}
	}
	if strings.TrimSpace(req.FileName) == "" {
		writeServiceError(w, fmt.Errorf("%w: file name is required", schema.ErrInvalidRequest))
		return
	}

	resp, err := s.service.ImportFile(r.Context(), req)
	if err != nil {
		log.Info("http import rejected", "file", req.FileName, "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importPayload{
		Session:          resp.Session,
		Extension:        resp.Extension,
		DetectedLanguage: resp.DetectedLanguage,
		LanguageMismatch: resp.LanguageMismatch,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	resp, err := s.service.Run(r.Context(), schema.RunRequest{SessionID: sessionID})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operationPayload{Session: resp.Session, Status: resp.Status, Accepted: resp.Accepted, Discarded: resp.Discarded})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.Generate(r.Context(), schema.GenerateRequest{SessionID: sessionID, Prompt: req.Prompt})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operationPayload{Session: resp.Session, Status: resp.Status, Accepted: resp.Accepted, Discarded: resp.Discarded})
}

func (s *Server) handleSendQuery(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	var req textPayload
	if err := decodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.SendQuery(r.Context(), schema.SendQueryRequest{SessionID: sessionID, Text: req.Text})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operationPayload{
		Session:   resp.Session,
		Status:    resp.Status,
		Accepted:  resp.Accepted,
		Discarded: resp.Discarded,
		Turn:      resp.Turn,
	})
}

func (s *Server) handleSetQueryInput(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	var req textPayload
	if err := decodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.SetQueryInput(r.Context(), schema.SetQueryInputRequest{SessionID: sessionID, Text: req.Text})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload{Session: resp.Session})
}

func (s *Server) handleUpdateGenerated(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	var req textPayload
	if err := decodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.UpdateGeneratedCode(r.Context(), schema.UpdateGeneratedCodeRequest{SessionID: sessionID, Text: req.Text})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload{Session: resp.Session})
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	noticeID := schema.NoticeID(r.PathValue("notice"))
	resp, err := s.service.DismissNotice(r.Context(), schema.DismissNoticeRequest{SessionID: sessionID, NoticeID: noticeID})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload{Session: resp.Session})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, sessionID schema.SessionID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := pslog.Ctx(r.Context())

	ch, unsubscribe, seq := s.hub.Subscribe(sessionID)
	defer unsubscribe()

	snap, err := s.snapshot(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	initial := newStreamEvent(streamEventSnapshot, "", snap)
	initial.Seq = seq
	_ = writeSSEvent(w, initial)
	flusher.Flush()

	replayCount := 0
	if lastID > 0 && lastID < seq {
		replay := s.hub.Replay(sessionID, lastID)
		for _, event := range replay {
			if event.Seq > seq {
				break
			}
			_ = writeSSEvent(w, event)
			replayCount++
		}
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "seq", seq, "replay", replayCount)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
			if event.Type == string(schema.SessionEventClosed) {
				log.Info("http stream ended", "reason", "session closed")
				return
			}
		}
	}
}

func (s *Server) snapshot(ctx context.Context, sessionID schema.SessionID) (schema.SessionSnapshot, error) {
	resp, err := s.service.GetSession(ctx, schema.GetSessionRequest{SessionID: sessionID})
	if err != nil {
		return schema.SessionSnapshot{}, err
	}
	return resp.Session, nil
}

// decodeJSON decodes an optional JSON body; an empty body leaves target untouched.
func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return requestBodyError(err)
	}
	return nil
}

func requestBodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit %d bytes", schema.ErrImportTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
}

func closeMultipart(file multipart.File) {
	_ = file.Close()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Error: err.Error(), Kind: errorKindInternal})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
