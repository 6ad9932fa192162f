package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/codebench/core"
	"pkt.systems/codebench/schema"
)

const unknownSessionID = "01ARZ3NDEKTSV4RRFFQ69G5FAV"

type testEnv struct {
	service core.Service
	hub     *Hub
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T, cfg Config, deps core.ServiceDeps) *testEnv {
	t.Helper()
	hub := NewHub(cfg.StreamHistory)
	deps.EventSink = hub
	svc, err := core.NewService(schema.ServiceConfig{MaxImportBytes: cfg.MaxImportBytes}, deps)
	require.NoError(t, err)
	server := NewServer(cfg, svc, hub, nil)
	return &testEnv{service: svc, hub: hub, server: server, handler: server.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSession(t *testing.T) schema.SessionID {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var payload sessionPayload
	decodeBody(t, rec, &payload)
	return payload.Session.ID
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target), rec.Body.String())
}

func sessionPath(id schema.SessionID, suffix string) string {
	return "/api/sessions/" + string(id) + suffix
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, Config{}, core.ServiceDeps{})
	id := env.createSession(t)

	rec := env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []schema.SessionID `json:"sessions"`
	}
	decodeBody(t, rec, &list)
	assert.Equal(t, []schema.SessionID{id}, list.Sessions)

	rec = env.do(t, http.MethodGet, sessionPath(id, "/editor"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var editor EditorView
	decodeBody(t, rec, &editor)
	assert.Equal(t, schema.DefaultLanguage, editor.Language)
	assert.Equal(t, schema.DefaultLanguage.Snippet(), editor.SourceText)
	assert.Equal(t, schema.DefaultTheme.EditorTheme(), editor.EditorTheme)
	assert.Len(t, editor.Languages, len(schema.SupportedLanguages()))
	assert.Empty(t, editor.Output)

	rec = env.do(t, http.MethodDelete, sessionPath(id, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, sessionPath(id, ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t, Config{}, core.ServiceDeps{})
	id := env.createSession(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"invalid id", http.MethodGet, "/api/sessions/not-a-session", nil, http.StatusBadRequest, errorKindInvalid},
		{"unknown id", http.MethodGet, sessionPath(unknownSessionID, ""), nil, http.StatusNotFound, errorKindNotFound},
		{"unknown language", http.MethodPost, sessionPath(id, "/language"), map[string]string{"language": "cobol"}, http.StatusBadRequest, errorKindInvalid},
		{"unknown theme", http.MethodPost, sessionPath(id, "/theme"), map[string]string{"theme": "sepia"}, http.StatusBadRequest, errorKindInvalid},
		{"unknown field", http.MethodPost, sessionPath(id, "/source"), map[string]string{"text": "x"}, http.StatusBadRequest, errorKindInvalid},
		{"unknown notice", http.MethodPost, sessionPath(id, "/notices/nope/dismiss"), nil, http.StatusNotFound, errorKindNotFound},
		{"no executor", http.MethodPost, sessionPath(id, "/run"), nil, http.StatusServiceUnavailable, errorKindUnavailable},
		{"no generator", http.MethodPost, sessionPath(id, "/generate"), nil, http.StatusServiceUnavailable, errorKindUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			var payload errorPayload
			decodeBody(t, rec, &payload)
			assert.Equal(t, tc.kind, payload.Kind)
			assert.NotEmpty(t, payload.Error)
		})
	}
}

func TestDocumentIntents(t *testing.T) {
	env := newTestEnv(t, Config{}, core.ServiceDeps{})
	id := env.createSession(t)

	rec := env.do(t, http.MethodPost, sessionPath(id, "/language"), map[string]string{"language": "python"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lang languagePayload
	decodeBody(t, rec, &lang)
	assert.True(t, lang.SnippetLoaded)
	assert.Equal(t, schema.LanguagePython, lang.Session.Document.Language)
	assert.Equal(t, schema.LanguagePython.Snippet(), lang.Session.Document.SourceText)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/source"), map[string]string{"source_text": "print(1)"})
	require.Equal(t, http.StatusOK, rec.Code)
	var edited sessionPayload
	decodeBody(t, rec, &edited)
	assert.Equal(t, "print(1)", edited.Session.Document.SourceText)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/theme/toggle"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled themePayload
	decodeBody(t, rec, &toggled)
	assert.Equal(t, schema.DefaultTheme.Toggle(), toggled.Theme)
	assert.Equal(t, toggled.Theme.EditorTheme(), toggled.EditorTheme)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/reset"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset sessionPayload
	decodeBody(t, rec, &reset)
	assert.Equal(t, schema.DefaultLanguage, reset.Session.Document.Language)
	assert.Equal(t, schema.DefaultTheme, reset.Session.Document.Theme)
}

func TestRunReportsOperationStatus(t *testing.T) {
	var got core.ExecuteRequest
	env := newTestEnv(t, Config{}, core.ServiceDeps{
		Executor: core.ExecutorFunc(func(_ context.Context, req core.ExecuteRequest) (schema.ExecutionResult, error) {
			got = req
			return schema.ExecutionResult{OutputLines: []string{"hello", ""}}, nil
		}),
	})
	id := env.createSession(t)

	rec := env.do(t, http.MethodPost, sessionPath(id, "/run"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payload operationPayload
	decodeBody(t, rec, &payload)
	assert.True(t, payload.Accepted)
	assert.False(t, payload.Discarded)
	assert.Equal(t, schema.OperationSucceeded, payload.Status.State)
	assert.Equal(t, uint64(1), payload.Status.Seq)
	assert.Equal(t, schema.DefaultLanguage, got.Language)

	rec = env.do(t, http.MethodGet, sessionPath(id, "/editor"), nil)
	var editor EditorView
	decodeBody(t, rec, &editor)
	assert.Equal(t, []string{"hello", ""}, editor.Output)
	assert.False(t, editor.Running)
}

func TestRunFailureBecomesNotice(t *testing.T) {
	env := newTestEnv(t, Config{}, core.ServiceDeps{
		Executor: core.ExecutorFunc(func(context.Context, core.ExecuteRequest) (schema.ExecutionResult, error) {
			return schema.ExecutionResult{}, core.NewRemoteError(core.RemoteErrorExecution, "execute", errors.New("runtime unknown"))
		}),
	})
	id := env.createSession(t)

	rec := env.do(t, http.MethodPost, sessionPath(id, "/run"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payload operationPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, schema.OperationFailed, payload.Status.State)
	require.Len(t, payload.Session.Notices, 1)
	notice := payload.Session.Notices[0]

	rec = env.do(t, http.MethodPost, sessionPath(id, "/notices/"+string(notice.ID)+"/dismiss"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dismissed sessionPayload
	decodeBody(t, rec, &dismissed)
	assert.Empty(t, dismissed.Session.Notices)
}

func TestRunWhilePendingConflicts(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	env := newTestEnv(t, Config{}, core.ServiceDeps{
		Executor: core.ExecutorFunc(func(ctx context.Context, _ core.ExecuteRequest) (schema.ExecutionResult, error) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return schema.ExecutionResult{}, ctx.Err()
			}
			return schema.ExecutionResult{OutputLines: []string{"done"}}, nil
		}),
	})
	id := env.createSession(t)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, sessionPath(id, "/run"), nil)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		done <- rec
	}()
	<-started

	rec := env.do(t, http.MethodGet, sessionPath(id, "/editor"), nil)
	var editor EditorView
	decodeBody(t, rec, &editor)
	assert.True(t, editor.Running)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/run"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict errorPayload
	decodeBody(t, rec, &conflict)
	assert.Equal(t, errorKindPending, conflict.Kind)

	close(release)
	first := <-done
	require.Equal(t, http.StatusOK, first.Code)
	var payload operationPayload
	decodeBody(t, first, &payload)
	assert.Equal(t, schema.OperationSucceeded, payload.Status.State)
}

func TestGenerateAndQuery(t *testing.T) {
	env := newTestEnv(t, Config{}, core.ServiceDeps{
		Generator: core.GeneratorFunc(func(_ context.Context, req core.GenerateRequest) (string, error) {
			return string(req.Purpose) + ":" + req.Prompt, nil
		}),
	})
	id := env.createSession(t)

	rec := env.do(t, http.MethodPost, sessionPath(id, "/generate"), map[string]string{"prompt": "fizzbuzz"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var generated operationPayload
	decodeBody(t, rec, &generated)
	assert.Equal(t, "code:fizzbuzz", generated.Session.GeneratedCode)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/generated"), map[string]string{"text": "edited"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/query/input"), map[string]string{"text": "what is go"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/query"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var queried operationPayload
	decodeBody(t, rec, &queried)
	require.NotNil(t, queried.Turn)
	assert.Equal(t, "what is go", queried.Turn.Query)
	assert.Equal(t, "chat:what is go", queried.Turn.Response)

	rec = env.do(t, http.MethodGet, sessionPath(id, "/codegen"), nil)
	var view CodegenView
	decodeBody(t, rec, &view)
	assert.Equal(t, "edited", view.GeneratedCode)
	assert.Empty(t, view.QueryInput)
	assert.Len(t, view.ChatHistory, 1)
}

func TestImportJSONAndMultipart(t *testing.T) {
	env := newTestEnv(t, Config{MaxImportBytes: 64}, core.ServiceDeps{})
	id := env.createSession(t)

	rec := env.do(t, http.MethodPost, sessionPath(id, "/import"), map[string]string{"file_name": "main.py", "content": "print('hi')\n"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var imported importPayload
	decodeBody(t, rec, &imported)
	assert.Equal(t, "py", imported.Extension)
	assert.Equal(t, schema.LanguagePython, imported.DetectedLanguage)
	assert.Equal(t, "print('hi')\n", imported.Session.Document.SourceText)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "app.js")
	require.NoError(t, err)
	_, err = part.Write([]byte("console.log(1)"))
	require.NoError(t, err)
	require.NoError(t, form.Close())
	req := httptest.NewRequest(http.MethodPost, sessionPath(id, "/import"), &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &imported)
	assert.Equal(t, "console.log(1)", imported.Session.Document.SourceText)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/import"), map[string]string{"file_name": "notes.txt", "content": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var rejected errorPayload
	decodeBody(t, rec, &rejected)
	assert.Equal(t, errorKindValidation, rejected.Kind)

	rec = env.do(t, http.MethodPost, sessionPath(id, "/import"), map[string]string{"file_name": "big.py", "content": strings.Repeat("a", 128)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, sessionPath(id, "/import"), map[string]string{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitMutatingRequests(t *testing.T) {
	env := newTestEnv(t, Config{RatePerMinute: 1, Burst: 1}, core.ServiceDeps{})
	id := env.createSession(t)

	rec := env.do(t, http.MethodPost, sessionPath(id, "/theme/toggle"), nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodGet, sessionPath(id, ""), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := newRateLimiter(60, 1)
	now := time.Now()
	require.True(t, limiter.allow("10.0.0.1", now))
	require.False(t, limiter.allow("10.0.0.1", now))
	limiter.sweep(now.Add(limiterIdleTTL + time.Second))
	assert.Empty(t, limiter.clients)
	assert.Nil(t, newRateLimiter(0, 10))
}

type fakeRuntimes struct {
	runtimes []schema.Runtime
	err      error
}

func (f fakeRuntimes) Runtimes(context.Context) ([]schema.Runtime, error) {
	return f.runtimes, f.err
}

func TestRuntimes(t *testing.T) {
	svc, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{})
	require.NoError(t, err)

	ok := NewServer(Config{}, svc, nil, fakeRuntimes{runtimes: []schema.Runtime{{Language: "python", Version: "3.10.0"}}}).Handler()
	rec := httptest.NewRecorder()
	ok.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runtimes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"python"`)

	failing := NewServer(Config{}, svc, nil, fakeRuntimes{err: core.NewRemoteError(core.RemoteErrorTransport, "runtimes", errors.New("dial tcp"))}).Handler()
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runtimes", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, errorKindRemote, payload.Kind)
	assert.Equal(t, string(core.RemoteErrorTransport), payload.RemoteKind)

	missing := NewServer(Config{}, svc, nil, nil).Handler()
	rec = httptest.NewRecorder()
	missing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runtimes", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBasePathMounting(t *testing.T) {
	env := newTestEnv(t, Config{BasePath: "codebench/"}, core.ServiceDeps{})

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/codebench/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/codebench", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/codebench/", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func readStreamEvent(t *testing.T, reader *bufio.Reader) StreamEvent {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: ")
		if !ok {
			continue
		}
		var event StreamEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		return event
	}
}

func TestStreamSendsSnapshotThenEvents(t *testing.T) {
	env := newTestEnv(t, Config{}, core.ServiceDeps{})
	id := env.createSession(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+sessionPath(id, "/stream"), nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readStreamEvent(t, reader)
	assert.Equal(t, streamEventSnapshot, first.Type)
	require.NotNil(t, first.Session)
	assert.Equal(t, id, first.Session.ID)

	toggle := env.do(t, http.MethodPost, sessionPath(id, "/theme/toggle"), nil)
	require.Equal(t, http.StatusOK, toggle.Code)

	next := readStreamEvent(t, reader)
	assert.Equal(t, string(schema.SessionEventUpdated), next.Type)
	require.NotNil(t, next.Editor)
	assert.Equal(t, schema.DefaultTheme.Toggle(), next.Editor.Theme)
	assert.Greater(t, next.Seq, first.Seq)

	closed := env.do(t, http.MethodDelete, sessionPath(id, ""), nil)
	require.Equal(t, http.StatusOK, closed.Code)
	last := readStreamEvent(t, reader)
	assert.Equal(t, string(schema.SessionEventClosed), last.Type)
}

func TestStreamUnknownSession(t *testing.T) {
	env := newTestEnv(t, Config{}, core.ServiceDeps{})
	rec := env.do(t, http.MethodGet, sessionPath(unknownSessionID, "/stream"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHubReplayAndHistoryCap(t *testing.T) {
	hub := NewHub(2)
	snap := schema.SessionSnapshot{ID: unknownSessionID}
	for i := 0; i < 3; i++ {
		hub.OnSessionEvent(schema.SessionEvent{SessionID: snap.ID, Type: schema.SessionEventUpdated, Snapshot: snap})
	}
	replay := hub.Replay(snap.ID, 0)
	require.Len(t, replay, 2)
	assert.Equal(t, uint64(2), replay[0].Seq)
	assert.Equal(t, uint64(3), replay[1].Seq)
	assert.Len(t, hub.Replay(snap.ID, 2), 1)

	ch, unsub, seq := hub.Subscribe(snap.ID)
	assert.Equal(t, uint64(3), seq)
	hub.OnSessionEvent(schema.SessionEvent{SessionID: snap.ID, Type: schema.SessionEventClosed, Snapshot: snap})
	event := <-ch
	assert.Equal(t, string(schema.SessionEventClosed), event.Type)
	assert.Empty(t, hub.Replay(snap.ID, 0))
	unsub()
	unsub()
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{schema.ErrInvalidRequest, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", schema.ErrSessionNotFound), http.StatusNotFound},
		{schema.ErrOperationPending, http.StatusConflict},
		{&schema.ValidationError{FileName: "a.txt", Err: schema.ErrUnsupportedFileType}, http.StatusBadRequest},
		{&schema.ValidationError{FileName: "a.py", Err: schema.ErrImportTooLarge}, http.StatusRequestEntityTooLarge},
		{errRateLimited, http.StatusTooManyRequests},
		{core.NewRemoteError(core.RemoteErrorTimeout, "execute", context.DeadlineExceeded), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := statusForError(tc.err)
		assert.Equal(t, tc.status, status, "%v", tc.err)
	}
}
