package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pewcal/pewcal/internal/assistant"
	"github.com/pewcal/pewcal/internal/auth"
	"github.com/pewcal/pewcal/internal/config"
	"github.com/pewcal/pewcal/internal/gcal"
	"github.com/pewcal/pewcal/internal/gcal/gcaltest"
	"github.com/pewcal/pewcal/internal/store"
	"github.com/pewcal/pewcal/internal/store/storetest"
)

var (
	testLoc = time.FixedZone("CST", -6*60*60)
	testNow = time.Date(2024, 1, 10, 10, 0, 0, 0, testLoc)
)

type testEnv struct {
	h      *Handler
	mem    *storetest.Memory
	st     *store.Store
	sm     *auth.SessionManager
	google *gcaltest.Server
	ai     *fakeOpenAI

	owner    *store.User
	calendar *store.Calendar
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{BaseURL: "http://localhost:8080"}
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	sm, err := auth.NewSessionManager(cfg)
	require.NoError(t, err)

	google := gcaltest.NewServer()
	t.Cleanup(google.Close)
	connector := gcal.ConnectorFunc(func(ctx context.Context, _ oauth2.TokenSource) (gcal.Service, error) {
		return gcal.NewWithHTTPClient(ctx, http.DefaultClient, google.Endpoint())
	})

	def, err := assistant.LoadDefinition()
	require.NoError(t, err)
	ai := &fakeOpenAI{}

	mem := storetest.New()
	e := &testEnv{mem: mem, st: mem.Store(), sm: sm, google: google, ai: ai}
	e.owner = mem.AddUser("alice@example.com", "Alice")
	e.calendar = mem.AddCalendar(e.owner.ID, "primary", "Alice's calendar", true)

	e.h = NewHandler(Deps{
		Store:     e.st,
		Sessions:  sm,
		Calendars: connector,
		Assistant: assistant.NewService(ai, def, "", nil, assistant.WithPollInterval(time.Millisecond)),
		Location:  testLoc,
		Now:       func() time.Time { return testNow },
	})
	return e
}

type reqConfig struct {
	user    *store.User
	params  map[string]string
	cookies map[string]string
	noToken bool
}

type reqOption func(*reqConfig)

func as(u *store.User) reqOption {
	return func(c *reqConfig) { c.user = u }
}

func param(key, value string) reqOption {
	return func(c *reqConfig) {
		if c.params == nil {
			c.params = map[string]string{}
		}
		c.params[key] = value
	}
}

func cookie(name, value string) reqOption {
	return func(c *reqConfig) {
		if c.cookies == nil {
			c.cookies = map[string]string{}
		}
		c.cookies[name] = value
	}
}

func selected(googleID string) reqOption {
	return cookie(auth.CookieGoogleCalendarID, googleID)
}

func withoutGoogle() reqOption {
	return func(c *reqConfig) { c.noToken = true }
}

func (e *testEnv) newRequest(t *testing.T, method, target string, body any, opts ...reqOption) *http.Request {
	t.Helper()
	cfg := reqConfig{user: e.owner}
	for _, opt := range opts {
		opt(&cfg)
	}

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	if len(cfg.cookies) > 0 {
		rec := httptest.NewRecorder()
		for k, v := range cfg.cookies {
			require.NoError(t, e.sm.Set(rec, k, v))
		}
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
	}

	ctx := req.Context()
	rctx := chi.NewRouteContext()
	for k, v := range cfg.params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	if cfg.user != nil {
		ctx = auth.WithUser(ctx, cfg.user)
	}
	if !cfg.noToken {
		ctx = auth.WithTokenSource(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}))
	}
	return req.WithContext(ctx)
}

func (e *testEnv) serve(t *testing.T, handler http.HandlerFunc, method, target string, body any, opts ...reqOption) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, e.newRequest(t, method, target, body, opts...))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// cookieValue decodes a session cookie written to rec.
func (e *testEnv) cookieValue(t *testing.T, rec *httptest.ResponseRecorder, name string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	v, _ := e.sm.Get(req, name)
	return v
}

// fakeOpenAI completes every run immediately with reply.
type fakeOpenAI struct {
	mu      sync.Mutex
	reply   string
	created []openai.AssistantRequest
	files   []openai.File
	threads int
}

func (f *fakeOpenAI) CreateAssistant(_ context.Context, req openai.AssistantRequest) (openai.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return openai.Assistant{ID: fmt.Sprintf("asst_%d", len(f.created)), Name: req.Name, Model: req.Model}, nil
}

func (f *fakeOpenAI) RetrieveAssistant(context.Context, string) (openai.Assistant, error) {
	return openai.Assistant{}, fmt.Errorf("not found")
}

func (f *fakeOpenAI) ListAssistants(context.Context, *int, *string, *string, *string) (openai.AssistantsList, error) {
	return openai.AssistantsList{}, nil
}

func (f *fakeOpenAI) CreateThread(context.Context, openai.ThreadRequest) (openai.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads++
	return openai.Thread{ID: fmt.Sprintf("thread_%d", f.threads)}, nil
}

func (f *fakeOpenAI) CreateMessage(context.Context, string, openai.MessageRequest) (openai.Message, error) {
	return openai.Message{}, nil
}

func (f *fakeOpenAI) ListMessage(context.Context, string, *int, *string, *string, *string, *string) (openai.MessagesList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return openai.MessagesList{Messages: []openai.Message{{
		Role:    "assistant",
		Content: []openai.MessageContent{{Type: "text", Text: &openai.MessageText{Value: f.reply}}},
	}}}, nil
}

func (f *fakeOpenAI) CreateRun(context.Context, string, openai.RunRequest) (openai.Run, error) {
	return openai.Run{ID: "run_1", Status: openai.RunStatusCompleted}, nil
}

func (f *fakeOpenAI) RetrieveRun(context.Context, string, string) (openai.Run, error) {
	return openai.Run{ID: "run_1", Status: openai.RunStatusCompleted}, nil
}

func (f *fakeOpenAI) SubmitToolOutputs(context.Context, string, string, openai.SubmitToolOutputsRequest) (openai.Run, error) {
	return openai.Run{ID: "run_1", Status: openai.RunStatusCompleted}, nil
}

func (f *fakeOpenAI) ListFiles(context.Context) (openai.FilesList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return openai.FilesList{Files: f.files}, nil
}

func (f *fakeOpenAI) CreateFileBytes(_ context.Context, req openai.FileBytesRequest) (openai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := openai.File{ID: fmt.Sprintf("file_%d", len(f.files)+1), FileName: req.Name, Bytes: len(req.Bytes), Purpose: string(req.Purpose)}
	f.files = append(f.files, file)
	return file, nil
}
