package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"promptcal/internal/ai"
	"promptcal/internal/assistant"
	"promptcal/internal/calendar"
	"promptcal/internal/config"
	"promptcal/internal/model"
	"promptcal/internal/settings"
	"promptcal/internal/store"
)

var taipei = time.FixedZone("Asia/Taipei", 8*3600)

// fakeDispatcher answers every prompt with one event at 14:00 on the day
// after the pinned clock, optionally blocking until released.
type fakeDispatcher struct {
	mu      sync.Mutex
	images  []*ai.Image
	started chan struct{}
	release chan struct{}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, prompt string, image *ai.Image, _ settings.AiConfig) (*ai.Response, error) {
	f.mu.Lock()
	f.images = append(f.images, image)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	return &ai.Response{FunctionCalls: []ai.FunctionCall{{
		Name: ai.CreateEventFunction,
		Args: map[string]any{
			"title":     prompt,
			"startTime": "2024-06-13T14:00:00",
			"endTime":   "2024-06-13T15:00:00",
		},
	}}}, nil
}

type testEnv struct {
	srv        *Server
	handler    http.Handler
	book       *calendar.Book
	dispatcher *fakeDispatcher
	cfg        *config.Config
}

func newEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	mgr, err := settings.NewManager(ctx, st)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.PreviewPath = filepath.Join(t.TempDir(), "preview.png")
	if mutate != nil {
		mutate(cfg)
	}

	book := calendar.NewBook(st, nil, nil, taipei)
	d := &fakeDispatcher{}
	srv := NewServer(cfg, Deps{
		Book:     book,
		Settings: mgr,
		Sessions: assistant.NewSessions(d, book, mgr, taipei),
		Location: taipei,
		Now:      func() time.Time { return time.Date(2024, 6, 12, 10, 0, 0, 0, taipei) },
	})
	return &testEnv{srv: srv, handler: srv.Handler(), book: book, dispatcher: d, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestBasicAuth(t *testing.T) {
	env := newEnv(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	})

	if rec := env.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("/health without auth = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/events", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/events without auth = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/api/events with auth = %d", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	env := newEnv(t, nil)
	ev, err := env.book.AddEvent(context.Background(), model.CalendarEvent{
		Title:     "跟Alex開會",
		StartTime: time.Date(2024, 6, 12, 14, 0, 0, 0, taipei),
		EndTime:   time.Date(2024, 6, 12, 15, 0, 0, 0, taipei),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/events?view=week&date=2024-06-12", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	resp := decode[eventsResponse](t, rec)
	if resp.View != calendar.ViewWeek || resp.Prev != "2024-06-05" || resp.Next != "2024-06-19" || resp.Today != "2024-06-12" {
		t.Errorf("navigation = %+v", resp)
	}
	if len(resp.Days) != 7 {
		t.Fatalf("days = %d", len(resp.Days))
	}
	// Monday 10th is the first column, so Wednesday is index 2.
	if got := resp.Days[2].Events; len(got) != 1 || got[0].ID != ev.ID {
		t.Errorf("wednesday events = %+v", got)
	}

	month := decode[eventsResponse](t, env.do(t, http.MethodGet, "/api/events", nil))
	if month.View != calendar.ViewMonth || month.Date != "2024-06-12" || len(month.Days) != 35 {
		t.Errorf("default view = %s %s %d days", month.View, month.Date, len(month.Days))
	}

	for _, path := range []string{"/api/events?view=year", "/api/events?date=12/06/2024"} {
		if rec := env.do(t, http.MethodGet, path, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}
}

func TestExportEndpoint(t *testing.T) {
	env := newEnv(t, nil)
	if _, err := env.book.AddEvent(context.Background(), model.CalendarEvent{
		Title:     "Dentist",
		StartTime: time.Date(2024, 6, 12, 9, 0, 0, 0, taipei),
		EndTime:   time.Date(2024, 6, 12, 10, 0, 0, 0, taipei),
	}); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/calendar.ics", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("status = %d, type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "SUMMARY:Dentist") {
		t.Errorf("body:\n%s", body)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	env := newEnv(t, nil)

	cur := decode[settings.AiConfig](t, env.do(t, http.MethodGet, "/api/settings/ai", nil))
	if cur != settings.Defaults() {
		t.Errorf("initial settings = %+v", cur)
	}

	rec := env.do(t, http.MethodPut, "/api/settings/ai", map[string]any{
		"provider": "openai",
		"keys":     map[string]string{"openai": "sk-test"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", rec.Code, rec.Body)
	}
	got := decode[settings.AiConfig](t, env.do(t, http.MethodGet, "/api/settings/ai", nil))
	if got.Provider != settings.ProviderOpenAI || got.Keys.OpenAI != "sk-test" || got.Models.OpenAI != "gpt-4o" {
		t.Errorf("after PUT = %+v", got)
	}

	if rec := env.do(t, http.MethodPut, "/api/settings/ai", map[string]any{"provider": "anthropic"}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid provider = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/settings/ai", "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d", rec.Code)
	}
}

func imageUpload(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestAssistantSessionFlow(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/assistant/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d", rec.Code)
	}
	sess := decode[sessionResponse](t, rec)
	base := "/api/assistant/sessions/" + sess.ID

	pngHeader := []byte("\x89PNG\r\n\x1a\n0000")
	body, ct := imageUpload(t, "flyer.png", "", pngHeader)
	req := httptest.NewRequest(http.MethodPost, base+"/image", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("attach = %d: %s", rec.Code, rec.Body)
	}
	if img := decode[sessionResponse](t, rec).Image; img == nil || img.MIMEType != "image/png" || img.Name != "flyer.png" {
		t.Errorf("image = %+v", img)
	}

	rec = env.do(t, http.MethodPost, base+"/messages", submitRequest{Prompt: "牙醫"})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", rec.Code, rec.Body)
	}
	turn := decode[assistant.TurnResult](t, rec)
	if len(turn.Created) != 1 || turn.Created[0].Title != "牙醫" {
		t.Errorf("created = %+v", turn.Created)
	}
	if len(turn.Messages) != 2 || turn.Messages[0].Role != model.RoleUser || turn.Messages[1].Content != "好的，已為您新增 1 個行程。" {
		t.Errorf("messages = %+v", turn.Messages)
	}
	if len(env.dispatcher.images) != 1 || env.dispatcher.images[0] == nil {
		t.Error("image was not sent with the prompt")
	}

	after := decode[sessionResponse](t, env.do(t, http.MethodGet, base, nil))
	if after.Image != nil || len(after.Messages) != 2 || after.Busy {
		t.Errorf("session after turn = %+v", after)
	}

	week := decode[eventsResponse](t, env.do(t, http.MethodGet, "/api/events?view=day&date=2024-06-13", nil))
	if len(week.Days) != 1 || len(week.Days[0].Events) != 1 {
		t.Errorf("created event not visible: %+v", week.Days)
	}

	if rec := env.do(t, http.MethodPost, base+"/messages", submitRequest{Prompt: "  "}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty prompt = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, base, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, base, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d", rec.Code)
	}
}

func TestAttachRejectsNonImage(t *testing.T) {
	env := newEnv(t, nil)
	sess := decode[sessionResponse](t, env.do(t, http.MethodPost, "/api/assistant/sessions", nil))

	body, ct := imageUpload(t, "notes.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/sessions/"+sess.ID+"/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/assistant/sessions/"+sess.ID+"/image", nil)
	if rec.Code != http.StatusOK || decode[sessionResponse](t, rec).Image != nil {
		t.Errorf("clear image = %d", rec.Code)
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	env := newEnv(t, nil)
	env.dispatcher.started = make(chan struct{})
	env.dispatcher.release = make(chan struct{})
	sess := decode[sessionResponse](t, env.do(t, http.MethodPost, "/api/assistant/sessions", nil))
	path := "/api/assistant/sessions/" + sess.ID + "/messages"

	done := make(chan int)
	go func() {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"prompt":"first"}`))
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		done <- rec.Code
	}()
	<-env.dispatcher.started

	if rec := env.do(t, http.MethodPost, path, submitRequest{Prompt: "second"}); rec.Code != http.StatusConflict {
		t.Errorf("concurrent submit = %d", rec.Code)
	}
	close(env.dispatcher.release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first submit = %d", code)
	}
}

func TestStaticPreviewAndFallbacks(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "data-ready") {
		t.Errorf("index = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/nope", nil); rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "error") {
		t.Errorf("unknown api = %d %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, http.MethodGet, "/api/assistant/sessions/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing session = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/preview.png", nil); rec.Code != http.StatusNotFound {
		t.Errorf("preview before snapshot = %d", rec.Code)
	}
	if err := os.WriteFile(env.cfg.PreviewPath, []byte("\x89PNG\r\n\x1a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if rec := env.do(t, http.MethodGet, "/preview.png", nil); rec.Code != http.StatusOK {
		t.Errorf("preview = %d", rec.Code)
	}

	subs := decode[subscriptionsResponse](t, env.do(t, http.MethodGet, "/api/subscriptions", nil))
	if subs.Sources == nil || len(subs.Sources) != 0 {
		t.Errorf("subscriptions = %+v", subs)
	}
	if rec := env.do(t, http.MethodPost, "/api/subscriptions/refresh", nil); rec.Code != http.StatusOK {
		t.Errorf("refresh = %d", rec.Code)
	}
}
