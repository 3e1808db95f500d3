package caldav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"promptcal/internal/config"
	"promptcal/internal/model"
)

type recorded struct {
	method, path, auth, body string
}

func newServer(t *testing.T, status int) (*httptest.Server, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		mu.Lock()
		reqs = append(reqs, recorded{r.Method, r.URL.Path, user + ":" + pass, string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestPublishPutsCalendarObject(t *testing.T) {
	srv, reqs := newServer(t, http.StatusCreated)
	pub, err := New(config.CalDAVConfig{
		URL:          srv.URL,
		Username:     "alice",
		Password:     "secret",
		CalendarPath: "/calendars/alice/default",
	})
	if err != nil {
		t.Fatal(err)
	}
	pub.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	taipei := time.FixedZone("Asia/Taipei", 8*3600)
	ev := model.CalendarEvent{
		ID:        "abc-123",
		Title:     "跟Alex開會",
		StartTime: time.Date(2024, 6, 10, 14, 0, 0, 0, taipei),
		EndTime:   time.Date(2024, 6, 10, 15, 0, 0, 0, taipei),
		Location:  "台北101",
	}
	if err := pub.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	if len(*reqs) != 1 {
		t.Fatalf("got %d requests", len(*reqs))
	}
	got := (*reqs)[0]
	if got.method != http.MethodPut || got.path != "/calendars/alice/default/abc-123.ics" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if got.auth != "alice:secret" {
		t.Errorf("auth = %q", got.auth)
	}
	for _, want := range []string{"UID:abc-123", "SUMMARY:跟Alex開會", "DTSTART:20240610T060000Z", "DTEND:20240610T070000Z", "LOCATION:台北101"} {
		if !strings.Contains(got.body, want) {
			t.Errorf("body missing %q:\n%s", want, got.body)
		}
	}
}

func TestPublishAllDayUsesExclusiveEnd(t *testing.T) {
	srv, reqs := newServer(t, http.StatusCreated)
	pub, err := New(config.CalDAVConfig{URL: srv.URL, CalendarPath: "/cal/"})
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	ev := model.CalendarEvent{ID: "trip", Title: "Trip", StartTime: day, EndTime: day.AddDate(0, 0, 2), AllDay: true}
	if err := pub.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	body := (*reqs)[0].body
	if !strings.Contains(body, "DTSTART;VALUE=DATE:20240610") || !strings.Contains(body, "DTEND;VALUE=DATE:20240613") {
		t.Errorf("all-day body:\n%s", body)
	}
}

func TestPublishServerError(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden)
	pub, err := New(config.CalDAVConfig{URL: srv.URL, CalendarPath: "/cal"})
	if err != nil {
		t.Fatal(err)
	}
	ev := model.CalendarEvent{ID: "x", Title: "x", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour)}
	if err := pub.Publish(context.Background(), ev); err == nil {
		t.Error("expected error on 403")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(config.CalDAVConfig{CalendarPath: "/cal"}); err == nil {
		t.Error("missing url accepted")
	}
	if _, err := New(config.CalDAVConfig{URL: "http://example.com"}); err == nil {
		t.Error("missing calendar path accepted")
	}
}
