package calendar

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"promptcal/internal/model"
	"promptcal/internal/store"
)

type fakeSubs []model.CalendarEvent

func (f fakeSubs) Occurrences(from, to time.Time) ([]model.CalendarEvent, error) {
	var out []model.CalendarEvent
	for _, ev := range f {
		if ev.StartTime.Before(to) && !ev.EndTime.Before(from) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakePublisher struct {
	err       error
	published []string
}

func (p *fakePublisher) Publish(_ context.Context, ev model.CalendarEvent) error {
	p.published = append(p.published, ev.ID)
	return p.err
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "book.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBookAddAndList(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("caldav unreachable")}
	subs := fakeSubs{{
		ID: "holiday@x/2024-06-10", SourceID: "holidays", Title: "端午節",
		StartTime: date(2024, 6, 10), EndTime: date(2024, 6, 10), AllDay: true,
	}}
	book := NewBook(openStore(t), subs, pub, taipei)

	ev, err := book.AddEvent(ctx, model.CalendarEvent{
		Title:     "跟Alex開會",
		StartTime: time.Date(2024, 6, 10, 6, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("AddEvent should succeed even when publishing fails: %v", err)
	}
	if ev.ID == "" || ev.StartTime.Location() != taipei {
		t.Errorf("event = %+v", ev)
	}
	if len(pub.published) != 1 || pub.published[0] != ev.ID {
		t.Errorf("published = %v", pub.published)
	}

	if _, err := book.AddEvent(ctx, model.CalendarEvent{
		Title:     "backwards",
		StartTime: date(2024, 6, 11),
		EndTime:   date(2024, 6, 10),
	}); err == nil {
		t.Error("end before start must be rejected")
	}

	got, err := book.Events(ctx, date(2024, 6, 10), date(2024, 6, 11))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].SourceID != "holidays" || got[1].ID != ev.ID {
		t.Errorf("Events = %+v", got)
	}

	local, err := book.LocalEvents(ctx)
	if err != nil || len(local) != 1 {
		t.Errorf("LocalEvents = %v, %v", local, err)
	}
}
