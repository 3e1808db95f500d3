package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	appLog "promptcal/internal/log"
	"promptcal/internal/model"
)

// EventStore persists locally created events. *store.Store implements it.
type EventStore interface {
	InsertEvent(ctx context.Context, ev model.CalendarEvent) error
	ListEvents(ctx context.Context, from, to time.Time, loc *time.Location) ([]model.CalendarEvent, error)
	AllEvents(ctx context.Context, loc *time.Location) ([]model.CalendarEvent, error)
}

// OccurrenceSource yields read-only events from subscriptions.
type OccurrenceSource interface {
	Occurrences(from, to time.Time) ([]model.CalendarEvent, error)
}

// Publisher mirrors new events to an external calendar.
type Publisher interface {
	Publish(ctx context.Context, ev model.CalendarEvent) error
}

// Book is the shared event collection: local events from the store merged
// with subscription occurrences. Subscriptions and publisher are optional.
type Book struct {
	store     EventStore
	subs      OccurrenceSource
	publisher Publisher
	loc       *time.Location
}

func NewBook(store EventStore, subs OccurrenceSource, publisher Publisher, loc *time.Location) *Book {
	if loc == nil {
		loc = time.Local
	}
	return &Book{store: store, subs: subs, publisher: publisher, loc: loc}
}

// AddEvent assigns an ID, persists ev and publishes it. A publish failure is
// logged and does not fail the call.
func (b *Book) AddEvent(ctx context.Context, ev model.CalendarEvent) (model.CalendarEvent, error) {
	if err := ev.Validate(); err != nil {
		return model.CalendarEvent{}, err
	}
	ev.ID = uuid.NewString()
	ev.SourceID = ""
	ev.StartTime = ev.StartTime.In(b.loc)
	ev.EndTime = ev.EndTime.In(b.loc)

	if err := b.store.InsertEvent(ctx, ev); err != nil {
		return model.CalendarEvent{}, fmt.Errorf("saving event: %w", err)
	}
	appLog.Info("event created", "id", ev.ID, "title", ev.Title, "start", ev.StartTime.Format(time.RFC3339), "all_day", ev.AllDay)

	if b.publisher != nil {
		if err := b.publisher.Publish(ctx, ev); err != nil {
			appLog.Error("publishing event failed", err, "id", ev.ID)
		}
	}
	return ev, nil
}

// Events returns local and subscribed events overlapping [from, to), sorted
// all-day first then by start.
func (b *Book) Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	events, err := b.store.ListEvents(ctx, from, to, b.loc)
	if err != nil {
		return nil, err
	}
	if b.subs != nil {
		occ, err := b.subs.Occurrences(from, to)
		if err != nil {
			appLog.Error("expanding subscriptions failed", err)
		} else {
			events = append(events, occ...)
		}
	}
	SortEvents(events)
	return events, nil
}

// LocalEvents returns every event created in this calendar.
func (b *Book) LocalEvents(ctx context.Context) ([]model.CalendarEvent, error) {
	return b.store.AllEvents(ctx, b.loc)
}
