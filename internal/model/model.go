package model

import (
	"errors"
	"time"
)

// CalendarEvent is a single concrete event shown in the calendar views.
//
// Locally created events (from the assistant) have an empty SourceID.
// Occurrences expanded from ICS subscriptions carry the subscription ID and
// are read-only.
type CalendarEvent struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id,omitempty"`
	Title       string    `json:"title"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	AllDay      bool      `json:"all_day"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// Validate checks the ordering invariant. Durations themselves are not
// second-guessed.
func (e CalendarEvent) Validate() error {
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return errors.New("event start and end time are required")
	}
	if e.EndTime.Before(e.StartTime) {
		return errors.New("event ends before it starts")
	}
	return nil
}

// StartOfDay truncates t to midnight of its calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is one assistant transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
