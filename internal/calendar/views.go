// Package calendar computes the date ranges and per-day event lists behind
// the calendar views, and owns the event book the assistant writes into.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"promptcal/internal/model"
)

type View string

const (
	ViewDay      View = "day"
	ViewThreeDay View = "3day"
	ViewWeek     View = "week"
	ViewMonth    View = "month"
	ViewSchedule View = "schedule"
)

// Views lists the views in the order the UI offers them.
var Views = []View{ViewDay, ViewThreeDay, ViewWeek, ViewMonth, ViewSchedule}

// ParseView accepts the canonical names plus the UI labels ("3-Day").
// An empty string selects the month view.
func ParseView(s string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "month":
		return ViewMonth, nil
	case "day":
		return ViewDay, nil
	case "3day", "3-day", "threeday":
		return ViewThreeDay, nil
	case "week":
		return ViewWeek, nil
	case "schedule":
		return ViewSchedule, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Calendar holds the display settings the view arithmetic depends on.
type Calendar struct {
	Location  *time.Location
	WeekStart time.Weekday
}

func New(loc *time.Location, weekStart string) Calendar {
	if loc == nil {
		loc = time.Local
	}
	ws := time.Monday
	if strings.EqualFold(weekStart, "sunday") {
		ws = time.Sunday
	}
	return Calendar{Location: loc, WeekStart: ws}
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Today is the start of the current day in the display location.
func (c Calendar) Today(now time.Time) time.Time {
	return model.StartOfDay(now, c.loc())
}

func (c Calendar) startOfWeek(t time.Time) time.Time {
	d := model.StartOfDay(t, c.loc())
	offset := (int(d.Weekday()) - int(c.WeekStart) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

func (c Calendar) startOfMonth(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, c.loc())
}

// Range returns the half-open interval [start, end) a view covers around
// anchor. Month covers whole weeks spanning the month; Schedule covers the
// calendar month only.
func (c Calendar) Range(v View, anchor time.Time) (time.Time, time.Time) {
	day := model.StartOfDay(anchor, c.loc())
	switch v {
	case ViewDay:
		return day, day.AddDate(0, 0, 1)
	case ViewThreeDay:
		return day, day.AddDate(0, 0, 3)
	case ViewWeek:
		ws := c.startOfWeek(day)
		return ws, ws.AddDate(0, 0, 7)
	case ViewSchedule:
		ms := c.startOfMonth(day)
		return ms, ms.AddDate(0, 1, 0)
	default:
		ms := c.startOfMonth(day)
		last := ms.AddDate(0, 1, -1)
		return c.startOfWeek(ms), c.startOfWeek(last).AddDate(0, 0, 7)
	}
}

// Days lists each day start in the view's range.
func (c Calendar) Days(v View, anchor time.Time) []time.Time {
	start, end := c.Range(v, anchor)
	var days []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Step moves anchor n pages forward (negative n moves back). Month and
// Schedule page by month, Week by week, Day by one day and 3-Day by three.
func Step(v View, anchor time.Time, n int) time.Time {
	switch v {
	case ViewDay:
		return anchor.AddDate(0, 0, n)
	case ViewThreeDay:
		return anchor.AddDate(0, 0, 3*n)
	case ViewWeek:
		return anchor.AddDate(0, 0, 7*n)
	default:
		return addMonths(anchor, n)
	}
}

// addMonths clamps to the last day of the target month instead of
// overflowing, so Jan 31 + 1 month is Feb 28/29.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}

// SortEvents orders all-day events first, then by start time.
func SortEvents(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		return a.StartTime.Before(b.StartTime)
	})
}

// EventsOn returns the events starting on the calendar day of day, sorted.
func (c Calendar) EventsOn(events []model.CalendarEvent, day time.Time) []model.CalendarEvent {
	d := model.StartOfDay(day, c.loc())
	var out []model.CalendarEvent
	for _, ev := range events {
		if model.StartOfDay(ev.StartTime, c.loc()).Equal(d) {
			out = append(out, ev)
		}
	}
	SortEvents(out)
	return out
}

// Day is one column or cell of a view.
type Day struct {
	Date    time.Time             `json:"date"`
	InMonth bool                  `json:"in_month"`
	Today   bool                  `json:"today"`
	Past    bool                  `json:"past"`
	Events  []model.CalendarEvent `json:"events"`
}

// Layout distributes events over the days of a view. The schedule view
// keeps only days that have events.
func (c Calendar) Layout(v View, anchor, now time.Time, events []model.CalendarEvent) []Day {
	today := c.Today(now)
	month := c.startOfMonth(anchor)

	var out []Day
	for _, d := range c.Days(v, anchor) {
		evs := c.EventsOn(events, d)
		if v == ViewSchedule && len(evs) == 0 {
			continue
		}
		if evs == nil {
			evs = []model.CalendarEvent{}
		}
		out = append(out, Day{
			Date:    d,
			InMonth: c.startOfMonth(d).Equal(month),
			Today:   d.Equal(today),
			Past:    d.Before(today),
			Events:  evs,
		})
	}
	return out
}
