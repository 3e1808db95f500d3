package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "promptcal/internal/log"
	"promptcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig bounds an expansion. Occurrences overlapping
// [RangeStart, RangeEnd) are produced, converted into DisplayLocation.
type ExpandConfig struct {
	DisplayLocation        *time.Location
	RangeStart             time.Time
	RangeEnd               time.Time
	MaxOccurrencesPerEvent int
}

// ExpandOccurrences turns parsed VEVENTs into concrete read-only calendar
// events. RRULE and EXDATE are applied, and RECURRENCE-ID overrides replace
// the instance they target. The result is ordered by start time.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) ([]model.CalendarEvent, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: range end is before range start")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	var (
		bases     []ParsedEvent
		overrides = make(map[string][]ParsedEvent)
	)
	for _, ev := range events {
		if ev.IsOverride() {
			key := ev.Source.ID + "\x00" + ev.UID
			overrides[key] = append(overrides[key], ev)
			continue
		}
		bases = append(bases, ev)
	}

	var out []model.CalendarEvent
	for _, ev := range bases {
		ov := overrides[ev.Source.ID+"\x00"+ev.UID]
		if ev.RawRRule == "" {
			start, end, src := applyOverride(ev, ov, ev.Start, ev.End)
			if overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
				out = append(out, occurrence(src, start, end, cfg.DisplayLocation))
			}
			continue
		}
		occ, capped := expandRecurring(ev, ov, cfg)
		if capped {
			appLog.Warn("expand: occurrences truncated", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		}
		out = append(out, occ...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.CalendarEvent, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Widen the lower bound by the duration so events that started before
	// the range but are still running are included.
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	capped := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		capped = true
	}

	out := make([]model.CalendarEvent, 0, len(starts))
	for _, s := range starts {
		var e time.Time
		if ev.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			e = s.AddDate(0, 0, daysBetween(ev.Start, ev.End))
		} else {
			e = s.Add(dur)
		}
		start, end, src := applyOverride(ev, overrides, s, e)
		if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, occurrence(src, start, end, cfg.DisplayLocation))
	}
	return out, capped
}

// applyOverride returns the override targeting the instance at start, if
// any, otherwise the base instance unchanged.
func applyOverride(base ParsedEvent, overrides []ParsedEvent, start, end time.Time) (time.Time, time.Time, ParsedEvent) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov.Start, ov.End, ov
		}
	}
	return start, end, base
}

func occurrence(ev ParsedEvent, start, end time.Time, loc *time.Location) model.CalendarEvent {
	start, end = start.In(loc), end.In(loc)
	if ev.AllDay {
		// Keep the written dates rather than shifting midnight across zones.
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	}
	return model.CalendarEvent{
		ID:          ev.UID + "/" + start.Format(time.RFC3339),
		SourceID:    ev.Source.ID,
		Title:       ev.Summary,
		StartTime:   start,
		EndTime:     end,
		AllDay:      ev.AllDay,
		Description: ev.Description,
		Location:    ev.Location,
	}
}

// overlaps treats [aStart, aEnd] as closed so zero-length events on the
// range start are kept, and the range as half-open.
func overlaps(aStart, aEnd, rStart, rEnd time.Time) bool {
	return aStart.Before(rEnd) && !aEnd.Before(rStart)
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
