package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"promptcal/internal/model"
)

const (
	productID  = "-//promptcal//Calendar Export//EN"
	dateLayout = "20060102"
)

// Export renders events as a VCALENDAR. Timed events are written in UTC;
// all-day events as DATE values with the exclusive DTEND RFC 5545 expects.
func Export(name string, events []model.CalendarEvent, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(now.UTC())
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.AllDay {
			ve.SetProperty(ical.ComponentPropertyDtStart, ev.StartTime.Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
			ve.SetProperty(ical.ComponentPropertyDtEnd, ev.EndTime.AddDate(0, 0, 1).Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
		} else {
			ve.SetStartAt(ev.StartTime.UTC())
			ve.SetEndAt(ev.EndTime.UTC())
		}
	}
	return cal.Serialize()
}
