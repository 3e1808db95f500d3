// Package caldav mirrors locally created events into a CalDAV collection.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"promptcal/internal/config"
	appLog "promptcal/internal/log"
	"promptcal/internal/model"
)

const productID = "-//promptcal//CalDAV//EN"

// Publisher PUTs each event as its own calendar object under CalendarPath.
type Publisher struct {
	client       *caldav.Client
	calendarPath string
	now          func() time.Time
}

// basicAuthTransport adds Basic Auth to every request.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

// New connects to the server described by cfg. The collection path is
// required; discovery is not attempted.
func New(cfg config.CalDAVConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("caldav url is empty")
	}
	if cfg.CalendarPath == "" {
		return nil, errors.New("caldav calendar_path is empty")
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: cfg.Username,
			password: cfg.Password,
			base:     http.DefaultTransport,
		},
		Timeout: 30 * time.Second,
	}
	client, err := caldav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	path := cfg.CalendarPath
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	appLog.Info("caldav publishing enabled", "calendar", path)
	return &Publisher{client: client, calendarPath: path, now: time.Now}, nil
}

func (p *Publisher) Publish(ctx context.Context, ev model.CalendarEvent) error {
	if ev.ID == "" {
		return errors.New("event has no id")
	}
	objPath := p.calendarPath + ev.ID + ".ics"
	if _, err := p.client.PutCalendarObject(ctx, objPath, eventToCalendar(ev, p.now())); err != nil {
		return fmt.Errorf("put %s: %w", objPath, err)
	}
	appLog.Debug("caldav event published", "id", ev.ID, "path", objPath)
	return nil
}

func eventToCalendar(ev model.CalendarEvent, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, ev.ID)
	vevent.Props.SetText(ical.PropSummary, ev.Title)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if ev.Description != "" {
		vevent.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		vevent.Props.SetText(ical.PropLocation, ev.Location)
	}

	if ev.AllDay {
		vevent.Props.SetDate(ical.PropDateTimeStart, ev.StartTime)
		vevent.Props.SetDate(ical.PropDateTimeEnd, ev.EndTime.AddDate(0, 0, 1))
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.StartTime.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndTime.UTC())
	}

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}
