package web

import (
	"net/http"
	"time"

	"promptcal/internal/calendar"
	"promptcal/internal/ics"
	appLog "promptcal/internal/log"
)

const dateLayout = "2006-01-02"

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	View       calendar.View  `json:"view"`
	Date       string         `json:"date"`
	Today      string         `json:"today"`
	Prev       string         `json:"prev"`
	Next       string         `json:"next"`
	RangeStart time.Time      `json:"range_start"`
	RangeEnd   time.Time      `json:"range_end"`
	Timezone   string         `json:"timezone"`
	WeekStart  string         `json:"week_start"`
	Days       []calendar.Day `json:"days"`
}

// handleEvents lays out the events of one view page.
//
// GET /api/events?view=week&date=2024-06-12
//   - view: day, 3day, week, month (default) or schedule
//   - date: anchor day in the display timezone (default today)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := calendar.ParseView(q.Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loc := s.deps.Location
	now := s.deps.Now().In(loc)
	anchor := now
	if d := q.Get("date"); d != "" {
		anchor, err = time.ParseInLocation(dateLayout, d, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be yyyy-mm-dd")
			return
		}
	}

	start, end := s.cal.Range(view, anchor)
	events, err := s.deps.Book.Events(r.Context(), start, end)
	if err != nil {
		appLog.Error("api events: listing failed", err, "view", view)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	days := s.cal.Layout(view, anchor, now, events)
	if days == nil {
		days = []calendar.Day{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		View:       view,
		Date:       anchor.Format(dateLayout),
		Today:      s.cal.Today(now).Format(dateLayout),
		Prev:       calendar.Step(view, anchor, -1).Format(dateLayout),
		Next:       calendar.Step(view, anchor, 1).Format(dateLayout),
		RangeStart: start,
		RangeEnd:   end,
		Timezone:   loc.String(),
		WeekStart:  s.cal.WeekStart.String(),
		Days:       days,
	})
}

// handleExport serves the locally created events as an ICS feed, so the
// calendar can itself be subscribed to.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Book.LocalEvents(r.Context())
	if err != nil {
		appLog.Error("api export: listing failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	body := ics.Export("promptcal", events, s.deps.Now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="promptcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
