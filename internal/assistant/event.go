package assistant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"promptcal/internal/ai"
	"promptcal/internal/model"
)

// EventConstructionError reports a function call whose arguments could not be
// turned into a valid event.
type EventConstructionError struct {
	Title string
	Err   error
}

func (e *EventConstructionError) Error() string {
	return fmt.Sprintf("building event %q: %v", e.Title, e.Err)
}

func (e *EventConstructionError) Unwrap() error {
	return e.Err
}

// local layouts are interpreted in the display location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func decodeArgs(args map[string]any) (ai.EventArgs, error) {
	var out ai.EventArgs
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(args); err != nil {
		return out, err
	}
	return out, nil
}

// titleOf extracts a printable title for error messages even when the rest
// of the arguments are unusable.
func titleOf(args map[string]any) string {
	if s, ok := args["title"].(string); ok && s != "" {
		return s
	}
	return "未命名"
}

// buildEvent converts createCalendarEvent arguments into an event in loc.
// The ID is left for the event sink to assign.
func buildEvent(call ai.FunctionCall, loc *time.Location) (model.CalendarEvent, error) {
	title := titleOf(call.Args)
	fail := func(err error) (model.CalendarEvent, error) {
		return model.CalendarEvent{}, &EventConstructionError{Title: title, Err: err}
	}

	if call.ArgsErr != nil {
		return fail(call.ArgsErr)
	}
	args, err := decodeArgs(call.Args)
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(args.Title) == "" {
		return fail(errors.New("title is required"))
	}

	var start, end time.Time
	if args.AllDay {
		start, err = parseDay(args.StartTime, loc)
		if err == nil {
			end, err = parseDay(args.EndTime, loc)
		}
	} else {
		start, err = parseInstant(args.StartTime, loc)
		if err == nil {
			end, err = parseInstant(args.EndTime, loc)
		}
	}
	if err != nil {
		return fail(err)
	}

	ev := model.CalendarEvent{
		Title:       args.Title,
		StartTime:   start,
		EndTime:     end,
		AllDay:      args.AllDay,
		Description: args.Description,
		Location:    args.Location,
	}
	if err := ev.Validate(); err != nil {
		return fail(err)
	}
	return ev, nil
}

// parseInstant accepts RFC 3339 timestamps (absolute) and zone-less local
// timestamps, which are read in loc.
func parseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("time is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// parseDay keeps the calendar date as written, ignoring any time or zone
// suffix, and returns its midnight in loc.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len("2006-01-02") {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	d, err := time.Parse("2006-01-02", s[:len("2006-01-02")])
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), nil
}
