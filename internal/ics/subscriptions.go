package ics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "promptcal/internal/log"
	"promptcal/internal/model"
)

// SourceStatus describes the last refresh of one subscription.
type SourceStatus struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Events      int       `json:"events"`
	RefreshedAt time.Time `json:"refreshed_at,omitempty"`
	FromCache   bool      `json:"from_cache"`
	Error       string    `json:"error,omitempty"`
}

// Subscriptions keeps the parsed contents of every configured ICS feed and
// refreshes them on a cron schedule. A feed that fails to refresh keeps its
// previous contents.
type Subscriptions struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location

	mu     sync.RWMutex
	parsed map[string][]ParsedEvent
	status map[string]SourceStatus
}

func NewSubscriptions(sources []Source, fetcher *Fetcher, loc *time.Location) *Subscriptions {
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	if loc == nil {
		loc = time.Local
	}
	status := make(map[string]SourceStatus, len(sources))
	for _, src := range sources {
		status[src.ID] = SourceStatus{ID: src.ID, Name: src.Name}
	}
	return &Subscriptions{
		fetcher: fetcher,
		sources: sources,
		loc:     loc,
		parsed:  make(map[string][]ParsedEvent),
		status:  status,
	}
}

// Refresh fetches and parses every source. Per-source failures are joined
// into the returned error; the remaining sources are still updated.
func (s *Subscriptions) Refresh(ctx context.Context) error {
	var errs []error
	for _, src := range s.sources {
		if err := s.refreshOne(ctx, src); err != nil {
			appLog.Error("ics refresh failed", err, "id", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("%s: %w", src.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Subscriptions) refreshOne(ctx context.Context, src Source) error {
	res, err := s.fetcher.FetchOne(ctx, src)
	if err == nil {
		var events []ParsedEvent
		events, err = ParseICS(src, res.Body, s.loc)
		if err == nil {
			s.mu.Lock()
			s.parsed[src.ID] = events
			s.status[src.ID] = SourceStatus{
				ID: src.ID, Name: src.Name, Events: len(events),
				RefreshedAt: time.Now(), FromCache: res.FromCache,
			}
			s.mu.Unlock()
			return nil
		}
	}

	s.mu.Lock()
	st := s.status[src.ID]
	st.Error = err.Error()
	s.status[src.ID] = st
	s.mu.Unlock()
	return err
}

// Occurrences expands every feed over [from, to).
func (s *Subscriptions) Occurrences(from, to time.Time) ([]model.CalendarEvent, error) {
	s.mu.RLock()
	var all []ParsedEvent
	for _, src := range s.sources {
		all = append(all, s.parsed[src.ID]...)
	}
	s.mu.RUnlock()

	if len(all) == 0 {
		return nil, nil
	}
	return ExpandOccurrences(all, ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      from,
		RangeEnd:        to,
	})
}

// Status lists sources in configuration order.
func (s *Subscriptions) Status() []SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SourceStatus, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, s.status[src.ID])
	}
	return out
}

// Run refreshes once, then on every tick of schedule until ctx is done.
func (s *Subscriptions) Run(ctx context.Context, schedule string) error {
	if len(s.sources) == 0 {
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(schedule, func() {
		if err := s.Refresh(ctx); err == nil {
			appLog.Debug("ics subscriptions refreshed", "sources", len(s.sources))
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	_ = s.Refresh(ctx)
	c.Start()
	appLog.Info("ics refresh scheduled", "schedule", schedule, "sources", len(s.sources))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
