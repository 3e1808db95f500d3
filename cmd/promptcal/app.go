package main

import (
	"context"
	"net/http"
	"time"

	"promptcal/internal/ai"
	"promptcal/internal/assistant"
	"promptcal/internal/caldav"
	"promptcal/internal/calendar"
	"promptcal/internal/config"
	"promptcal/internal/ics"
	appLog "promptcal/internal/log"
	"promptcal/internal/settings"
	"promptcal/internal/store"
	"promptcal/internal/web"
)

// app wires the components every command shares.
type app struct {
	cfg      *config.Config
	loc      *time.Location
	store    *store.Store
	settings *settings.Manager
	subs     *ics.Subscriptions
	book     *calendar.Book
	sessions *assistant.Sessions
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	mgr, err := settings.NewManager(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	subs := ics.NewSubscriptions(icsSources(cfg.ICS), ics.NewFetcher(nil), loc)

	var pub calendar.Publisher
	if cfg.CalDAV != nil {
		p, err := caldav.New(*cfg.CalDAV)
		if err != nil {
			appLog.Error("caldav publishing disabled", err)
		} else {
			pub = p
		}
	}
	book := calendar.NewBook(st, subs, pub, loc)
	gateway := ai.NewGateway(loc, cfg.OpenAIEndpoint)

	return &app{
		cfg:      cfg,
		loc:      loc,
		store:    st,
		settings: mgr,
		subs:     subs,
		book:     book,
		sessions: assistant.NewSessions(gateway, book, mgr, loc),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		appLog.Error("closing database failed", err)
	}
}

// handler builds the HTTP API on top of the shared components. Pass a
// config without BasicAuth to get an unauthenticated handler.
func (a *app) handler(cfg *config.Config) http.Handler {
	return web.NewServer(cfg, web.Deps{
		Book:          a.book,
		Settings:      a.settings,
		Sessions:      a.sessions,
		Subscriptions: a.subs,
		Location:      a.loc,
	}).Handler()
}

// icsSources maps the configured subscriptions to fetch sources. A missing
// ID falls back to the name, then the URL.
func icsSources(list []config.ICSConfig) []ics.Source {
	sources := make([]ics.Source, 0, len(list))
	for _, c := range list {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			if c.Name != "" {
				id = c.Name
			} else {
				id = c.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, Name: c.Name, URL: c.URL})
	}
	return sources
}
