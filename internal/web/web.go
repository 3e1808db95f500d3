package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"promptcal/internal/assistant"
	"promptcal/internal/calendar"
	"promptcal/internal/config"
	"promptcal/internal/ics"
	appLog "promptcal/internal/log"
	"promptcal/internal/model"
	"promptcal/internal/settings"
)

// EventBook is the read side of the calendar. *calendar.Book implements it.
type EventBook interface {
	Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error)
	LocalEvents(ctx context.Context) ([]model.CalendarEvent, error)
}

// SettingsStore holds the AI provider settings. *settings.Manager implements it.
type SettingsStore interface {
	Current() settings.AiConfig
	Save(ctx context.Context, cfg settings.AiConfig) error
}

// SubscriptionSet is implemented by *ics.Subscriptions.
type SubscriptionSet interface {
	Status() []ics.SourceStatus
	Refresh(ctx context.Context) error
}

// Deps are the components the HTTP API is built on. Subscriptions may be nil.
type Deps struct {
	Book          EventBook
	Settings      SettingsStore
	Sessions      *assistant.Sessions
	Subscriptions SubscriptionSet
	Location      *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server provides the calendar, settings and assistant APIs plus the
// embedded UI.
type Server struct {
	cfg    *config.Config
	deps   Deps
	cal    calendar.Calendar
	router *mux.Router
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		cal:    calendar.New(deps.Location, cfg.WeekStart),
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// empty username or password disables auth
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="promptcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg *config.Config, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(requestLogger)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/preview.png", s.handlePreview).Methods(http.MethodGet, http.MethodHead)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/calendar.ics", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/settings/ai", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings/ai", s.handlePutSettings).Methods(http.MethodPut)
	api.HandleFunc("/subscriptions", s.handleSubscriptions).Methods(http.MethodGet)
	api.HandleFunc("/subscriptions/refresh", s.handleRefresh).Methods(http.MethodPost)
	s.registerAssistantRoutes(api)

	// Everything else is the embedded UI.
	r.PathPrefix("/").Handler(s.staticFileServer())
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start).String())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded UI from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unknown /api paths must 404 rather than return HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// handlePreview serves the PNG written by `promptcal snapshot`.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.cfg.PreviewPath == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.cfg.PreviewPath)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Current())
}

// handlePutSettings merges the body over the active settings, so a client
// may send only the fields it changes.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var incoming settings.AiConfig
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	next := settings.Merge(s.deps.Settings.Current(), incoming)
	if err := s.deps.Settings.Save(r.Context(), next); err != nil {
		if errors.Is(err, settings.ErrInvalidProvider) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, next)
}

type subscriptionsResponse struct {
	Sources []ics.SourceStatus `json:"sources"`
	Error   string             `json:"error,omitempty"`
}

func (s *Server) subscriptionStatus() []ics.SourceStatus {
	if s.deps.Subscriptions == nil {
		return []ics.SourceStatus{}
	}
	return s.deps.Subscriptions.Status()
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, subscriptionsResponse{Sources: s.subscriptionStatus()})
}

// handleRefresh refreshes every subscription now. Per-source failures are
// reported in the body; the request itself still succeeds.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	resp := subscriptionsResponse{}
	if s.deps.Subscriptions != nil {
		if err := s.deps.Subscriptions.Refresh(r.Context()); err != nil {
			appLog.Warn("manual refresh had failures", "error", err.Error())
			resp.Error = err.Error()
		}
	}
	resp.Sources = s.subscriptionStatus()
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
