package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single read-only ICS subscription.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// CalDAVConfig enables pushing assistant-created events to a CalDAV
// collection. Leaving URL empty disables publishing.
type CalDAVConfig struct {
	URL          string `yaml:"url" json:"url"`
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password" json:"password"`
	CalendarPath string `yaml:"calendar_path" json:"calendar_path"`
}

// Config is the top-level server configuration. AI provider settings are not
// part of this file; they are persisted in the database (see internal/settings).
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for display and as the anchor
	// for relative dates in prompts (e.g. "Asia/Taipei").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday starts the week and month views.
	// Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Database is the SQLite file holding events and AI settings.
	Database string `yaml:"database" json:"database"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for refreshing ICS subscriptions.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// OpenAIEndpoint overrides the chat-completions URL of the "openai"
	// provider. Empty means api.openai.com.
	OpenAIEndpoint string `yaml:"openai_endpoint" json:"openai_endpoint"`

	// PreviewPath is where `promptcal snapshot` writes its PNG and where
	// /preview.png reads it from.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	// ICS is the list of subscribed read-only calendars.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// CalDAV, if non-nil, publishes created events to a CalDAV server.
	CalDAV *CalDAVConfig `yaml:"caldav,omitempty" json:"caldav,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Taipei",
		WeekStart:   "monday",
		LogLevel:    "info",
		Database:    "./data/promptcal.db",
		RefreshCron: "*/15 * * * *",
		PreviewPath: "./data/preview.png",
		ICS:         []ICSConfig{},
	}
}

// Normalize fills empty fields from DefaultConfig and drops a CalDAV block
// that has no URL.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = def.WeekStart
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.PreviewPath == "" {
		c.PreviewPath = def.PreviewPath
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.CalDAV != nil && c.CalDAV.URL == "" {
		c.CalDAV = nil
	}
}

// Location resolves Timezone. An empty or unknown name yields time.Local;
// the error reports the unknown name.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// envOverrides maps environment variables (typically from .env) onto
// config fields. They are applied after the file is read and never written
// back.
var envOverrides = map[string]func(*Config) *string{
	"PROMPTCAL_LISTEN":          func(c *Config) *string { return &c.Listen },
	"PROMPTCAL_TIMEZONE":        func(c *Config) *string { return &c.Timezone },
	"PROMPTCAL_DATABASE":        func(c *Config) *string { return &c.Database },
	"PROMPTCAL_LOG_LEVEL":       func(c *Config) *string { return &c.LogLevel },
	"PROMPTCAL_OPENAI_ENDPOINT": func(c *Config) *string { return &c.OpenAIEndpoint },
	"PROMPTCAL_PREVIEW_PATH":    func(c *Config) *string { return &c.PreviewPath },
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, field := range envOverrides {
		if v, ok := lookup(name); ok && v != "" {
			*field(c) = v
		}
	}
}

// Load reads the YAML file at path. On first run the file is created with
// defaults. Environment overrides are applied last, then empty fields are
// filled from defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.Normalize()
	return cfg, nil
}

// Save normalizes cfg and writes it as YAML, replacing path atomically.
func Save(path string, cfg *Config) error {
	switch {
	case path == "":
		return errors.New("config path is empty")
	case cfg == nil:
		return errors.New("config is nil")
	}
	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data next to path and renames it into place with
// 0600 permissions.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".promptcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
