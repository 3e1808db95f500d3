// Package settings holds the AI provider configuration: which provider is
// active plus per-provider credentials and models. The record is persisted as
// JSON in a key-value store and merged over defaults on load.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	appLog "promptcal/internal/log"
	"promptcal/internal/store"
)

// StorageKey is the key the AI settings record lives under.
const StorageKey = "aiConfig"

// ErrInvalidProvider is returned by Manager.Save for an unrecognized provider.
var ErrInvalidProvider = errors.New("unknown AI provider")

type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderCustom Provider = "custom"
)

// Valid reports whether p is one of the recognized providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGemini, ProviderOpenAI, ProviderCustom:
		return true
	}
	return false
}

type Keys struct {
	Gemini string `json:"gemini"`
	OpenAI string `json:"openai"`
	Custom string `json:"custom"`
}

type Models struct {
	Gemini string `json:"gemini"`
	OpenAI string `json:"openai"`
	Custom string `json:"custom"`
}

// AiConfig selects the active LLM provider and carries credentials and
// model names for every provider.
type AiConfig struct {
	Provider  Provider `json:"provider"`
	Keys      Keys     `json:"keys"`
	Models    Models   `json:"models"`
	CustomURL string   `json:"customUrl"`
}

// Defaults returns the built-in configuration.
func Defaults() AiConfig {
	return AiConfig{
		Provider: ProviderGemini,
		Models: Models{
			Gemini: "gemini-2.5-flash",
			OpenAI: "gpt-4o",
			Custom: "custom-model-name",
		},
	}
}

// GeminiModels and OpenAIModels are the choices offered by the settings UI.
// Custom endpoints accept any model name.
var (
	GeminiModels = []string{"gemini-2.5-flash", "gemini-2.5-pro"}
	OpenAIModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"}
)

// Merge overlays the non-empty fields of stored onto base, field by field.
func Merge(base, stored AiConfig) AiConfig {
	out := base
	if stored.Provider != "" {
		out.Provider = stored.Provider
	}
	out.Keys.Gemini = pick(stored.Keys.Gemini, base.Keys.Gemini)
	out.Keys.OpenAI = pick(stored.Keys.OpenAI, base.Keys.OpenAI)
	out.Keys.Custom = pick(stored.Keys.Custom, base.Keys.Custom)
	out.Models.Gemini = pick(stored.Models.Gemini, base.Models.Gemini)
	out.Models.OpenAI = pick(stored.Models.OpenAI, base.Models.OpenAI)
	out.Models.Custom = pick(stored.Models.Custom, base.Models.Custom)
	out.CustomURL = pick(stored.CustomURL, base.CustomURL)
	return out
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// KV is the persistence the settings need. *store.Store implements it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
}

// Load reads the stored record and merges it over Defaults. A missing record
// yields the defaults; an unreadable one is logged and also yields defaults.
func Load(ctx context.Context, kv KV) (AiConfig, error) {
	raw, err := kv.Get(ctx, StorageKey)
	if errors.Is(err, store.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), err
	}

	var stored AiConfig
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		appLog.Error("stored ai settings are not valid JSON; using defaults", err)
		return Defaults(), nil
	}
	return Merge(Defaults(), stored), nil
}

// Save writes the whole record.
func Save(ctx context.Context, kv KV, cfg AiConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return kv.Put(ctx, StorageKey, string(data))
}

// Manager owns the process-wide AiConfig. Readers get a copy; writers go
// through Save, which persists before swapping the in-memory value.
type Manager struct {
	kv KV

	mu  sync.RWMutex
	cfg AiConfig
}

// NewManager loads the current record from kv.
func NewManager(ctx context.Context, kv KV) (*Manager, error) {
	cfg, err := Load(ctx, kv)
	if err != nil {
		return nil, fmt.Errorf("loading ai settings: %w", err)
	}
	appLog.Info("ai settings loaded", "provider", cfg.Provider)
	return &Manager{kv: kv, cfg: cfg}, nil
}

// Current returns a copy of the active configuration.
func (m *Manager) Current() AiConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Save validates, persists and activates cfg.
func (m *Manager) Save(ctx context.Context, cfg AiConfig) error {
	if !cfg.Provider.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, cfg.Provider)
	}
	if err := Save(ctx, m.kv, cfg); err != nil {
		appLog.Error("failed to save ai settings", err)
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	appLog.Info("ai settings saved", "provider", cfg.Provider)
	return nil
}
