package ai

import (
	"context"
	"time"

	appLog "promptcal/internal/log"
	"promptcal/internal/settings"
)

// Gateway routes a prompt to the provider selected in the AI settings.
type Gateway struct {
	Gemini         Client
	OpenAI         Client
	OpenAIEndpoint string
}

// NewGateway wires the real provider clients.
func NewGateway(loc *time.Location, openAIEndpoint string) *Gateway {
	return &Gateway{
		Gemini:         NewGeminiClient(loc),
		OpenAI:         NewOpenAIClient(loc),
		OpenAIEndpoint: openAIEndpoint,
	}
}

// Dispatch makes a single attempt against the active provider.
func (g *Gateway) Dispatch(ctx context.Context, prompt string, image *Image, cfg settings.AiConfig) (*Response, error) {
	var (
		client Client
		req    = Request{Prompt: prompt, Image: image}
	)
	switch cfg.Provider {
	case settings.ProviderGemini:
		client = g.Gemini
		req.APIKey, req.Model = cfg.Keys.Gemini, cfg.Models.Gemini
	case settings.ProviderOpenAI:
		client = g.OpenAI
		req.APIKey, req.Model = cfg.Keys.OpenAI, cfg.Models.OpenAI
		req.Endpoint = g.OpenAIEndpoint
		if req.Endpoint == "" {
			req.Endpoint = DefaultOpenAIEndpoint
		}
	case settings.ProviderCustom:
		client = g.OpenAI
		req.APIKey, req.Model = cfg.Keys.Custom, cfg.Models.Custom
		req.Endpoint = cfg.CustomURL
		if req.Endpoint == "" {
			req.Endpoint = DefaultOpenAIEndpoint
		}
	default:
		return nil, &UnknownProviderError{Provider: string(cfg.Provider)}
	}

	appLog.Info("dispatching prompt", "provider", cfg.Provider, "model", req.Model, "image", image != nil)
	return client.CreateEventFromPrompt(ctx, req)
}
