package ai

import (
	"context"
	"errors"
	"testing"

	"promptcal/internal/settings"
)

type recordingClient struct {
	calls []Request
}

func (c *recordingClient) CreateEventFromPrompt(_ context.Context, req Request) (*Response, error) {
	c.calls = append(c.calls, req)
	return &Response{}, nil
}

func TestGatewayRouting(t *testing.T) {
	base := settings.Defaults()
	base.Keys = settings.Keys{Gemini: "g", OpenAI: "o", Custom: "c"}
	base.CustomURL = "http://llm.local/v1/chat/completions"

	tests := []struct {
		provider     settings.Provider
		wantGemini   bool
		wantKey      string
		wantModel    string
		wantEndpoint string
	}{
		{settings.ProviderGemini, true, "g", "gemini-2.5-flash", ""},
		{settings.ProviderOpenAI, false, "o", "gpt-4o", DefaultOpenAIEndpoint},
		{settings.ProviderCustom, false, "c", "custom-model-name", "http://llm.local/v1/chat/completions"},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			gem, oai := &recordingClient{}, &recordingClient{}
			g := &Gateway{Gemini: gem, OpenAI: oai}
			cfg := base
			cfg.Provider = tt.provider
			img := &Image{Data: []byte{1}, MIMEType: "image/png"}

			if _, err := g.Dispatch(context.Background(), "prompt", img, cfg); err != nil {
				t.Fatal(err)
			}

			hit, other := oai, gem
			if tt.wantGemini {
				hit, other = gem, oai
			}
			if len(hit.calls) != 1 || len(other.calls) != 0 {
				t.Fatalf("calls: selected=%d other=%d", len(hit.calls), len(other.calls))
			}
			req := hit.calls[0]
			if req.APIKey != tt.wantKey || req.Model != tt.wantModel || req.Endpoint != tt.wantEndpoint {
				t.Errorf("request = %+v", req)
			}
			if req.Prompt != "prompt" || req.Image != img {
				t.Error("prompt or image not passed through")
			}
			if cfg.Provider != tt.provider || cfg.Keys != base.Keys {
				t.Error("config mutated")
			}
		})
	}
}

func TestGatewayConfiguredOpenAIEndpoint(t *testing.T) {
	oai := &recordingClient{}
	g := &Gateway{Gemini: &recordingClient{}, OpenAI: oai, OpenAIEndpoint: "http://proxy/v1/chat/completions"}
	cfg := settings.Defaults()
	cfg.Provider = settings.ProviderOpenAI
	if _, err := g.Dispatch(context.Background(), "p", nil, cfg); err != nil {
		t.Fatal(err)
	}
	if oai.calls[0].Endpoint != "http://proxy/v1/chat/completions" {
		t.Errorf("endpoint = %q", oai.calls[0].Endpoint)
	}
}

func TestGatewayUnknownProvider(t *testing.T) {
	gem, oai := &recordingClient{}, &recordingClient{}
	g := &Gateway{Gemini: gem, OpenAI: oai}
	cfg := settings.Defaults()
	cfg.Provider = "anthropic"

	_, err := g.Dispatch(context.Background(), "p", nil, cfg)
	var unknown *UnknownProviderError
	if !errors.As(err, &unknown) || err.Error() != "Unknown AI provider: anthropic" {
		t.Fatalf("err = %v", err)
	}
	if len(gem.calls)+len(oai.calls) != 0 {
		t.Error("no client should be called")
	}
}

func TestGatewayCustomWithoutURLUsesDefaultEndpoint(t *testing.T) {
	oai := &recordingClient{}
	g := &Gateway{Gemini: &recordingClient{}, OpenAI: oai, OpenAIEndpoint: "http://proxy/v1/chat/completions"}
	cfg := settings.Defaults()
	cfg.Provider = settings.ProviderCustom
	cfg.Keys.Custom = "k"
	cfg.CustomURL = ""
	if _, err := g.Dispatch(context.Background(), "p", nil, cfg); err != nil {
		t.Fatal(err)
	}
	if len(oai.calls) != 1 || oai.calls[0].Endpoint != DefaultOpenAIEndpoint {
		t.Errorf("calls = %+v", oai.calls)
	}
}
