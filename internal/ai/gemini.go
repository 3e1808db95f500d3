package ai

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	appLog "promptcal/internal/log"
)

type generateFunc func(ctx context.Context, req Request, systemInstruction string, parts []genai.Part) (*genai.GenerateContentResponse, error)

// GeminiClient calls the Gemini API through the vendor SDK.
type GeminiClient struct {
	clock
	generate generateFunc
}

// NewGeminiClient returns a client whose date anchor is computed in loc.
func NewGeminiClient(loc *time.Location) *GeminiClient {
	return &GeminiClient{
		clock:    clock{Location: loc},
		generate: sdkGenerate,
	}
}

func (c *GeminiClient) CreateEventFromPrompt(ctx context.Context, req Request) (*Response, error) {
	if req.APIKey == "" {
		return nil, &MissingCredentialError{Provider: "Gemini"}
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.Image != nil {
		parts = append([]genai.Part{genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data}}, parts...)
	}

	appLog.Debug("gemini request", "model", req.Model, "parts", len(parts))
	resp, err := c.generate(ctx, req, SystemInstruction(c.now(), c.location()), parts)
	if err != nil {
		return nil, err
	}
	return normalizeGemini(resp), nil
}

func sdkGenerate(ctx context.Context, req Request, systemInstruction string, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(req.APIKey))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	model.Tools = []*genai.Tool{geminiTool()}

	return model.GenerateContent(ctx, parts...)
}

// normalizeGemini reads the first candidate: function-call parts become
// FunctionCalls verbatim, text parts are concatenated into Text.
func normalizeGemini(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil || len(resp.Candidates) == 0 {
		return out
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return out
	}

	var text strings.Builder
	hasText := false
	for _, part := range cand.Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			out.FunctionCalls = append(out.FunctionCalls, FunctionCall{Name: p.Name, Args: p.Args})
		case genai.Text:
			text.WriteString(string(p))
			hasText = true
		}
	}
	if hasText {
		out.Text = strPtr(text.String())
	}
	return out
}
