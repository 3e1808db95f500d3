package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	appLog "promptcal/internal/log"
)

// DefaultOpenAIEndpoint is used for the "openai" provider, and for "custom"
// when no URL is set.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

const unknownErrorText = "An unknown error occurred."

// OpenAIClient speaks the chat-completions protocol over plain HTTP, so it
// serves OpenAI itself and any compatible endpoint.
type OpenAIClient struct {
	clock
	HTTPClient *http.Client
}

func NewOpenAIClient(loc *time.Location) *OpenAIClient {
	return &OpenAIClient{
		clock:      clock{Location: loc},
		HTTPClient: &http.Client{},
	}
}

// chatResponse keeps message as a pointer so a missing message is
// distinguishable from an empty one.
type chatResponse struct {
	Choices []struct {
		Message *openai.ChatCompletionMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) CreateEventFromPrompt(ctx context.Context, req Request) (*Response, error) {
	if req.APIKey == "" {
		return nil, &MissingCredentialError{Provider: "OpenAI/Custom"}
	}
	if req.Endpoint == "" {
		return nil, errors.New("no chat completions endpoint configured")
	}

	body, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	appLog.Debug("chat completions request", "endpoint", req.Endpoint, "model", req.Model)
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpError(resp.StatusCode, data)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &MalformedResponseError{What: "chat completions response", Err: err}
	}
	return normalizeOpenAI(&parsed), nil
}

func (c *OpenAIClient) buildRequest(req Request) (*openai.ChatCompletionRequest, error) {
	tool, err := openAITool()
	if err != nil {
		return nil, fmt.Errorf("building tool schema: %w", err)
	}

	var userParts []openai.ChatMessagePart
	if req.Image != nil {
		userParts = append(userParts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: req.Image.DataURI()},
		})
	}
	userParts = append(userParts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	})

	return &openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemInstruction(c.now(), c.location())},
			{Role: openai.ChatMessageRoleUser, MultiContent: userParts},
		},
		Tools:      []openai.Tool{tool},
		ToolChoice: "auto",
	}, nil
}

// httpError prefers the provider's error.message and falls back to the
// status text.
func httpError(status int, body []byte) *ProviderHTTPError {
	msg := http.StatusText(status)
	var errResp openai.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return &ProviderHTTPError{StatusCode: status, Message: msg}
}

func normalizeOpenAI(resp *chatResponse) *Response {
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return &Response{Text: strPtr(unknownErrorText)}
	}
	msg := resp.Choices[0].Message

	out := &Response{}
	if msg.Content != "" {
		out.Text = strPtr(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		call := FunctionCall{Name: tc.Function.Name}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Args); err != nil {
			call.ArgsErr = &MalformedResponseError{What: "arguments for " + tc.Function.Name, Err: err}
			appLog.Warn("tool call arguments are not valid JSON", "function", tc.Function.Name, "id", tc.ID)
		}
		out.FunctionCalls = append(out.FunctionCalls, call)
	}
	return out
}
