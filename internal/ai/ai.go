// Package ai turns a natural-language prompt (plus an optional image) into
// createCalendarEvent function calls using one of the supported LLM
// providers. Every provider response is normalized into Response.
package ai

import (
	"context"
	"encoding/base64"
	"time"
)

// CreateEventFunction is the only function declared to the providers.
const CreateEventFunction = "createCalendarEvent"

// Image is an attachment sent along with the prompt.
type Image struct {
	Data     []byte
	MIMEType string
	Name     string
}

// DataURI renders the image as a base64 data URI.
func (img *Image) DataURI() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Request is one single-turn call to a provider.
type Request struct {
	Prompt   string
	Image    *Image
	APIKey   string
	Model    string
	Endpoint string
}

// FunctionCall is one tool invocation requested by the model. ArgsErr is set
// when the provider's argument payload could not be decoded.
type FunctionCall struct {
	Name    string
	Args    map[string]any
	ArgsErr error
}

// Response is the provider-independent result of a call. A nil Text means the
// model produced no summary text; nil FunctionCalls means no tool call.
type Response struct {
	Text          *string
	FunctionCalls []FunctionCall
}

// Client is implemented by every provider.
type Client interface {
	CreateEventFromPrompt(ctx context.Context, req Request) (*Response, error)
}

// clock is shared by the provider clients so the date anchor in the system
// instruction can be pinned in tests.
type clock struct {
	Now      func() time.Time
	Location *time.Location
}

func (c clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c clock) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

func strPtr(s string) *string {
	return &s
}
