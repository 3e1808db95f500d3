// Package assistant runs the prompt-to-event conversation: it keeps the
// transcript, dispatches each prompt to the configured AI provider and turns
// the returned function calls into calendar events.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"promptcal/internal/ai"
	appLog "promptcal/internal/log"
	"promptcal/internal/model"
	"promptcal/internal/settings"
)

var (
	ErrBusy        = errors.New("a prompt is already being processed")
	ErrEmptyPrompt = errors.New("prompt is empty")
)

const (
	genericErrorText   = "抱歉，我遇到了一些問題，請稍後再試。"
	callFailedFormat   = "抱歉，建立行程 '%s' 時發生錯誤。"
	createdCountFormat = "好的，已為您新增 %d 個行程。"
)

// Dispatcher sends one prompt to the active provider. *ai.Gateway implements
// it.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, image *ai.Image, cfg settings.AiConfig) (*ai.Response, error)
}

// EventSink stores a new event and returns it with its assigned ID.
type EventSink interface {
	AddEvent(ctx context.Context, ev model.CalendarEvent) (model.CalendarEvent, error)
}

// ConfigSource yields the AI settings in effect for the next turn.
type ConfigSource interface {
	Current() settings.AiConfig
}

// TurnResult is what one Submit produced.
type TurnResult struct {
	Messages []model.Message       `json:"messages"`
	Created  []model.CalendarEvent `json:"created"`
}

// Conversation is one assistant session. At most one turn runs at a time.
type Conversation struct {
	ID string

	dispatcher Dispatcher
	sink       EventSink
	config     ConfigSource
	loc        *time.Location

	mu         sync.Mutex
	messages   []model.Message
	image      *ai.Image
	submitting bool
}

func NewConversation(id string, d Dispatcher, sink EventSink, cfg ConfigSource, loc *time.Location) *Conversation {
	if loc == nil {
		loc = time.Local
	}
	return &Conversation{ID: id, dispatcher: d, sink: sink, config: cfg, loc: loc}
}

// AttachImage sets the pending image, replacing any earlier one.
func (c *Conversation) AttachImage(img *ai.Image) {
	c.mu.Lock()
	c.image = img
	c.mu.Unlock()
}

func (c *Conversation) ClearImage() {
	c.mu.Lock()
	c.image = nil
	c.mu.Unlock()
}

func (c *Conversation) PendingImage() *ai.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image
}

// Transcript returns a copy of the messages so far.
func (c *Conversation) Transcript() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Submit runs one turn. The pending image is consumed by the turn whatever
// its outcome; an image attached while the turn is in flight stays pending
// for the next one.
func (c *Conversation) Submit(ctx context.Context, prompt string) (*TurnResult, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if strings.TrimSpace(prompt) == "" {
		c.mu.Unlock()
		return nil, ErrEmptyPrompt
	}
	c.submitting = true
	userMsg := model.Message{Role: model.RoleUser, Content: prompt}
	c.messages = append(c.messages, userMsg)
	image := c.image
	c.image = nil
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	result := &TurnResult{Messages: []model.Message{userMsg}}
	replies, created := c.runTurn(ctx, prompt, image)
	result.Created = created

	c.mu.Lock()
	for _, text := range replies {
		msg := model.Message{Role: model.RoleBot, Content: text}
		c.messages = append(c.messages, msg)
		result.Messages = append(result.Messages, msg)
	}
	c.mu.Unlock()

	return result, nil
}

// runTurn dispatches the prompt and applies the response. It returns the bot
// replies in transcript order. A panic in the provider or the sink ends the
// turn with the generic error reply; events saved before it are kept.
func (c *Conversation) runTurn(ctx context.Context, prompt string, image *ai.Image) (replies []string, created []model.CalendarEvent) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("assistant turn panicked", fmt.Errorf("%v", r), "session", c.ID)
			replies = append(replies, genericErrorText)
		}
	}()

	cfg := c.config.Current()
	resp, err := c.dispatcher.Dispatch(ctx, prompt, image, cfg)
	if err != nil {
		appLog.Error("assistant dispatch failed", err, "session", c.ID, "provider", cfg.Provider)
		msg := err.Error()
		if msg == "" {
			msg = genericErrorText
		}
		return []string{msg}, nil
	}
	if resp == nil {
		resp = &ai.Response{}
	}

	for i, call := range resp.FunctionCalls {
		if call.Name != ai.CreateEventFunction {
			appLog.Warn("ignoring unknown function call", "session", c.ID, "function", call.Name)
			continue
		}
		ev, err := c.createEvent(ctx, call)
		if err != nil {
			appLog.Error("function call failed", err, "session", c.ID, "index", i)
			replies = append(replies, fmt.Sprintf(callFailedFormat, titleOf(call.Args)))
			continue
		}
		created = append(created, ev)
	}

	switch {
	case resp.Text != nil && *resp.Text != "":
		replies = append(replies, *resp.Text)
	case len(created) > 0:
		replies = append(replies, fmt.Sprintf(createdCountFormat, len(created)))
	}

	appLog.Info("assistant turn finished", "session", c.ID, "calls", len(resp.FunctionCalls), "created", len(created))
	return replies, created
}

func (c *Conversation) createEvent(ctx context.Context, call ai.FunctionCall) (model.CalendarEvent, error) {
	ev, err := buildEvent(call, c.loc)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	saved, err := c.sink.AddEvent(ctx, ev)
	if err != nil {
		return model.CalendarEvent{}, &EventConstructionError{Title: ev.Title, Err: err}
	}
	return saved, nil
}
