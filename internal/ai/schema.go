package ai

import (
	"encoding/json"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/invopop/jsonschema"
	openai "github.com/sashabaranov/go-openai"
)

const createEventDescription = "Creates a new calendar event with specified details."

// EventArgs are the createCalendarEvent arguments. Fields without omitempty
// are required in the declared schema.
type EventArgs struct {
	Title       string `json:"title" jsonschema_description:"The title of the event."`
	StartTime   string `json:"startTime" jsonschema_description:"The start time of the event in ISO 8601 format (e.g., '2024-08-15T14:00:00Z'). For all-day events, this should be the start of the day (midnight)."`
	EndTime     string `json:"endTime" jsonschema_description:"The end time of the event in ISO 8601 format (e.g., '2024-08-15T15:00:00Z'). For all-day events, this should be the start of the same day."`
	Description string `json:"description,omitempty" jsonschema_description:"A brief description of the event."`
	Location    string `json:"location,omitempty" jsonschema_description:"The location of the event."`
	AllDay      bool   `json:"allDay" jsonschema_description:"Whether the event lasts for the entire day. This MUST be true if the user specifies a date but no time."`
}

var eventArgsSchema = sync.OnceValue(func() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	return r.Reflect(&EventArgs{})
})

// openAIParameters returns the EventArgs schema as a plain JSON object
// suitable for a function tool's "parameters".
func openAIParameters() (map[string]any, error) {
	raw, err := json.Marshal(eventArgsSchema())
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	delete(params, "$schema")
	return params, nil
}

func openAITool() (openai.Tool, error) {
	params, err := openAIParameters()
	if err != nil {
		return openai.Tool{}, err
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        CreateEventFunction,
			Description: createEventDescription,
			Parameters:  params,
		},
	}, nil
}

func geminiTool() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        CreateEventFunction,
			Description: createEventDescription,
			Parameters:  toGeminiSchema(eventArgsSchema()),
		}},
	}
}

func toGeminiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        enumStrings(s.Enum),
	}
	if s.Items != nil {
		out.Items = toGeminiSchema(s.Items)
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		out.Properties = make(map[string]*genai.Schema, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = toGeminiSchema(pair.Value)
		}
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	}
	return genai.TypeUnspecified
}

func enumStrings(values []any) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
