package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// OpenAI structured outputs require an object at the root, so array schemas
// are wrapped in {"items": [...]} and unwrapped again on the way back.
const wrapField = "items"

type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a chat-completions backend. An empty baseURL uses the
// public API.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) CompleteJSON(ctx context.Context, prompt string, schema *Schema) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.4,
	}

	wrapped := schema != nil && schema.Type != TypeObject
	if schema != nil {
		root := toDefinition(schema)
		if wrapped {
			root = jsonschema.Definition{
				Type:                 jsonschema.Object,
				Properties:           map[string]jsonschema.Definition{wrapField: root},
				Required:             []string{wrapField},
				AdditionalProperties: false,
			}
		}
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: &root,
				Strict: true,
			},
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	if !wrapped || content == "" {
		return content, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(content)), &envelope); err != nil {
		return "", fmt.Errorf("decoding OpenAI response envelope: %w", err)
	}
	inner, ok := envelope[wrapField]
	if !ok {
		return "", fmt.Errorf("OpenAI response is missing %q", wrapField)
	}
	return string(inner), nil
}

func toDefinition(s *Schema) jsonschema.Definition {
	d := jsonschema.Definition{
		Description: s.Description,
		Enum:        s.Enum,
	}
	switch s.Type {
	case TypeString:
		d.Type = jsonschema.String
	case TypeInteger:
		d.Type = jsonschema.Integer
	case TypeArray:
		d.Type = jsonschema.Array
	case TypeObject:
		d.Type = jsonschema.Object
		d.Required = s.Required
		d.AdditionalProperties = false
		d.Properties = make(map[string]jsonschema.Definition, len(s.Properties))
		for name, prop := range s.Properties {
			d.Properties[name] = toDefinition(prop)
		}
	}
	if s.Items != nil {
		items := toDefinition(s.Items)
		d.Items = &items
	}
	return d
}
