package ai

import (
	"context"
	"strings"

	"github.com/deusflow/dispatch/internal/ratelimit"
)

// Type is a JSON schema primitive understood by every backend.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Schema describes the structured output a prompt must produce. Backends
// translate it into their native response-schema format.
type Schema struct {
	Type        Type
	Description string
	Enum        []string
	Items       *Schema
	Properties  map[string]*Schema
	Required    []string
}

// Completer sends a single prompt and returns the raw JSON text of the
// model's answer, shaped by schema.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string, schema *Schema) (string, error)
}

// Budgeted charges every call against the model budget before delegating.
type Budgeted struct {
	Completer Completer
	Budget    *ratelimit.Budget
}

func (b Budgeted) CompleteJSON(ctx context.Context, prompt string, schema *Schema) (string, error) {
	if b.Budget != nil {
		if err := b.Budget.Use(ratelimit.Model); err != nil {
			return "", err
		}
	}
	return b.Completer.CompleteJSON(ctx, prompt, schema)
}

// extractJSON strips markdown code fences from a string that may contain
// JSON wrapped in ```json ... ``` or ``` ... ``` blocks.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if after, found := strings.CutPrefix(s, "```json"); found {
		if idx := strings.LastIndex(after, "```"); idx >= 0 {
			after = after[:idx]
		}
		return strings.TrimSpace(after)
	}

	if after, found := strings.CutPrefix(s, "```"); found {
		if idx := strings.LastIndex(after, "```"); idx >= 0 {
			after = after[:idx]
		}
		return strings.TrimSpace(after)
	}

	return s
}
