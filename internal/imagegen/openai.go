package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/deusflow/dispatch/internal/ratelimit"
	"github.com/sashabaranov/go-openai"
)

// OpenAI generates images with the OpenAI images API.
type OpenAI struct {
	client *openai.Client
	model  string
	size   string
	budget *ratelimit.Budget
}

func NewOpenAI(apiKey, model, size, baseURL string, budget *ratelimit.Budget) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		size:   size,
		budget: budget,
	}
}

// Generate returns the encoded image produced for prompt.
func (g *OpenAI) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if err := reserve(g.budget, prompt); err != nil {
		return nil, err
	}

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		Size:           g.size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("image generation returned no data")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decoding generated image: %w", err)
	}
	return data, nil
}
