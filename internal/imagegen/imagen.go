package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/deusflow/dispatch/internal/ratelimit"
	"google.golang.org/genai"
)

// Imagen generates images with Google's Imagen models through the Gemini API,
// using the same key as the Gemini model backend.
type Imagen struct {
	client      *genai.Client
	model       string
	aspectRatio string
	budget      *ratelimit.Budget
}

// NewImagen creates the client. baseURL and httpClient are optional.
func NewImagen(ctx context.Context, apiKey, model, aspectRatio, baseURL string, httpClient *http.Client, budget *ratelimit.Budget) (*Imagen, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Imagen client: %w", err)
	}
	return &Imagen{client: client, model: model, aspectRatio: aspectRatio, budget: budget}, nil
}

// Generate returns PNG bytes produced for prompt.
func (g *Imagen) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if err := reserve(g.budget, prompt); err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/png",
		AspectRatio:    g.aspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, errors.New("API did not return any generated images")
	}
	img := resp.GeneratedImages[0].Image
	if img == nil || len(img.ImageBytes) == 0 {
		return nil, errors.New("image generation returned no data")
	}
	return img.ImageBytes, nil
}
