package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/dispatch/internal/config"
)

// APITube queries the APITube "everything" endpoint.
type APITube struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	lookbackDays int
	now          func() time.Time
}

func NewAPITube(apiKey, baseURL string, lookbackDays int, client *http.Client) *APITube {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &APITube{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

func (a *APITube) Name() string { return "apitube" }

type apiTubeResponse struct {
	Data   []apiTubeArticle `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type apiTubeArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	Summary     string `json:"summary"`
	Content     string `json:"content"`
	Image       *struct {
		URL string `json:"url"`
	} `json:"image"`
	Source *struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
	} `json:"source"`
}

func (a *APITube) Fetch(ctx context.Context, topic config.Topic) ([]Article, error) {
	if a.apiKey == "" || topic.APITube == nil {
		return nil, nil
	}

	params := url.Values{}
	for k, v := range topic.APITube.Params {
		params.Set(k, v)
	}
	if a.lookbackDays > 0 && params.Get("published_at.after") == "" {
		params.Set("published_at.after", lookbackDate(a.now(), a.lookbackDays))
	}

	endpoint := a.baseURL + "/v1/news/everything?" + params.Encode()

	var resp apiTubeResponse
	if err := getJSON(ctx, a.client, endpoint, "X-API-Key", a.apiKey, &resp); err != nil {
		return nil, fmt.Errorf("apitube: %w", err)
	}

	if resp.Data == nil {
		if len(resp.Errors) > 0 && resp.Errors[0].Message != "" {
			return nil, fmt.Errorf("apitube: %s", resp.Errors[0].Message)
		}
		return nil, errors.New("apitube: unexpected response format")
	}

	articles := make([]Article, 0, len(resp.Data))
	for _, item := range resp.Data {
		articles = append(articles, item.toArticle())
	}
	return articles, nil
}

func (item apiTubeArticle) toArticle() Article {
	art := Article{
		Title:       item.Title,
		Link:        item.URL,
		PublishedAt: item.PublishedAt,
		Description: item.Summary,
		Content:     item.Content,
		SourceName:  "APITube",
	}
	if art.Content == "" {
		art.Content = item.Summary
	}
	if item.Image != nil {
		art.ImageURL = item.Image.URL
	}
	if item.Source != nil {
		switch {
		case item.Source.Name != "":
			art.SourceName = item.Source.Name
		case item.Source.Domain != "":
			art.SourceName = item.Source.Domain
		}
	}
	return art
}
