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

// NewsAPI queries newsapi.org v2.
type NewsAPI struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	lookbackDays int
	now          func() time.Time
}

func NewNewsAPI(apiKey, baseURL string, lookbackDays int, client *http.Client) *NewsAPI {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &NewsAPI{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

func (n *NewsAPI) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	URLToImage  string `json:"urlToImage"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

func (n *NewsAPI) Fetch(ctx context.Context, topic config.Topic) ([]Article, error) {
	if n.apiKey == "" || topic.NewsAPI == nil {
		return nil, nil
	}

	params := url.Values{}
	for k, v := range topic.NewsAPI.Params {
		params.Set(k, v)
	}
	// top-headlines rejects "from"
	if topic.NewsAPI.Endpoint == "everything" && n.lookbackDays > 0 && params.Get("from") == "" {
		params.Set("from", lookbackDate(n.now(), n.lookbackDays))
	}

	endpoint := fmt.Sprintf("%s/v2/%s?%s", n.baseURL, topic.NewsAPI.Endpoint, params.Encode())

	var resp newsAPIResponse
	if err := getJSON(ctx, n.client, endpoint, "X-Api-Key", n.apiKey, &resp); err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("newsapi: %s", resp.Message)
	}
	if resp.Articles == nil {
		return nil, errors.New("newsapi: unexpected response format")
	}

	articles := make([]Article, 0, len(resp.Articles))
	for _, item := range resp.Articles {
		// NewsAPI keeps tombstones for deleted stories.
		if item.Title == "[Removed]" {
			continue
		}
		content := item.Content
		if content == "" {
			content = item.Description
		}
		articles = append(articles, Article{
			Title:       item.Title,
			Link:        item.URL,
			PublishedAt: item.PublishedAt,
			SourceName:  item.Source.Name,
			ImageURL:    item.URLToImage,
			Description: item.Description,
			Content:     content,
		})
	}
	return articles, nil
}
