package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/dispatch/internal/config"
	"github.com/mmcdole/gofeed"
)

// RSS reads the feeds listed on a topic. A feed that fails to load is logged
// and skipped; Fetch only errors when every feed failed.
type RSS struct {
	client *http.Client
	log    *slog.Logger
}

func NewRSS(client *http.Client, log *slog.Logger) *RSS {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &RSS{client: client, log: log}
}

func (r *RSS) Name() string { return "rss" }

func (r *RSS) Fetch(ctx context.Context, topic config.Topic) ([]Article, error) {
	if len(topic.RSS) == 0 {
		return nil, nil
	}

	parser := gofeed.NewParser()
	parser.Client = r.client

	var (
		articles []Article
		lastErr  error
		ok       int
	)
	for _, feedURL := range topic.RSS {
		feed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			lastErr = err
			r.log.Warn("error parsing RSS feed", "url", feedURL, "error", err)
			continue
		}
		ok++
		for _, item := range feed.Items {
			articles = append(articles, itemToArticle(feed, item))
		}
		r.log.Debug("loaded RSS feed", "url", feedURL, "items", len(feed.Items))
	}

	if ok == 0 {
		return nil, fmt.Errorf("rss: all %d feeds failed: %w", len(topic.RSS), lastErr)
	}
	return articles, nil
}

func itemToArticle(feed *gofeed.Feed, item *gofeed.Item) Article {
	art := Article{
		Title:       strings.TrimSpace(item.Title),
		Link:        item.Link,
		PublishedAt: item.Published,
		SourceName:  feed.Title,
		Description: item.Description,
		Content:     item.Content,
	}
	if item.PublishedParsed != nil {
		art.PublishedAt = item.PublishedParsed.UTC().Format(time.RFC3339)
	}

	if item.Image != nil {
		art.ImageURL = item.Image.URL
	}
	if art.ImageURL == "" {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				art.ImageURL = enc.URL
				break
			}
		}
	}
	return art
}
