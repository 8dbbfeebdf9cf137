package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// Paragraph selectors tried in order; the first that yields enough text wins.
var contentSelectors = []string{
	"article p",
	".article-body p",
	".article-content p",
	".post-content p",
	".entry-content p",
	"main p",
	"#content p",
	"p",
}

const (
	minParagraphRunes = 20
	maxEnrichedRunes  = 1800
)

// Enricher replaces the truncated bodies that news APIs return with the
// paragraphs of the article page itself.
type Enricher struct {
	client   *http.Client
	max      int
	minRunes int
	log      *slog.Logger
}

// NewEnricher fetches at most max pages per pool. Articles whose body is
// already minRunes long are left alone.
func NewEnricher(client *http.Client, max, minRunes int, log *slog.Logger) *Enricher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{client: client, max: max, minRunes: minRunes, log: log}
}

// Enrich updates short articles in place and returns the slice. Failures
// only leave the article as it was.
func (e *Enricher) Enrich(ctx context.Context, articles []Article) []Article {
	var targets []int
	for i, a := range articles {
		if len(targets) >= e.max {
			break
		}
		if a.Link != "" && utf8.RuneCountInString(a.Body()) < e.minRunes {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return articles
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, idx := range targets {
		eg.Go(func() error {
			text, err := e.extract(egCtx, articles[idx].Link)
			if err != nil {
				e.log.Debug("can't get article content", "link", articles[idx].Link, "error", err)
				return nil
			}
			if utf8.RuneCountInString(text) > utf8.RuneCountInString(articles[idx].Body()) {
				articles[idx].Content = text
			}
			return nil
		})
	}
	_ = eg.Wait()

	e.log.Debug("article content enriched", "candidates", len(targets))
	return articles
}

func (e *Enricher) extract(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}

	content := extractParagraphs(doc)
	if content == "" {
		return "", fmt.Errorf("no article content found")
	}
	return content, nil
}

func extractParagraphs(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, aside").Remove()

	var paragraphs []string
	for _, selector := range contentSelectors {
		paragraphs = paragraphs[:0]
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if utf8.RuneCountInString(text) > minParagraphRunes {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 2 {
			break
		}
	}

	// keep whole paragraphs up to the limit; only an oversized first one is cut
	var b strings.Builder
	used := 0
	for _, p := range paragraphs {
		n := utf8.RuneCountInString(p)
		if used == 0 {
			if n > maxEnrichedRunes {
				p = string([]rune(p)[:maxEnrichedRunes])
				n = maxEnrichedRunes
			}
			b.WriteString(p)
			used = n
			continue
		}
		if used+2+n > maxEnrichedRunes {
			break
		}
		b.WriteString("\n\n")
		b.WriteString(p)
		used += 2 + n
	}
	return b.String()
}
