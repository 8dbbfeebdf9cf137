package news

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/deusflow/dispatch/internal/config"
	"golang.org/x/sync/errgroup"
)

const maxConcurrent = 10

// Provider fetches the articles one news source has for one topic. A
// provider with nothing configured for the topic returns nil, nil.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, topic config.Topic) ([]Article, error)
}

// Gateway fans out every (topic, provider) pair and merges the results into
// one deduplicated pool.
type Gateway struct {
	providers []Provider
	enricher  *Enricher
	log       *slog.Logger

	failures atomic.Int64
}

func NewGateway(log *slog.Logger, providers ...Provider) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{providers: providers, log: log}
}

// WithEnricher makes FetchAll fill in short article bodies from the
// article pages.
func (g *Gateway) WithEnricher(e *Enricher) *Gateway {
	g.enricher = e
	return g
}

// FetchAll queries all providers for all topics concurrently. A failing
// provider contributes no articles; FetchAll itself only fails when ctx is
// done. Results are merged in topic order, then provider order, so the first
// occurrence of a link is deterministic.
func (g *Gateway) FetchAll(ctx context.Context, topics []config.Topic) ([]Article, error) {
	results := make([][]Article, len(topics)*len(g.providers))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrent)

	for ti, topic := range topics {
		for pi, p := range g.providers {
			idx := ti*len(g.providers) + pi
			eg.Go(func() error {
				articles, err := p.Fetch(egCtx, topic)
				if err != nil {
					g.failures.Add(1)
					g.log.Warn("news provider failed",
						"provider", p.Name(),
						"topic", topic.Type,
						"error", err,
					)
					return nil // skip failures, don't fail the batch
				}
				results[idx] = articles
				g.log.Debug("news provider fetched",
					"provider", p.Name(),
					"topic", topic.Type,
					"items", len(articles),
				)
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("fetching news: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetching news: %w", err)
	}

	var all []Article
	for _, r := range results {
		all = append(all, r...)
	}
	for i := range all {
		all[i].Description = CleanText(all[i].Description)
		all[i].Content = CleanText(all[i].Content)
	}

	unique := Dedupe(all)
	if g.enricher != nil {
		unique = g.enricher.Enrich(ctx, unique)
	}
	g.log.Info("news pool gathered", "fetched", len(all), "unique", len(unique))
	return unique, nil
}

// Failures returns how many provider calls have failed since creation.
func (g *Gateway) Failures() int64 {
	return g.failures.Load()
}
