package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/deusflow/dispatch/internal/news"
)

const defaultMaxRunes = 1500

type translation struct {
	OriginalID        int    `json:"originalId"`
	TranslatedTitle   string `json:"translatedTitle"`
	TranslatedContent string `json:"translatedContent"`
}

// Translator rewrites a pool of articles into English with one model call.
type Translator struct {
	completer Completer
	maxRunes  int
	log       *slog.Logger
}

func NewTranslator(c Completer, log *slog.Logger) *Translator {
	if log == nil {
		log = slog.Default()
	}
	return &Translator{completer: c, maxRunes: defaultMaxRunes, log: log}
}

// Translate overwrites title and content of every article the model returns
// a translation for. It never fails: on any error the pool is returned as is.
func (t *Translator) Translate(ctx context.Context, articles []news.Article) []news.Article {
	if len(articles) == 0 {
		return articles
	}

	items, err := t.request(ctx, articles)
	if err != nil {
		t.log.Warn("translation failed, continuing with original articles", "error", err)
		return articles
	}

	applied := 0
	for _, item := range items {
		if item.OriginalID < 0 || item.OriginalID >= len(articles) {
			continue
		}
		a := &articles[item.OriginalID]
		a.Title = item.TranslatedTitle
		a.Content = item.TranslatedContent
		// description is the content fallback, keep it in sync
		if a.Description != "" {
			a.Description = item.TranslatedContent
		}
		applied++
	}
	t.log.Debug("translation applied", "articles", len(articles), "translated", applied)
	return articles
}

func (t *Translator) request(ctx context.Context, articles []news.Article) ([]translation, error) {
	text, err := t.completer.CompleteJSON(ctx, TranslatePrompt(articles, t.maxRunes), translationSchema)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("received an empty text response from the translation API")
	}

	var items []translation
	if err := json.Unmarshal([]byte(extractJSON(text)), &items); err != nil {
		return nil, err
	}
	return items, nil
}
