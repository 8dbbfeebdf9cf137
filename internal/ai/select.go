package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deusflow/dispatch/internal/config"
	"github.com/deusflow/dispatch/internal/news"
)

// Analysis is the model's pick for one slot.
type Analysis struct {
	OriginalArticleIndex int      `json:"originalArticleId"`
	Category             string   `json:"category"`
	Headline             string   `json:"headline"`
	HighlightPhrases     []string `json:"highlightPhrases"`
	ImagePrompt          string   `json:"imagePrompt"`
	Caption              string   `json:"caption"`
	SourceName           string   `json:"sourceName"`
}

// Selector picks and analyzes articles for the layout's slots.
type Selector struct {
	completer Completer
	layout    *config.Layout
	maxRunes  int
	log       *slog.Logger
}

func NewSelector(c Completer, layout *config.Layout, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{completer: c, layout: layout, maxRunes: defaultMaxRunes, log: log}
}

// Select returns the analyses in the order the model produced them. Indices
// and categories are not validated here.
func (s *Selector) Select(ctx context.Context, articles []news.Article) ([]Analysis, error) {
	if len(articles) == 0 {
		s.log.Info("no articles provided for analysis")
		return nil, nil
	}

	prompt := SelectPrompt(articles, s.layout, s.maxRunes)
	text, err := s.completer.CompleteJSON(ctx, prompt, analysisSchema(s.layout.CategoryTypes()))
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	analyses, err := parseAnalyses(text)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	s.log.Debug("analysis received", "analyses", len(analyses), "slots", len(s.layout.Slots))
	return analyses, nil
}

func parseAnalyses(text string) ([]Analysis, error) {
	text = extractJSON(text)
	if text == "" {
		return nil, errors.New("received an empty text response from the API")
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if trimmed := strings.TrimSpace(string(raw)); !strings.HasPrefix(trimmed, "[") {
		return nil, errors.New("expected an array of items, but got a different type")
	}

	var analyses []Analysis
	if err := json.Unmarshal(raw, &analyses); err != nil {
		return nil, fmt.Errorf("invalid analysis items: %w", err)
	}
	return analyses, nil
}
