// Package telegram posts finished content to a Telegram chat or channel.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/dispatch/internal/retry"
	"github.com/deusflow/dispatch/internal/webhook"
)

// Telegram rejects photo captions longer than this.
const maxCaptionRunes = 1024

type Notifier struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
	retry   retry.RetryConfig
}

func NewNotifier(baseURL, token, chatID string, client *http.Client, cfg retry.RetryConfig) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Notifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chatID:  chatID,
		client:  client,
		retry:   cfg,
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendBundle posts one photo per item, captioned with the item caption and
// a link to the source. Every item is attempted; errors are joined.
func (n *Notifier) SendBundle(ctx context.Context, items []webhook.BundleItem) error {
	var errs []error
	for i, it := range items {
		err := retry.WithRetry(ctx, n.retry, func() error {
			return n.sendPhoto(ctx, it.ImageURL, formatCaption(it))
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("telegram item %d: %w", i+1, err))
			continue
		}
		slog.Debug("photo sent to telegram", "item", i+1)
	}
	return errors.Join(errs...)
}

func (n *Notifier) sendPhoto(ctx context.Context, photoURL, caption string) error {
	payload := map[string]any{
		"chat_id":    n.chatID,
		"photo":      photoURL,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			slog.Debug("failed to close telegram response body", "error", err)
		}
	}(resp.Body)

	var r apiResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&r)
	if resp.StatusCode != http.StatusOK || !r.OK {
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return retry.Permanent(fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, r.Description))
		}
		return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, r.Description)
	}
	return nil
}

func formatCaption(it webhook.BundleItem) string {
	link := ""
	if it.SourceLink != "" {
		link = fmt.Sprintf("\n\n<a href=\"%s\">Read more</a>", html.EscapeString(it.SourceLink))
	}
	text := it.Caption
	// leave room for the link, which must not be cut
	budget := maxCaptionRunes - utf8.RuneCountInString(link)
	if utf8.RuneCountInString(html.EscapeString(text)) > budget {
		runes := []rune(text)
		for len(runes) > 0 && utf8.RuneCountInString(html.EscapeString(string(runes)))+1 > budget {
			runes = runes[:len(runes)-1]
		}
		text = strings.TrimSpace(string(runes)) + "…"
	}
	return html.EscapeString(text) + link
}
