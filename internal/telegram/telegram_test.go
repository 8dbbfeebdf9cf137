package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/deusflow/dispatch/internal/retry"
	"github.com/deusflow/dispatch/internal/webhook"
)

var fastRetry = retry.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}

func TestSendBundle_PostsPhotos(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendPhoto" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var p map[string]any
		_ = json.NewDecoder(r.Body).Decode(&p)
		got = append(got, p)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "TOKEN", "@dispatch", srv.Client(), fastRetry)
	err := n.SendBundle(context.Background(), []webhook.BundleItem{
		{ImageURL: "https://img/1.png", Caption: "Rates <up>", SourceLink: "https://n/1?a=1&b=2"},
		{ImageURL: "https://img/2.png", Caption: "Second"},
	})
	if err != nil {
		t.Fatalf("SendBundle: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(got))
	}
	if got[0]["chat_id"] != "@dispatch" || got[0]["photo"] != "https://img/1.png" || got[0]["parse_mode"] != "HTML" {
		t.Errorf("unexpected payload %v", got[0])
	}
	caption := got[0]["caption"].(string)
	if !strings.HasPrefix(caption, "Rates &lt;up&gt;") || !strings.Contains(caption, `href="https://n/1?a=1&amp;b=2"`) {
		t.Errorf("caption = %q", caption)
	}
	if got[1]["caption"] != "Second" {
		t.Errorf("caption without link = %q", got[1]["caption"])
	}
}

func TestSendBundle_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL, "T", "x", srv.Client(), fastRetry).SendBundle(context.Background(), []webhook.BundleItem{{ImageURL: "u"}})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("unexpected error %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("400 should not be retried, got %d calls", calls.Load())
	}
}

func TestFormatCaption_Truncates(t *testing.T) {
	it := webhook.BundleItem{Caption: strings.Repeat("word ", 400), SourceLink: "https://n/1"}
	c := formatCaption(it)
	if n := utf8.RuneCountInString(c); n > maxCaptionRunes {
		t.Errorf("caption has %d runes", n)
	}
	if !strings.HasSuffix(c, `<a href="https://n/1">Read more</a>`) {
		t.Errorf("link was cut: %q", c[len(c)-60:])
	}
}
