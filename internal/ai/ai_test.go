package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deusflow/dispatch/internal/config"
	"github.com/deusflow/dispatch/internal/news"
	"github.com/deusflow/dispatch/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
	prompts  []string
	schemas  []*Schema
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, prompt string, schema *Schema) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.schemas = append(f.schemas, schema)
	return f.response, f.err
}

func samplePool() []news.Article {
	return []news.Article{
		{Title: "শিরোনাম এক", Link: "https://n/0", Description: "বিবরণ", Content: "বিষয়বস্তু"},
		{Title: "Already English", Link: "https://n/1", Content: "English body"},
		{Title: "তৃতীয়", Link: "https://n/2", Description: "শুধু বিবরণ"},
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `[1,2]`, `[1,2]`},
		{"json fence", "```json\n[1]\n```", `[1]`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  [ ]  ", `[ ]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTranslate_EmptyPoolSkipsModel(t *testing.T) {
	fc := &fakeCompleter{}
	out := NewTranslator(fc, nil).Translate(context.Background(), nil)
	if len(out) != 0 {
		t.Errorf("expected empty result, got %d", len(out))
	}
	if fc.calls != 0 {
		t.Errorf("model called %d times for an empty pool", fc.calls)
	}
}

func TestTranslate_OverwritesInRangeItems(t *testing.T) {
	fc := &fakeCompleter{response: `[
		{"originalId": 0, "translatedTitle": "Headline one", "translatedContent": "Body one"},
		{"originalId": 2, "translatedTitle": "Third", "translatedContent": "Only description"},
		{"originalId": 9, "translatedTitle": "ghost", "translatedContent": "ghost"},
		{"originalId": -1, "translatedTitle": "neg", "translatedContent": "neg"}
	]`}
	pool := samplePool()
	out := NewTranslator(fc, nil).Translate(context.Background(), pool)

	if out[0].Title != "Headline one" || out[0].Content != "Body one" {
		t.Errorf("article 0 not translated: %+v", out[0])
	}
	if out[0].Description != "Body one" {
		t.Errorf("non-empty description should mirror translated content, got %q", out[0].Description)
	}
	if out[1].Title != "Already English" || out[1].Description != "" {
		t.Errorf("unmentioned article changed: %+v", out[1])
	}
	if out[2].Description != "Only description" {
		t.Errorf("article 2 description = %q", out[2].Description)
	}
	if !strings.Contains(fc.prompts[0], "ID: 2") || !strings.Contains(fc.prompts[0], "শুধু বিবরণ") {
		t.Errorf("prompt should list every article with content fallback:\n%s", fc.prompts[0])
	}
}

func TestTranslate_FailureLeavesPoolUntouched(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeCompleter
	}{
		{"model error", &fakeCompleter{err: errors.New("quota")}},
		{"empty text", &fakeCompleter{response: "   "}},
		{"bad json", &fakeCompleter{response: "not json"}},
		{"budget exhausted", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Completer = tt.fc
			if tt.fc == nil {
				budget := ratelimit.NewBudget(map[ratelimit.Service]int{ratelimit.Model: 1})
				_ = budget.Use(ratelimit.Model)
				c = Budgeted{Completer: &fakeCompleter{response: `[]`}, Budget: budget}
			}

			pool := samplePool()
			want := samplePool()
			out := NewTranslator(c, nil).Translate(context.Background(), pool)
			for i := range want {
				if out[i] != want[i] {
					t.Errorf("article %d changed: got %+v, want %+v", i, out[i], want[i])
				}
			}
		})
	}
}

func testLayout(t *testing.T) *config.Layout {
	t.Helper()
	l, err := config.ParseLayout(strings.NewReader(`
topics:
  - type: national
    description: Most significant national stories.
  - type: world
slots:
  - {id: n1, name: National 1, type: national}
  - {id: n2, name: National 2, type: national}
  - {id: w1, name: World, type: world}
`))
	if err != nil {
		t.Fatalf("ParseLayout: %v", err)
	}
	return l
}

func TestSelect_EmptyPoolSkipsModel(t *testing.T) {
	fc := &fakeCompleter{}
	got, err := NewSelector(fc, testLayout(t), nil).Select(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
	if fc.calls != 0 {
		t.Errorf("model called %d times for an empty pool", fc.calls)
	}
}

func TestSelect_ParsesFencedArray(t *testing.T) {
	fc := &fakeCompleter{response: "```json\n" + `[
		{"originalArticleId": 1, "category": "world", "headline": "H", "highlightPhrases": ["H"],
		 "imagePrompt": "globe", "caption": "C #news", "sourceName": "BBC"}
	]` + "\n```"}
	layout := testLayout(t)

	got, err := NewSelector(fc, layout, nil).Select(context.Background(), samplePool())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0].OriginalArticleIndex != 1 || got[0].Category != "world" {
		t.Fatalf("unexpected analyses: %+v", got)
	}

	prompt := fc.prompts[0]
	for _, want := range []string{"Select exactly 3 articles", "**2 articles** for 'national': Most significant national stories.", "**1 article** for 'world'", "Source: "} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	enum := fc.schemas[0].Items.Properties["category"].Enum
	if strings.Join(enum, ",") != "national,world" {
		t.Errorf("category enum = %v", enum)
	}
}

func TestSelect_FailuresAreFatal(t *testing.T) {
	tests := []struct {
		name    string
		fc      *fakeCompleter
		wantErr string
	}{
		{"model error", &fakeCompleter{err: errors.New("503")}, "503"},
		{"empty text", &fakeCompleter{response: ""}, "empty text"},
		{"bad json", &fakeCompleter{response: "{oops"}, "invalid JSON"},
		{"not an array", &fakeCompleter{response: `{"items": []}`}, "expected an array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSelector(tt.fc, testLayout(t), nil).Select(context.Background(), samplePool())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "analysis failed: ") {
				t.Errorf("error should be prefixed, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBudgeted_ChargesModelBudget(t *testing.T) {
	budget := ratelimit.NewBudget(map[ratelimit.Service]int{ratelimit.Model: 1})
	c := Budgeted{Completer: &fakeCompleter{response: "[]"}, Budget: budget}

	if _, err := c.CompleteJSON(context.Background(), "p", nil); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := c.CompleteJSON(context.Background(), "p", nil); !errors.Is(err, ratelimit.ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("বাংলাদেশ", 3); got != "বাং…" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("truncateRunes = %q", got)
	}
}

func TestToGeminiSchema(t *testing.T) {
	s := toGeminiSchema(analysisSchema([]string{"a", "b"}))
	if s.Type != genai.TypeArray || s.Items == nil || s.Items.Type != genai.TypeObject {
		t.Fatalf("unexpected root schema: %+v", s)
	}
	cat := s.Items.Properties["category"]
	if cat == nil || cat.Type != genai.TypeString || len(cat.Enum) != 2 {
		t.Errorf("category schema = %+v", cat)
	}
	if hp := s.Items.Properties["highlightPhrases"]; hp.Items == nil || hp.Items.Type != genai.TypeString {
		t.Errorf("highlightPhrases schema = %+v", hp)
	}
	if len(s.Items.Required) != 7 {
		t.Errorf("required = %v", s.Items.Required)
	}
}

func TestOpenAI_WrapsArraySchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Schema struct {
						Type       string                     `json:"type"`
						Properties map[string]json.RawMessage `json:"properties"`
					} `json:"schema"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if req.Model != "gpt-test" || req.ResponseFormat.Type != "json_schema" {
			t.Errorf("unexpected request: %s", body)
		}
		if req.ResponseFormat.JSONSchema.Schema.Type != "object" {
			t.Errorf("root schema must be an object, got %q", req.ResponseFormat.JSONSchema.Schema.Type)
		}
		if _, ok := req.ResponseFormat.JSONSchema.Schema.Properties["items"]; !ok {
			t.Errorf("array schema should be wrapped under items: %s", body)
		}

		content, _ := json.Marshal(`{"items":[{"originalId":0,"translatedTitle":"T","translatedContent":"C"}]}`)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, content)
	}))
	defer srv.Close()

	o := NewOpenAI("key", "gpt-test", srv.URL+"/v1")
	got, err := o.CompleteJSON(context.Background(), "translate", translationSchema)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}

	var items []translation
	if err := json.Unmarshal([]byte(got), &items); err != nil {
		t.Fatalf("unwrapped result is not an array: %q", got)
	}
	if len(items) != 1 || items[0].TranslatedTitle != "T" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestOpenAI_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	o := NewOpenAI("key", "gpt-test", srv.URL+"/v1")
	if _, err := o.CompleteJSON(context.Background(), "p", translationSchema); err == nil {
		t.Fatal("expected error on 429")
	}
}
