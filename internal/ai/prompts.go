package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/dispatch/internal/config"
	"github.com/deusflow/dispatch/internal/news"
)

const translatePromptTmpl = `You are an expert translator. Your task is to translate the 'Title' and 'Content' of the following list of news articles into high-quality, fluent English.

**Instructions:**
1.  Review all articles. Some may not be in English.
2.  If an article is NOT in English, translate its Title and Content.
3.  If an article IS ALREADY in English, return its original Title and Content without modification.
4.  Return a JSON array where each object corresponds to an article from the original list. Maintain the original order.

**List of Articles:**
%s

**Output Format:**
Return a JSON array that strictly adheres to the provided schema. Each object must contain the original ID, the translated title, and the translated content.
`

const selectPromptTmpl = `You are an expert news editor for a social media channel. Your goal is to curate a batch of top-tier news stories from a large, combined list of recent articles.

**Your Task:**
1.  **Review the entire list** of articles provided below. They have been translated to English for your review.
2.  **Select exactly %d articles** that are the most impactful and **recent**. You MUST fulfill the following distribution:
%s
    If you cannot find a suitable article for a category from the provided list, you MUST still try your best to find the closest match. Do not leave a category empty.
3.  For EACH of the %d articles you select, you must perform a full analysis.

**Analysis Steps for Each Selected Article:**
1.  **Headline Generation (IMPACT Principle):** Informative, Main Point, Prompting Curiosity, Active Voice, Concise, Targeted.
2.  **Highlight Phrase Identification:** Identify key phrases from your new headline that capture critical information.
3.  **Image Prompt Generation (SCAT Principle & Safety):** Generate a concise, descriptive prompt for an AI image generator. The prompt MUST be safe for work and MUST NOT contain depictions of specific people, violence, or sensitive topics. Focus on symbolic or abstract representations.
4.  **Caption & Source:** Create a social media caption (~50 words) with 3-5 relevant hashtags. DO NOT include the source name in the caption itself. The source name will be a separate field.

**List of Available Articles:**
%s

**Output Instructions:**
Return a JSON array containing exactly %d objects, one for each article you selected and analyzed. Adhere strictly to the provided JSON schema.
`

// TranslatePrompt lists every article by pool index.
func TranslatePrompt(articles []news.Article, maxRunes int) string {
	var b strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&b, "\nARTICLE %d:\nID: %d\nTitle: %s\nContent: %s\n---\n",
			i, i, a.Title, truncateRunes(a.Body(), maxRunes))
	}
	return fmt.Sprintf(translatePromptTmpl, b.String())
}

// SelectPrompt lists every article and the per-category distribution the
// layout requires.
func SelectPrompt(articles []news.Article, layout *config.Layout, maxRunes int) string {
	counts := layout.SlotCounts()

	var dist strings.Builder
	for _, typ := range layout.CategoryTypes() {
		desc := ""
		if topic, ok := layout.Topic(typ); ok && topic.Description != "" {
			desc = ": " + topic.Description
		}
		noun := "articles"
		if counts[typ] == 1 {
			noun = "article"
		}
		fmt.Fprintf(&dist, "    -   **%d %s** for '%s'%s\n", counts[typ], noun, typ, desc)
	}

	var list strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&list, "\nARTICLE %d:\nID: %d\nTitle: %s\nContent: %s\nSource: %s\n---\n",
			i, i, a.Title, truncateRunes(a.Body(), maxRunes), a.SourceName)
	}

	total := len(layout.Slots)
	return fmt.Sprintf(selectPromptTmpl, total, strings.TrimRight(dist.String(), "\n"), total, list.String(), total)
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

var translationSchema = &Schema{
	Type: TypeArray,
	Items: &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"originalId":        {Type: TypeInteger},
			"translatedTitle":   {Type: TypeString},
			"translatedContent": {Type: TypeString},
		},
		Required: []string{"originalId", "translatedTitle", "translatedContent"},
	},
}

func analysisSchema(categories []string) *Schema {
	return &Schema{
		Type: TypeArray,
		Items: &Schema{
			Type: TypeObject,
			Properties: map[string]*Schema{
				"originalArticleId": {
					Type:        TypeInteger,
					Description: "The original ID number of the article from the provided list that was selected.",
				},
				"category": {
					Type:        TypeString,
					Enum:        categories,
					Description: "The category this article was selected for.",
				},
				"headline": {
					Type:        TypeString,
					Description: "A new, compelling headline created based on the IMPACT principle.",
				},
				"highlightPhrases": {
					Type:        TypeArray,
					Items:       &Schema{Type: TypeString},
					Description: "An array of key phrases from the new headline.",
				},
				"imagePrompt": {
					Type:        TypeString,
					Description: "A safe-for-work, symbolic image prompt based on the SCAT principle, avoiding specific people, violence, or sensitive topics.",
				},
				"caption": {
					Type:        TypeString,
					Description: "A social media caption of about 50 words with 3-5 relevant hashtags. The source name should NOT be in the caption.",
				},
				"sourceName": {
					Type:        TypeString,
					Description: "The name of the original news source. This is a separate, mandatory field.",
				},
			},
			Required: []string{"originalArticleId", "category", "headline", "highlightPhrases", "imagePrompt", "caption", "sourceName"},
		},
	}
}
