package news

// Article is one candidate story in the pool, normalized from any source.
type Article struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	PublishedAt string `json:"published_at"`
	SourceName  string `json:"source_name"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Body returns the content, falling back to the description.
func (a Article) Body() string {
	if a.Content != "" {
		return a.Content
	}
	return a.Description
}

// Dedupe keeps the first article for each non-empty link, preserving order.
func Dedupe(articles []Article) []Article {
	seen := make(map[string]bool, len(articles))
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if a.Link == "" || seen[a.Link] {
			continue
		}
		seen[a.Link] = true
		out = append(out, a)
	}
	return out
}
