package news

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NewsAPI cuts content and appends a marker like "… [+2153 chars]".
var truncationMarker = regexp.MustCompile(`\s*\[\+\d+ chars\]\s*$`)

// CleanText strips HTML markup and collapses whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}

	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style, noscript").Remove()
			// Keep paragraph boundaries from running words together.
			doc.Find("p, br, li, div").Each(func(_ int, sel *goquery.Selection) {
				sel.AppendHtml(" ")
			})
			s = doc.Text()
		}
	}

	s = truncationMarker.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
