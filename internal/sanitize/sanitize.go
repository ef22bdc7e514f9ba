// Package sanitize strips HTML markup, entities, and feed boilerplate from
// item text before it reaches enrichment or the delivery channel.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxCleanLength bounds the text handed to the enrichment service.
const maxCleanLength = 4000

var (
	whitespaceExpr = regexp.MustCompile(`\s+`)
	bareURLExpr    = regexp.MustCompile(`https?://\S+`)
	markdownExpr   = regexp.MustCompile(`#{1,6}\s+|\*\*|\*|~~|__`)

	// Service labels some feeds prepend to titles and summaries.
	boilerplateExprs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)article url:`),
		regexp.MustCompile(`(?i)comments url:`),
		regexp.MustCompile(`(?i)url:`),
		regexp.MustCompile(`(?i)points:\s*\d+\s*#?\s*comments:\s*\d+`),
		regexp.MustCompile(`(?i)source:`),
		regexp.MustCompile(`\[\S+\]$`),
	}
)

// Clean removes HTML tags and entities and collapses whitespace. Text that
// cannot be parsed as HTML is returned entity-unescaped.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	stripped := stripTags(text)
	stripped = html.UnescapeString(stripped)

	return whitespaceExpr.ReplaceAllString(strings.TrimSpace(stripped), " ")
}

// ForDelivery prepares text for the messaging channel: Clean plus removal of
// feed boilerplate labels and bare URLs that would clutter a formatted message.
func ForDelivery(text string) string {
	cleaned := Clean(text)
	for _, expr := range boilerplateExprs {
		cleaned = expr.ReplaceAllString(cleaned, "")
	}
	cleaned = bareURLExpr.ReplaceAllString(cleaned, "")
	return whitespaceExpr.ReplaceAllString(strings.TrimSpace(cleaned), " ")
}

// ForEnrichment prepares text for the enrichment service: Clean plus markdown
// artifact removal, truncated to 4000 characters at a sentence boundary when
// one is close enough.
func ForEnrichment(text string) string {
	cleaned := Clean(text)
	cleaned = markdownExpr.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) <= maxCleanLength {
		return cleaned
	}

	cut := string(runes[:maxCleanLength])
	if idx := strings.LastIndex(cut, "."); idx > maxCleanLength-500 {
		return cut[:idx+1]
	}
	return cut
}

func stripTags(text string) string {
	if !strings.ContainsAny(text, "<>") {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	return doc.Text()
}
