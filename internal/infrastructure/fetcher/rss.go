package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"newspulse/internal/domain"
	"newspulse/internal/sanitize"
)

// RSS pulls items from an RSS/Atom feed.
type RSS struct {
	sourceID string
	url      string
	lang     string
	parser   *gofeed.Parser
	logger   *slog.Logger
}

// NewRSS wires a feed adapter for one configured source.
func NewRSS(sourceID string, opts Options) *RSS {
	parser := gofeed.NewParser()
	parser.Client = defaultClient(opts.Client)
	parser.UserAgent = userAgent
	return &RSS{
		sourceID: sourceID,
		url:      opts.URL,
		lang:     opts.Lang,
		parser:   parser,
		logger:   opts.Logger,
	}
}

// SourceID identifies the source this adapter feeds.
func (r *RSS) SourceID() string { return r.sourceID }

// Fetch parses the feed and returns its entries as raw items.
func (r *RSS) Fetch(ctx context.Context) []domain.RawItem {
	feed, err := r.parser.ParseURLWithContext(r.url, ctx)
	if err != nil {
		r.warn("feed fetch failed", "url", r.url, "error", err)
		return nil
	}

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" {
			continue
		}

		published := entry.Published
		if published == "" && entry.PublishedParsed != nil {
			published = entry.PublishedParsed.Format(time.RFC3339)
		}
		if published == "" {
			published = entry.Updated
		}

		items = append(items, domain.RawItem{
			Title:     sanitize.Clean(entry.Title),
			Link:      entry.Link,
			Summary:   sanitize.Clean(entry.Description),
			Content:   sanitize.Clean(entry.Content),
			Published: published,
			SourceID:  r.sourceID,
			Lang:      r.lang,
		})
	}
	return items
}

func (r *RSS) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
