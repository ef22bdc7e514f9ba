package fetcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"newspulse/internal/domain"
	"newspulse/internal/sanitize"
)

// Catalog pulls items from a REST endpoint returning a JSON array of listing
// entries, the shape used by AI tool directories.
type Catalog struct {
	sourceID string
	url      string
	lang     string
	client   *http.Client
	logger   *slog.Logger
}

type catalogEntry struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PublishedAt string `json:"published_at"`
	Upvotes     int    `json:"upvotes"`
}

// NewCatalog wires a REST adapter for one configured source.
func NewCatalog(sourceID string, opts Options) *Catalog {
	return &Catalog{
		sourceID: sourceID,
		url:      opts.URL,
		lang:     opts.Lang,
		client:   defaultClient(opts.Client),
		logger:   opts.Logger,
	}
}

// SourceID identifies the source this adapter feeds.
func (c *Catalog) SourceID() string { return c.sourceID }

// Fetch requests and decodes the listing endpoint.
func (c *Catalog) Fetch(ctx context.Context) []domain.RawItem {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.warn("build catalog request failed", "url", c.url, "error", err)
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.warn("catalog fetch failed", "url", c.url, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.warn("catalog endpoint returned non-200", "url", c.url, "status", resp.Status)
		return nil
	}

	var entries []catalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		c.warn("catalog decode failed", "url", c.url, "error", err)
		return nil
	}

	items := make([]domain.RawItem, 0, len(entries))
	for _, entry := range entries {
		if entry.URL == "" {
			continue
		}
		items = append(items, domain.RawItem{
			Title:     sanitize.Clean(entry.Name),
			Link:      entry.URL,
			Summary:   sanitize.Clean(entry.Description),
			Published: entry.PublishedAt,
			SourceID:  c.sourceID,
			Lang:      c.lang,
			Upvotes:   entry.Upvotes,
		})
	}
	return items
}

func (c *Catalog) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
