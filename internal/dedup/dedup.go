// Package dedup removes duplicate candidates before enrichment. Two filters
// apply in sequence: near-duplicate titles inside one batch, then URLs the
// store has processed recently. Dropped items are not errors.
package dedup

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"newspulse/internal/domain"
)

// RecencyChecker answers whether a URL was already processed inside the
// recency window. Satisfied by the news store.
type RecencyChecker interface {
	IsRecentDuplicate(ctx context.Context, url string, window time.Duration) (bool, error)
}

// DefaultThreshold is the similarity ratio at which two titles count as the
// same story.
const DefaultThreshold = 0.85

// Deduplicator applies the title-similarity and URL-recency filters.
type Deduplicator struct {
	store     RecencyChecker
	threshold float64
	window    time.Duration
	logger    *slog.Logger
}

// New wires the store-backed deduplicator. A non-positive threshold falls
// back to DefaultThreshold; a non-positive window falls back to three days.
func New(store RecencyChecker, threshold float64, window time.Duration, logger *slog.Logger) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = 72 * time.Hour
	}
	return &Deduplicator{store: store, threshold: threshold, window: window, logger: logger}
}

// Filter returns the candidates that survive both filters, preserving input
// order. The first occurrence of a near-duplicate title wins; later ones are
// silently dropped.
func (d *Deduplicator) Filter(ctx context.Context, items []domain.RawItem) ([]domain.RawItem, error) {
	unique := FilterSimilarTitles(items, d.threshold)

	survivors := make([]domain.RawItem, 0, len(unique))
	for _, item := range unique {
		if item.Link == "" {
			d.debug("dropping item without URL", "title", item.Title)
			continue
		}

		recent, err := d.store.IsRecentDuplicate(ctx, item.Link, d.window)
		if err != nil {
			return nil, err
		}
		if recent {
			d.debug("dropping recently processed URL", "url", item.Link)
			continue
		}
		survivors = append(survivors, item)
	}

	return survivors, nil
}

// FilterSimilarTitles drops items whose title is too similar to the title of
// an earlier item in the same batch. Comparison is case-insensitive and not
// symmetric across batches. Items with empty titles are dropped outright.
func FilterSimilarTitles(items []domain.RawItem, threshold float64) []domain.RawItem {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	seen := make([]string, 0, len(items))
	unique := make([]domain.RawItem, 0, len(items))

	for _, item := range items {
		title := strings.ToLower(strings.TrimSpace(item.Title))
		if title == "" {
			continue
		}

		duplicate := false
		for _, prior := range seen {
			if SimilarityRatio(title, prior) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		seen = append(seen, title)
		unique = append(unique, item)
	}

	return unique
}

// SimilarityRatio is a normalized string-similarity measure in [0,1]: one
// minus the Levenshtein distance divided by the longer length.
func SimilarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func (d *Deduplicator) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}
