package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newspulse/internal/domain"
)

var starCountExpr = regexp.MustCompile(`[\d,]+`)

// Trending scrapes a GitHub-trending-style listing page. Repository name and
// link come from the entry heading, the star counter from the adjacent badge.
type Trending struct {
	sourceID string
	url      string
	lang     string
	client   *http.Client
	logger   *slog.Logger
}

// NewTrending wires a scraping adapter for one configured source.
func NewTrending(sourceID string, opts Options) *Trending {
	return &Trending{
		sourceID: sourceID,
		url:      opts.URL,
		lang:     opts.Lang,
		client:   defaultClient(opts.Client),
		logger:   opts.Logger,
	}
}

// SourceID identifies the source this adapter feeds.
func (t *Trending) SourceID() string { return t.sourceID }

// Fetch downloads and scrapes the listing page. Entries carry the fetch time
// as published timestamp: trending pages expose no per-entry dates.
func (t *Trending) Fetch(ctx context.Context) []domain.RawItem {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		t.warn("build trending request failed", "url", t.url, "error", err)
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		t.warn("trending fetch failed", "url", t.url, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.warn("trending page returned non-200", "url", t.url, "status", resp.Status)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.warn("trending page parse failed", "url", t.url, "error", err)
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	base := baseOf(t.url)

	var items []domain.RawItem
	doc.Find("article.Box-row").Each(func(_ int, row *goquery.Selection) {
		anchor := row.Find("h2 a").First()
		href, ok := anchor.Attr("href")
		if !ok || href == "" {
			return
		}

		name := collapseSpaces(anchor.Text())
		link := href
		if !strings.HasPrefix(link, "http") {
			link = base + href
		}

		items = append(items, domain.RawItem{
			Title:     name,
			Link:      link,
			Summary:   strings.TrimSpace(row.Find("p").First().Text()),
			Published: now,
			SourceID:  t.sourceID,
			Lang:      t.lang,
			Stars:     parseStars(row),
		})
	})
	return items
}

// parseStars reads the star badge next to the repository heading; a missing
// or unreadable badge counts as zero.
func parseStars(row *goquery.Selection) int {
	badge := row.Find("a:has(svg[aria-label='star'])").First()
	if badge.Length() == 0 {
		badge = row.Find(".octicon-star").First().Parent()
	}

	match := starCountExpr.FindString(strings.TrimSpace(badge.Text()))
	if match == "" {
		return 0
	}
	stars, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0
	}
	return stars
}

func baseOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (t *Trending) warn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}
