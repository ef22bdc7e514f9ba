// Package usecase orchestrates the ingestion-to-delivery workflow on top of
// the driven adapters: per-source processing, breaking/digest delivery
// routing, reaction handling, and the admin command surface.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/araddon/dateparse"

	"newspulse/internal/dedup"
	"newspulse/internal/domain"
	"newspulse/internal/enrich"
	"newspulse/internal/ports"
	"newspulse/internal/ranker"
)

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Store    ports.Store
	Fetchers map[string]ports.Fetcher
	Dedup    *dedup.Deduplicator
	Enricher *enrich.Pipeline
	Delivery *Delivery
	Logger   *slog.Logger
}

// Pipeline implements the per-source ingestion workflow.
type Pipeline struct {
	store    ports.Store
	fetchers map[string]ports.Fetcher
	dedup    *dedup.Deduplicator
	enricher *enrich.Pipeline
	delivery *Delivery
	logger   *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		store:    deps.Store,
		fetchers: deps.Fetchers,
		dedup:    deps.Dedup,
		enricher: deps.Enricher,
		delivery: deps.Delivery,
		logger:   deps.Logger,
	}
}

// ProcessSource runs fetch, dedupe, score, enrich, persist for one source and
// triggers the breaking path when a newly persisted item crosses the
// threshold. Returns the number of newly persisted items. A disabled source
// is a no-op, not an error.
func (p *Pipeline) ProcessSource(ctx context.Context, sourceID string) (int, error) {
	active, err := p.store.SourceActive(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("check source %s: %w", sourceID, err)
	}
	if !active {
		p.info("source disabled, skipping", "source", sourceID)
		return 0, nil
	}

	fetcher, ok := p.fetchers[sourceID]
	if !ok {
		return 0, fmt.Errorf("no adapter registered for source %s", sourceID)
	}

	raw := fetcher.Fetch(ctx)
	if len(raw) == 0 {
		return 0, nil
	}

	survivors := raw
	if p.dedup != nil {
		survivors, err = p.dedup.Filter(ctx, raw)
		if err != nil {
			return 0, fmt.Errorf("dedupe %s: %w", sourceID, err)
		}
	}
	if len(survivors) == 0 {
		p.info("no candidates survived dedupe", "source", sourceID, "fetched", len(raw))
		return 0, nil
	}

	now := time.Now().UTC()
	weight := p.store.SourceWeight(ctx, sourceID)

	items := make([]enrich.Item, 0, len(survivors))
	for _, r := range survivors {
		published := parsePublished(r.Published, now)
		items = append(items, enrich.Item{
			Raw:       r,
			Published: published,
			Score: ranker.Score(ranker.ScoreInput{
				Stars:     r.Stars,
				Upvotes:   r.Upvotes,
				Weight:    weight,
				Published: published,
				Now:       now,
			}),
		})
	}

	if p.enricher != nil {
		items = p.enricher.Process(ctx, items)
	}

	inserted := 0
	breaking := false
	for _, item := range items {
		news := &domain.NewsItem{
			URL:         item.Raw.Link,
			Title:       item.Result.Title,
			SourceID:    sourceID,
			Published:   item.Published,
			Score:       item.Score,
			Impact:      item.Result.Impact,
			Summary:     item.Result.Summary,
			Why:         item.Result.Why,
			SummaryLang: item.Result.Lang,
			ProcessedAt: now,
		}

		isNew, err := p.store.InsertNewsItem(ctx, news)
		if err != nil {
			p.warn("persist failed", "source", sourceID, "url", news.URL, "error", err)
			continue
		}
		if !isNew {
			// Lost the duplicate race to a concurrent source job.
			continue
		}

		inserted++
		if news.Impact >= domain.BreakingImpact {
			breaking = true
		}
	}

	p.info("source processed", "source", sourceID, "fetched", len(raw), "inserted", inserted)

	if breaking && p.delivery != nil {
		if _, err := p.delivery.SendBreaking(ctx); err != nil {
			p.warn("breaking delivery after processing failed", "source", sourceID, "error", err)
		}
	}

	return inserted, nil
}

// parsePublished accepts any source timestamp format; unparseable or missing
// values fall back to the processing time so freshness is never negative.
func parsePublished(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return fallback
	}
	return parsed.UTC()
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
