// Package enrich implements the multi-stage enrichment pipeline: relevance
// filter, title pre-translation, primary enrichment, language enforcement,
// impact blending, and a cost-capped secondary quality pass. Every stage has
// a deterministic fallback; enrichment failure is never fatal to a batch.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"newspulse/internal/domain"
	"newspulse/internal/langdetect"
	"newspulse/internal/ports"
	"newspulse/internal/sanitize"
)

const (
	// DefaultBatchLimit caps items enriched per pipeline invocation; overflow
	// is dropped for the cycle and re-fetched later if still eligible.
	DefaultBatchLimit = 50
	// DefaultSecondaryLimit caps secondary enrichment calls per batch.
	DefaultSecondaryLimit = 5

	minTranslateLen    = 10
	minWhyTranslateLen = 5
)

var jsonObjectExpr = regexp.MustCompile(`(?s)\{.*\}`)

// Item is one candidate flowing through the enrichment stages.
type Item struct {
	Raw       domain.RawItem
	Published time.Time
	Score     float64
	Result    domain.Enrichment
}

// Pipeline drives all enrichment stages for a batch.
type Pipeline struct {
	primary        ports.ChatBackend
	secondary      ports.ChatBackend
	chain          *Chain
	detector       ports.Detector
	filtering      bool
	batchLimit     int
	secondaryLimit int
	logger         *slog.Logger
}

// Options configure the pipeline; zero limits fall back to defaults.
type Options struct {
	Primary        ports.ChatBackend
	Secondary      ports.ChatBackend
	Chain          *Chain
	Detector       ports.Detector
	Filtering      bool
	BatchLimit     int
	SecondaryLimit int
	Logger         *slog.Logger
}

// NewPipeline constructs the enrichment pipeline.
func NewPipeline(opts Options) *Pipeline {
	batchLimit := opts.BatchLimit
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	secondaryLimit := opts.SecondaryLimit
	if secondaryLimit <= 0 {
		secondaryLimit = DefaultSecondaryLimit
	}
	return &Pipeline{
		primary:        opts.Primary,
		secondary:      opts.Secondary,
		chain:          opts.Chain,
		detector:       opts.Detector,
		filtering:      opts.Filtering,
		batchLimit:     batchLimit,
		secondaryLimit: secondaryLimit,
		logger:         opts.Logger,
	}
}

// Process runs the batch through every stage and returns the enriched items.
// Items beyond the batch cap are dropped for this cycle; items judged
// irrelevant are dropped; everything else survives with either a real or a
// trivial-fallback enrichment.
func (p *Pipeline) Process(ctx context.Context, items []Item) []Item {
	if len(items) == 0 {
		return nil
	}

	if len(items) > p.batchLimit {
		p.info("batch over cap, dropping overflow", "batch", len(items), "cap", p.batchLimit)
		items = items[:p.batchLimit]
	}

	kept := make([]Item, 0, len(items))
	for _, item := range items {
		if !p.relevant(ctx, item) {
			p.info("filtered out non-relevant item", "title", item.Raw.Title)
			continue
		}
		kept = append(kept, item)
	}

	result := make([]Item, 0, len(kept))
	for _, item := range kept {
		item.Raw.Title = p.preTranslateTitle(ctx, item.Raw.Title)
		item.Result = p.enrichPrimary(ctx, item)
		item.Result = p.enforceLanguage(ctx, item.Result)
		item.Result.Impact = BlendImpact(item.Result.Impact, item.Score)
		result = append(result, item)
	}

	p.enrichSecondary(ctx, result)

	return result
}

// relevant asks the filtering backend for a binary verdict. The gate fails
// open: a missing backend, a disabled flag, or any transport error keeps the
// item.
func (p *Pipeline) relevant(ctx context.Context, item Item) bool {
	if !p.filtering || p.primary == nil {
		return true
	}

	title := sanitize.ForEnrichment(item.Raw.Title)
	content := sanitize.ForEnrichment(firstNonEmpty(item.Raw.Content, item.Raw.Summary))

	user := fmt.Sprintf("Title: %s\n\nContent: %s", title, content)
	reply, err := p.primary.Complete(ctx, relevanceSystemPrompt(), user)
	if err != nil {
		p.warn("relevance filter failed, keeping item", "title", item.Raw.Title, "error", err)
		return true
	}

	return !strings.Contains(strings.ToLower(reply), "not_relevant")
}

// preTranslateTitle forces the title into the target language before
// enrichment so scoring and prompts operate on consistent input.
func (p *Pipeline) preTranslateTitle(ctx context.Context, title string) string {
	if p.chain == nil || len([]rune(title)) <= minTranslateLen {
		return title
	}
	if p.detector.Detect(title) == p.chain.Target() {
		return title
	}
	return p.chain.Ensure(ctx, title).Text
}

func (p *Pipeline) enrichPrimary(ctx context.Context, item Item) domain.Enrichment {
	title := sanitize.ForEnrichment(item.Raw.Title)
	content := sanitize.ForEnrichment(firstNonEmpty(item.Raw.Content, item.Raw.Summary))

	if p.primary == nil {
		return p.trivial(title)
	}

	sourceLang := item.Raw.Lang
	if sourceLang == "" {
		sourceLang = p.detector.Detect(firstNonEmpty(content, title))
	}

	user := fmt.Sprintf("Title: %s\n\nContent: %s\n\nSource language: %s", title, content, sourceLang)
	reply, err := p.primary.Complete(ctx, summarySystemPrompt(p.targetLang()), user)
	if err != nil {
		p.warn("primary enrichment failed, using trivial fallback", "title", title, "error", err)
		return p.trivial(title)
	}

	parsed, ok := parseJudgment(reply)
	if !ok || parsed.Summary == "" || parsed.Impact == 0 {
		p.warn("primary enrichment returned malformed judgment, using trivial fallback", "title", title)
		return p.trivial(title)
	}

	return domain.Enrichment{
		Title:   firstNonEmpty(parsed.Title, title),
		Summary: parsed.Summary,
		Why:     parsed.Why,
		Impact:  clampImpact(parsed.Impact, domain.ImpactMin, domain.ImpactMax),
		Lang:    p.detector.Detect(parsed.Summary),
	}
}

// enforceLanguage runs title, summary, and why independently through the
// translation chain. Text below the minimum length is left as is.
func (p *Pipeline) enforceLanguage(ctx context.Context, e domain.Enrichment) domain.Enrichment {
	if p.chain == nil {
		return e
	}

	e.Title = p.ensureField(ctx, e.Title, minTranslateLen)

	summary := p.ensureField(ctx, e.Summary, minTranslateLen)
	e.Summary = summary
	switch {
	case strings.HasPrefix(summary, NeedsTranslationMarker):
		e.Lang = langdetect.Unknown
	case p.detector.Detect(summary) == p.chain.Target():
		e.Lang = p.chain.Target()
	}

	e.Why = p.ensureField(ctx, e.Why, minWhyTranslateLen)

	return e
}

func (p *Pipeline) ensureField(ctx context.Context, text string, minLen int) string {
	if len([]rune(text)) <= minLen {
		return text
	}
	if p.detector.Detect(text) == p.chain.Target() {
		return text
	}
	return p.chain.Ensure(ctx, text).Text
}

// enrichSecondary re-requests a higher-quality rewrite for high-impact items
// from the secondary backend, capped per batch. Failure keeps the primary
// result unchanged.
func (p *Pipeline) enrichSecondary(ctx context.Context, items []Item) {
	if p.secondary == nil {
		return
	}

	processed := 0
	for i := range items {
		if processed >= p.secondaryLimit {
			return
		}
		if items[i].Result.Impact < domain.BreakingImpact {
			continue
		}

		reply, err := p.secondary.Complete(ctx,
			secondarySystemPrompt(p.targetLang()),
			secondaryUserPrompt(items[i].Result.Title, items[i].Result.Summary, items[i].Result.Why))
		if err != nil {
			p.warn("secondary enrichment failed, keeping primary result", "title", items[i].Result.Title, "error", err)
			continue
		}

		parsed, ok := parseJudgment(reply)
		if !ok || parsed.Summary == "" {
			p.warn("secondary enrichment returned malformed judgment", "title", items[i].Result.Title)
			continue
		}

		upgraded := domain.Enrichment{
			Title:   firstNonEmpty(parsed.Title, items[i].Result.Title),
			Summary: parsed.Summary,
			Why:     firstNonEmpty(parsed.Why, items[i].Result.Why),
			Impact:  clampImpact(parsed.Impact, domain.BreakingImpact, domain.ImpactMax),
			Lang:    items[i].Result.Lang,
		}
		items[i].Result = p.enforceLanguage(ctx, upgraded)
		processed++
	}
}

func (p *Pipeline) trivial(title string) domain.Enrichment {
	return domain.Enrichment{
		Title:   title,
		Summary: title,
		Impact:  domain.ImpactMin,
		Lang:    p.detector.Detect(title),
	}
}

func (p *Pipeline) targetLang() string {
	if p.chain == nil {
		return langdetect.Unknown
	}
	return p.chain.Target()
}

// BlendImpact combines the enrichment service's judgment with the
// engagement/freshness score: the score can raise impact, never lower it.
func BlendImpact(llmImpact int, score float64) int {
	scoreImpact := int(math.Round(score / 10))
	blended := llmImpact
	if scoreImpact > blended {
		blended = scoreImpact
	}
	return clampImpact(blended, domain.ImpactMin, domain.ImpactMax)
}

type judgment struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Why     string  `json:"why"`
	Impact  float64 `json:"impact"`
}

type parsedJudgment struct {
	Title   string
	Summary string
	Why     string
	Impact  int
}

// parseJudgment extracts the first JSON object from an untrusted reply and
// validates it.
func parseJudgment(reply string) (parsedJudgment, bool) {
	match := jsonObjectExpr.FindString(strings.TrimSpace(reply))
	if match == "" {
		return parsedJudgment{}, false
	}

	var j judgment
	if err := json.Unmarshal([]byte(match), &j); err != nil {
		return parsedJudgment{}, false
	}

	return parsedJudgment{
		Title:   strings.TrimSpace(j.Title),
		Summary: strings.TrimSpace(j.Summary),
		Why:     strings.TrimSpace(j.Why),
		Impact:  int(math.Round(j.Impact)),
	}, true
}

func clampImpact(impact, lo, hi int) int {
	if impact < lo {
		return lo
	}
	if impact > hi {
		return hi
	}
	return impact
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
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
