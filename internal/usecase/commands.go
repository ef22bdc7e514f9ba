package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"newspulse/internal/domain"
	"newspulse/internal/ports"
)

const helpText = `Commands:
/digest - send the pending digest now
/breaking - run the breaking-news sweep now
/process <source> - process one source immediately
/toggle <source> - enable or disable a source
/list_sources - list configured sources
/source_info <source> - details for one source
/stats - processing and reaction statistics
/language_stats - stored items by summary language
/healthz - storage health check
/help - this message`

// JobControl adds or removes a source's recurring job at runtime.
type JobControl interface {
	Resume(sourceID string)
	Suspend(sourceID string)
}

// CommandsDeps wires the admin command surface.
type CommandsDeps struct {
	Pipeline *Pipeline
	Delivery *Delivery
	Store    ports.Store
	Jobs     JobControl
	Logger   *slog.Logger
}

// Commands executes admin commands arriving from the channel. Every command
// reuses the same operations the scheduler drives.
type Commands struct {
	pipeline *Pipeline
	delivery *Delivery
	store    ports.Store
	jobs     JobControl
	logger   *slog.Logger
}

// NewCommands constructs the command dispatcher.
func NewCommands(deps CommandsDeps) *Commands {
	return &Commands{
		pipeline: deps.Pipeline,
		delivery: deps.Delivery,
		store:    deps.Store,
		jobs:     deps.Jobs,
		logger:   deps.Logger,
	}
}

// Command dispatches one admin command and returns the reply text.
func (c *Commands) Command(ctx context.Context, name, args string) string {
	switch name {
	case "digest":
		n, err := c.delivery.SendDigest(ctx, time.Now())
		if err != nil {
			c.warn("manual digest failed", "error", err)
			return "Digest failed: " + err.Error()
		}
		if n == 0 {
			return "Nothing to send."
		}
		return fmt.Sprintf("Digest sent: %d items.", n)

	case "breaking":
		n, err := c.delivery.SendBreaking(ctx)
		if err != nil {
			c.warn("manual breaking sweep failed", "error", err)
			return "Breaking sweep failed: " + err.Error()
		}
		return fmt.Sprintf("Breaking sweep done: %d items sent.", n)

	case "process":
		if args == "" {
			return "Usage: /process <source>"
		}
		n, err := c.pipeline.ProcessSource(ctx, args)
		if err != nil {
			c.warn("manual processing failed", "source", args, "error", err)
			return fmt.Sprintf("Processing %s failed: %v", args, err)
		}
		return fmt.Sprintf("Processed %s: %d new items.", args, n)

	case "toggle":
		if args == "" {
			return "Usage: /toggle <source>"
		}
		return c.toggle(ctx, args)

	case "list_sources":
		return c.listSources(ctx)

	case "source_info":
		if args == "" {
			return "Usage: /source_info <source>"
		}
		return c.sourceInfo(ctx, args)

	case "stats":
		return c.stats(ctx)

	case "language_stats":
		return c.languageStats(ctx)

	case "healthz":
		if _, err := c.store.CountProcessedSince(ctx, time.Now().Add(-24*time.Hour)); err != nil {
			c.warn("health check failed", "error", err)
			return "Storage check failed: " + err.Error()
		}
		return "OK"

	case "help", "start":
		return helpText

	default:
		return "Unknown command.\n" + helpText
	}
}

func (c *Commands) toggle(ctx context.Context, sourceID string) string {
	active, err := c.store.SourceActive(ctx, sourceID)
	if err != nil {
		return fmt.Sprintf("Toggle %s failed: %v", sourceID, err)
	}

	if err := c.store.SetSourceActive(ctx, sourceID, !active); err != nil {
		return fmt.Sprintf("Toggle %s failed: %v", sourceID, err)
	}

	if c.jobs != nil {
		if active {
			c.jobs.Suspend(sourceID)
		} else {
			c.jobs.Resume(sourceID)
		}
	}

	if active {
		return fmt.Sprintf("Source %s disabled.", sourceID)
	}
	return fmt.Sprintf("Source %s enabled.", sourceID)
}

func (c *Commands) listSources(ctx context.Context) string {
	sources, err := c.store.Sources(ctx)
	if err != nil {
		return "Source list failed: " + err.Error()
	}
	if len(sources) == 0 {
		return "No sources configured."
	}

	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, src := range sources {
		state := "enabled"
		if !src.Active {
			state = "disabled"
		}
		fmt.Fprintf(&b, "%s - %s (weight %d, %s)\n", src.ID, src.Name, src.Weight, state)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) sourceInfo(ctx context.Context, sourceID string) string {
	sources, err := c.store.Sources(ctx)
	if err != nil {
		return fmt.Sprintf("Source info for %s failed: %v", sourceID, err)
	}

	var found *domain.Source
	for i := range sources {
		if sources[i].ID == sourceID {
			found = &sources[i]
			break
		}
	}
	if found == nil {
		return fmt.Sprintf("Unknown source %s.", sourceID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source %s\n", found.ID)
	fmt.Fprintf(&b, "Name: %s\n", found.Name)
	fmt.Fprintf(&b, "Weight: %d\n", found.Weight)
	state := "enabled"
	if !found.Active {
		state = "disabled"
	}
	fmt.Fprintf(&b, "State: %s\n", state)

	if count, err := c.store.SourceNewsCount(ctx, sourceID); err == nil {
		fmt.Fprintf(&b, "Stored items: %d\n", count)
	}
	if tallies, err := c.store.SourceReactionTallies(ctx); err == nil {
		if tally, ok := tallies[sourceID]; ok {
			fmt.Fprintf(&b, "Reactions: 👍 %d 👎 %d\n", tally.Likes, tally.Dislikes)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) languageStats(ctx context.Context) string {
	stats, err := c.store.LanguageStats(ctx)
	if err != nil {
		return "Language stats failed: " + err.Error()
	}
	if len(stats) == 0 {
		return "No items stored yet."
	}

	langs := make([]string, 0, len(stats))
	for lang := range stats {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if stats[langs[i]] != stats[langs[j]] {
			return stats[langs[i]] > stats[langs[j]]
		}
		return langs[i] < langs[j]
	})

	var b strings.Builder
	b.WriteString("Summary languages:\n")
	for _, lang := range langs {
		fmt.Fprintf(&b, "%s: %d\n", lang, stats[lang])
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) stats(ctx context.Context) string {
	now := time.Now()

	var b strings.Builder
	b.WriteString("📊 Stats\n")

	day, err := c.store.CountProcessedSince(ctx, now.Add(-24*time.Hour))
	week, weekErr := c.store.CountProcessedSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil || weekErr != nil {
		b.WriteString("Processed counts unavailable.\n")
	} else {
		fmt.Fprintf(&b, "Processed: %d in 24h, %d in 7d\n", day, week)
	}

	if top, err := c.store.TopReacted(ctx, 5); err == nil && len(top) > 0 {
		b.WriteString("\nTop reacted:\n")
		for _, row := range top {
			fmt.Fprintf(&b, "👍 %d 👎 %d  %s\n", row.Tally.Likes, row.Tally.Dislikes, row.Title)
		}
	}

	if tallies, err := c.store.SourceReactionTallies(ctx); err == nil && len(tallies) > 0 {
		b.WriteString("\nReactions by source:\n")
		for sourceID, tally := range tallies {
			fmt.Fprintf(&b, "%s: 👍 %d 👎 %d\n", sourceID, tally.Likes, tally.Dislikes)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
