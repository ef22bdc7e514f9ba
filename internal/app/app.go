// Package app wires configuration, storage, adapters, and use cases into a
// running application: scheduled ingestion per source, the daily digest job,
// the hourly breaking sweep, and the command/reaction bot loop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newspulse/internal/config"
	"newspulse/internal/dedup"
	"newspulse/internal/domain"
	"newspulse/internal/enrich"
	"newspulse/internal/infrastructure/fetcher"
	"newspulse/internal/infrastructure/llm"
	"newspulse/internal/infrastructure/scheduler"
	"newspulse/internal/infrastructure/storage"
	"newspulse/internal/infrastructure/telegram"
	"newspulse/internal/infrastructure/translate"
	"newspulse/internal/langdetect"
	"newspulse/internal/ports"
	"newspulse/internal/usecase"
)

// Application owns every long-lived component and the job schedule.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	store    *storage.SQLiteStore
	sched    *scheduler.Scheduler
	pipeline *usecase.Pipeline
	delivery *usecase.Delivery
	bot      *telegram.Bot

	// jobCtx is the parent context for scheduled jobs, set when Run starts
	// so that Resume can register jobs after startup.
	jobCtx context.Context
}

// New assembles the application from configuration. Backends without an API
// key are left out and the affected stages degrade as designed.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	detector := langdetect.New()

	var translator ports.Translator
	if cfg.Translate.Endpoint != "" {
		translator = translate.NewClient(cfg.Translate)
	}
	chain := enrich.NewChain(translator, detector, cfg.Enrichment.TargetLang, cfg.Enrichment.DefaultSource, baseLogger.With("component", "translate"))

	var primary ports.ChatBackend
	if cfg.Enrichment.Primary.APIKey != "" {
		primary = llm.NewGeminiClient(cfg.Enrichment.Primary)
	}
	var secondary ports.ChatBackend
	if cfg.Enrichment.Secondary.APIKey != "" {
		secondary = llm.NewOpenAIClient(cfg.Enrichment.Secondary)
	}

	enricher := enrich.NewPipeline(enrich.Options{
		Primary:        primary,
		Secondary:      secondary,
		Chain:          chain,
		Detector:       detector,
		Filtering:      cfg.Enrichment.FilteringEnabled(),
		BatchLimit:     cfg.Enrichment.BatchLimit,
		SecondaryLimit: cfg.Enrichment.SecondaryLimit,
		Logger:         baseLogger.With("component", "enrich"),
	})

	messenger := telegram.NewClient(cfg.Telegram)

	delivery := usecase.NewDelivery(usecase.DeliveryDeps{
		Store:         store,
		Messenger:     messenger,
		Chain:         chain,
		Detector:      detector,
		BreakingLimit: cfg.Delivery.BreakingLimit,
		DigestLimit:   cfg.Delivery.DigestLimit,
		MessageLimit:  cfg.Delivery.MessageLimit,
		Pacing:        cfg.Delivery.PacingInterval(),
		Logger:        baseLogger.With("component", "delivery"),
	})

	registry := fetcher.NewRegistry()
	fetchers := map[string]ports.Fetcher{}
	for id, sc := range cfg.Sources {
		adapter, err := registry.Build(sc.Type, id, fetcher.Options{
			URL:    sc.URL,
			Lang:   sc.Lang,
			Logger: baseLogger.With("component", "fetcher", "source", id),
		})
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", id, err)
		}
		fetchers[id] = adapter
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Store:    store,
		Fetchers: fetchers,
		Dedup:    dedup.New(store, cfg.Dedup.TitleSimilarity, cfg.Dedup.RecencyWindow(), baseLogger.With("component", "dedup")),
		Enricher: enricher,
		Delivery: delivery,
		Logger:   baseLogger.With("component", "pipeline"),
	})

	application := &Application{
		cfg:      cfg,
		logger:   baseLogger.With("component", "app"),
		store:    store,
		sched:    scheduler.New(baseLogger.With("component", "scheduler")),
		pipeline: pipeline,
		delivery: delivery,
	}

	reactions := usecase.NewReactions(store, messenger, baseLogger.With("component", "reactions"))
	commands := usecase.NewCommands(usecase.CommandsDeps{
		Pipeline: pipeline,
		Delivery: delivery,
		Store:    store,
		Jobs:     application,
		Logger:   baseLogger.With("component", "commands"),
	})
	application.bot = telegram.NewBot(messenger, commands, reactorAdapter{reactions}, baseLogger.With("component", "bot"))

	return application, nil
}

// Run registers configured sources, starts the job schedule and the bot loop,
// and blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.store.Close()

	a.jobCtx = ctx

	for id, sc := range a.cfg.Sources {
		name := sc.Name
		if name == "" {
			name = id
		}
		src := domain.Source{ID: id, Name: name, Weight: sc.Weight, Active: true}
		if err := a.store.UpsertSource(ctx, src); err != nil {
			return fmt.Errorf("register source %s: %w", id, err)
		}
	}

	active, err := a.store.ActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("load active sources: %w", err)
	}
	for _, src := range active {
		a.Resume(src.ID)
	}

	a.sched.AddInterval(ctx, "breaking-sweep", time.Hour, func(jobCtx context.Context) {
		if _, err := a.delivery.SendBreaking(jobCtx); err != nil {
			a.logger.Warn("breaking sweep failed", "error", err)
		}
	})

	a.sched.AddDaily(ctx, "daily-digest", a.cfg.Digest.Hour, a.cfg.Digest.Minute, a.cfg.Digest.Location(), func(jobCtx context.Context) {
		now := time.Now()
		if _, err := a.delivery.SendDigest(jobCtx, now); err != nil {
			a.logger.Warn("digest failed", "error", err)
		}

		cutoff := now.UTC().Add(-time.Duration(a.cfg.Retention.Days) * 24 * time.Hour)
		removed, err := a.store.DeleteOlderThan(jobCtx, cutoff)
		if err != nil {
			a.logger.Warn("retention purge failed", "error", err)
		} else if removed > 0 {
			a.logger.Info("old news purged", "removed", removed)
		}
	})

	a.logger.Info("application started", "sources", len(a.cfg.Sources))

	a.bot.Run(ctx)

	a.sched.Stop()
	a.logger.Info("application stopped")
	return nil
}

// Resume schedules periodic ingestion for the source. Unknown ids are ignored
// so that stale database rows cannot start jobs.
func (a *Application) Resume(sourceID string) {
	sc, ok := a.cfg.Sources[sourceID]
	if !ok {
		a.logger.Warn("cannot schedule unknown source", "source", sourceID)
		return
	}

	a.sched.AddInterval(a.jobCtx, sourceJob(sourceID), sc.Interval(), func(jobCtx context.Context) {
		if _, err := a.pipeline.ProcessSource(jobCtx, sourceID); err != nil {
			a.logger.Warn("source processing failed", "source", sourceID, "error", err)
		}
	})
}

// Suspend stops the periodic ingestion job for the source.
func (a *Application) Suspend(sourceID string) {
	a.sched.Remove(sourceJob(sourceID))
}

func sourceJob(sourceID string) string {
	return "source." + sourceID
}

// reactorAdapter converts decoded callback events into domain reactions.
type reactorAdapter struct {
	reactions *usecase.Reactions
}

func (r reactorAdapter) React(ctx context.Context, ev telegram.ReactionEvent) error {
	return r.reactions.Toggle(ctx, domain.Reaction{
		NewsID:    ev.NewsID,
		MessageID: ev.MessageID,
		UserID:    ev.UserID,
		Username:  ev.Username,
		Kind:      domain.ReactionKind(ev.Kind),
	})
}
