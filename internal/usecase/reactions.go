package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"newspulse/internal/domain"
	"newspulse/internal/ports"
)

// Reactions applies audience feedback and keeps message keyboards in sync
// with the stored tallies. Feedback never flows back into scoring.
type Reactions struct {
	store     ports.Store
	messenger ports.Messenger
	logger    *slog.Logger
}

// NewReactions wires the reaction handler.
func NewReactions(store ports.Store, messenger ports.Messenger, logger *slog.Logger) *Reactions {
	return &Reactions{store: store, messenger: messenger, logger: logger}
}

// Toggle records the reaction with toggle semantics and refreshes the
// originating message's keyboard. An invalid kind or unknown news id is
// rejected without any mutation; a failed keyboard refresh is logged, the
// stored reaction stands.
func (r *Reactions) Toggle(ctx context.Context, reaction domain.Reaction) error {
	if !reaction.Kind.Valid() {
		return fmt.Errorf("invalid reaction kind %q", reaction.Kind)
	}

	if err := r.store.ToggleReaction(ctx, reaction); err != nil {
		return fmt.Errorf("toggle reaction: %w", err)
	}

	tally, err := r.store.ReactionTally(ctx, reaction.NewsID)
	if err != nil {
		r.warn("tally lookup after toggle failed", "news_id", reaction.NewsID, "error", err)
		return nil
	}

	if reaction.MessageID != 0 && r.messenger != nil {
		if err := r.messenger.EditReplyMarkup(ctx, reaction.MessageID, ReactionKeyboard(reaction.NewsID, tally)); err != nil {
			r.warn("keyboard refresh failed", "news_id", reaction.NewsID, "error", err)
		}
	}

	return nil
}

func (r *Reactions) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
