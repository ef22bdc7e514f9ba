package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"newspulse/internal/ports"
)

const (
	pollTimeout   = 30 * time.Second
	pollRetryWait = 5 * time.Second

	reactionPrefix = "reaction:"
)

// Commander executes an admin command and returns the reply text; an empty
// reply suppresses the response message.
type Commander interface {
	Command(ctx context.Context, name, args string) string
}

// ReactionEvent is one decoded reaction button press.
type ReactionEvent struct {
	NewsID    int64
	MessageID int64
	UserID    int64
	Username  string
	Kind      string
}

// Reactor applies a reaction toggle originating from a callback query.
type Reactor interface {
	React(ctx context.Context, ev ReactionEvent) error
}

// Bot runs the getUpdates long-poll loop, dispatching admin commands and
// reaction callbacks. Updates the bot cannot interpret are skipped.
type Bot struct {
	client    *Client
	commander Commander
	reactor   Reactor
	logger    *slog.Logger
}

// NewBot wires the update loop.
func NewBot(client *Client, commander Commander, reactor Reactor, logger *slog.Logger) *Bot {
	return &Bot{client: client, commander: commander, reactor: reactor, logger: logger}
}

// Run polls until the context is cancelled. Transient poll failures back off
// and retry; the loop itself never returns an error.
func (b *Bot) Run(ctx context.Context) {
	var offset int64

	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := b.client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.warn("poll failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryWait):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, *update.CallbackQuery)
	case update.Message != nil && strings.HasPrefix(update.Message.Text, "/"):
		b.handleCommand(ctx, *update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg Message) {
	name, args, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
	name = strings.TrimPrefix(name, "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	args = strings.TrimSpace(args)

	if b.commander == nil {
		return
	}

	reply := b.commander.Command(ctx, name, args)
	if reply == "" {
		return
	}
	if _, err := b.client.Send(ctx, reply, ports.SendOptions{DisablePreview: true}); err != nil {
		b.warn("command reply failed", "command", name, "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query CallbackQuery) {
	ev, ok := parseReaction(query)
	if !ok || b.reactor == nil {
		_ = b.client.AnswerCallback(ctx, query.ID, "")
		return
	}

	if err := b.reactor.React(ctx, ev); err != nil {
		b.warn("reaction failed", "news_id", ev.NewsID, "error", err)
		_ = b.client.AnswerCallback(ctx, query.ID, "Could not record reaction")
		return
	}
	_ = b.client.AnswerCallback(ctx, query.ID, "")
}

// parseReaction decodes "reaction:<news_id>:<kind>" callback data.
func parseReaction(query CallbackQuery) (ReactionEvent, bool) {
	if !strings.HasPrefix(query.Data, reactionPrefix) {
		return ReactionEvent{}, false
	}

	parts := strings.Split(strings.TrimPrefix(query.Data, reactionPrefix), ":")
	if len(parts) != 2 {
		return ReactionEvent{}, false
	}

	newsID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || newsID <= 0 {
		return ReactionEvent{}, false
	}

	ev := ReactionEvent{
		NewsID:   newsID,
		UserID:   query.From.ID,
		Username: query.From.Username,
		Kind:     parts[1],
	}
	if query.Message != nil {
		ev.MessageID = query.Message.MessageID
	}
	return ev, true
}

func (b *Bot) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
