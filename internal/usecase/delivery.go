package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"newspulse/internal/domain"
	"newspulse/internal/enrich"
	"newspulse/internal/ports"
	"newspulse/internal/sanitize"
)

const (
	// DefaultMessageLimit is the channel per-message character budget, kept
	// below the hard 4096 cap to leave room for formatting overhead.
	DefaultMessageLimit  = 3900
	DefaultBreakingLimit = 30
	DefaultDigestLimit   = 50
)

// DeliveryDeps wires the delivery router.
type DeliveryDeps struct {
	Store         ports.Store
	Messenger     ports.Messenger
	Chain         *enrich.Chain
	Detector      ports.Detector
	BreakingLimit int
	DigestLimit   int
	MessageLimit  int
	Pacing        time.Duration
	Logger        *slog.Logger
}

// Delivery routes enriched items to the channel: immediate breaking sends and
// the batched daily digest. All sends share one rate limiter.
type Delivery struct {
	store         ports.Store
	messenger     ports.Messenger
	chain         *enrich.Chain
	detector      ports.Detector
	breakingLimit int
	digestLimit   int
	messageLimit  int
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// NewDelivery constructs the router; zero limits fall back to defaults.
func NewDelivery(deps DeliveryDeps) *Delivery {
	breakingLimit := deps.BreakingLimit
	if breakingLimit <= 0 {
		breakingLimit = DefaultBreakingLimit
	}
	digestLimit := deps.DigestLimit
	if digestLimit <= 0 {
		digestLimit = DefaultDigestLimit
	}
	messageLimit := deps.MessageLimit
	if messageLimit <= 0 {
		messageLimit = DefaultMessageLimit
	}
	pacing := deps.Pacing
	if pacing <= 0 {
		pacing = time.Second
	}

	return &Delivery{
		store:         deps.Store,
		messenger:     deps.Messenger,
		chain:         deps.Chain,
		detector:      deps.Detector,
		breakingLimit: breakingLimit,
		digestLimit:   digestLimit,
		messageLimit:  messageLimit,
		limiter:       rate.NewLimiter(rate.Every(pacing), 1),
		logger:        deps.Logger,
	}
}

// SendBreaking delivers all unsent high-impact items individually with a
// reaction keyboard. A failed send is retried once without rich formatting;
// an item that still fails stays unsent for the next sweep. Returns the
// number of delivered items.
func (d *Delivery) SendBreaking(ctx context.Context) (int, error) {
	items, err := d.store.UnsentBreaking(ctx, d.breakingLimit)
	if err != nil {
		return 0, fmt.Errorf("load unsent breaking: %w", err)
	}

	sent := 0
	for i := range items {
		title := d.ensureTitle(ctx, &items[i])
		keyboard := ReactionKeyboard(items[i].ID, domain.ReactionTally{})

		if err := d.limiter.Wait(ctx); err != nil {
			return sent, err
		}

		messageID, err := d.messenger.Send(ctx, formatBreaking(items[i], title, true), ports.SendOptions{
			Markdown: true,
			Keyboard: keyboard,
		})
		if err != nil {
			d.warn("breaking send failed, retrying plain", "id", items[i].ID, "error", err)
			messageID, err = d.messenger.Send(ctx, formatBreaking(items[i], title, false), ports.SendOptions{
				Keyboard: keyboard,
			})
		}
		if err != nil {
			d.warn("breaking send failed, left unsent", "id", items[i].ID, "error", err)
			continue
		}

		if err := d.store.MarkSent(ctx, items[i].ID, messageID); err != nil {
			d.warn("mark sent failed", "id", items[i].ID, "error", err)
			continue
		}
		sent++
	}

	return sent, nil
}

// SendDigest assembles all unsent ordinary items into one document, splits it
// at paragraph boundaries into chunks under the message limit, and sends the
// chunks paced. Items are marked sent only after every chunk succeeded; a
// failed chunk leaves the whole batch unsent. Returns the number of delivered
// items.
func (d *Delivery) SendDigest(ctx context.Context, now time.Time) (int, error) {
	items, err := d.store.UnsentDigest(ctx, d.digestLimit)
	if err != nil {
		return 0, fmt.Errorf("load unsent digest: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	entries := make([]digestEntry, 0, len(items))
	for i := range items {
		title := d.ensureTitle(ctx, &items[i])
		entries = append(entries, digestEntry{
			id:   items[i].ID,
			text: formatDigestEntry(i+1, items[i], title),
		})
	}

	chunks := splitDigest(digestHeader(now), entries, d.messageLimit)

	messageIDs := make([]int64, len(chunks))
	for i, chunk := range chunks {
		if err := d.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		messageID, err := d.messenger.Send(ctx, chunk.text, ports.SendOptions{DisablePreview: true})
		if err != nil {
			return 0, fmt.Errorf("digest chunk %d/%d: %w", i+1, len(chunks), err)
		}
		messageIDs[i] = messageID
	}

	delivered := 0
	for i, chunk := range chunks {
		for _, id := range chunk.itemIDs {
			if err := d.store.MarkSent(ctx, id, messageIDs[i]); err != nil {
				d.warn("mark sent failed", "id", id, "error", err)
				continue
			}
			delivered++
		}
	}

	return delivered, nil
}

// ensureTitle cleans the stored title and, when it is still outside the
// target language, re-runs the translation chain and persists a successful
// result in place. A title the chain could not translate keeps its marker in
// the outbound text, never silently passing as target-language.
func (d *Delivery) ensureTitle(ctx context.Context, item *domain.NewsItem) string {
	title := sanitize.ForDelivery(strings.TrimPrefix(item.Title, enrich.NeedsTranslationMarker))
	if d.chain == nil || d.detector == nil {
		return title
	}
	if d.detector.Detect(title) == d.chain.Target() {
		return title
	}

	out := d.chain.Ensure(ctx, title)
	if out.Marked {
		return out.Text
	}

	if err := d.store.UpdateTitle(ctx, item.ID, out.Text); err != nil {
		d.warn("persist re-translated title failed", "id", item.ID, "error", err)
	}
	item.Title = out.Text
	return out.Text
}

// ReactionKeyboard builds the two-button like/dislike control with current
// tallies.
func ReactionKeyboard(newsID int64, tally domain.ReactionTally) [][]ports.Button {
	return [][]ports.Button{{
		{Text: fmt.Sprintf("👍 %d", tally.Likes), Data: fmt.Sprintf("reaction:%d:%s", newsID, domain.ReactionLike)},
		{Text: fmt.Sprintf("👎 %d", tally.Dislikes), Data: fmt.Sprintf("reaction:%d:%s", newsID, domain.ReactionDislike)},
	}}
}

func formatBreaking(item domain.NewsItem, title string, markdown bool) string {
	var b strings.Builder

	b.WriteString(strings.Repeat("★", item.Impact))
	b.WriteString(" ")
	if markdown {
		b.WriteString("*" + title + "*")
	} else {
		b.WriteString(title)
	}

	summary := sanitize.ForDelivery(item.Summary)
	if summary != "" && !strings.EqualFold(summary, title) {
		b.WriteString("\n\n")
		b.WriteString(summary)
	}

	if why := sanitize.ForDelivery(item.Why); why != "" {
		b.WriteString("\n\n💡 ")
		b.WriteString(why)
	}

	b.WriteString("\n\n")
	b.WriteString(item.URL)
	return b.String()
}

func formatDigestEntry(position int, item domain.NewsItem, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s", position, title)

	summary := sanitize.ForDelivery(item.Summary)
	if summary != "" && !strings.EqualFold(summary, title) {
		b.WriteString("\n")
		b.WriteString(summary)
	}

	b.WriteString("\n")
	b.WriteString(item.URL)
	return b.String()
}

func digestHeader(now time.Time) string {
	return fmt.Sprintf("📰 AI News Digest (%s)", now.Format("02.01.2006"))
}

type digestEntry struct {
	id   int64
	text string
}

type digestChunk struct {
	text    string
	itemIDs []int64
}

// splitDigest packs entries into chunks that stay under the character limit,
// breaking only at entry boundaries. Every chunk starts with the header;
// follow-up chunks carry a continuation marker. An entry that alone exceeds
// the budget is truncated rather than dropped.
func splitDigest(header string, entries []digestEntry, limit int) []digestChunk {
	const sep = "\n\n"

	head := func(first bool) string {
		if first {
			return header
		}
		return header + " (continued)"
	}

	var chunks []digestChunk
	text := head(true)
	var ids []int64

	for _, entry := range entries {
		if len(ids) > 0 && runeLen(text)+runeLen(sep)+runeLen(entry.text) > limit {
			chunks = append(chunks, digestChunk{text: text, itemIDs: ids})
			text = head(false)
			ids = nil
		}

		if budget := limit - runeLen(text) - runeLen(sep); runeLen(entry.text) > budget {
			entry.text = truncateRunes(entry.text, budget)
		}

		text += sep + entry.text
		ids = append(ids, entry.id)
	}

	if len(ids) > 0 {
		chunks = append(chunks, digestChunk{text: text, itemIDs: ids})
	}
	return chunks
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func (d *Delivery) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
