package ports

import (
	"context"
	"time"

	"newspulse/internal/domain"
)

// Fetcher pulls raw items for one configured source. Implementations never
// return an error: an empty slice signals "no new items or failure" and the
// failure is logged inside the adapter.
type Fetcher interface {
	SourceID() string
	Fetch(ctx context.Context) []domain.RawItem
}

// Store persists sources, news items, and reactions. Every method is a single
// short-lived transaction; there are no long-held locks.
type Store interface {
	UpsertSource(ctx context.Context, src domain.Source) error
	SetSourceActive(ctx context.Context, id string, active bool) error
	SourceActive(ctx context.Context, id string) (bool, error)
	SourceWeight(ctx context.Context, id string) int
	ActiveSources(ctx context.Context) ([]domain.Source, error)
	Sources(ctx context.Context) ([]domain.Source, error)
	SourceNewsCount(ctx context.Context, id string) (int, error)

	IsRecentDuplicate(ctx context.Context, url string, window time.Duration) (bool, error)
	// InsertNewsItem inserts the item if its URL is new, filling item.ID.
	// A duplicate URL returns (false, nil): expected, not an error.
	InsertNewsItem(ctx context.Context, item *domain.NewsItem) (bool, error)
	UpdateTitle(ctx context.Context, id int64, title string) error
	MarkSent(ctx context.Context, id int64, messageID int64) error
	UnsentBreaking(ctx context.Context, limit int) ([]domain.NewsItem, error)
	UnsentDigest(ctx context.Context, limit int) ([]domain.NewsItem, error)
	NewsIDByMessage(ctx context.Context, messageID int64) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountProcessedSince(ctx context.Context, since time.Time) (int, error)
	LanguageStats(ctx context.Context) (map[string]int, error)

	// ToggleReaction applies toggle semantics: an identical existing reaction
	// is deleted, a different one is overwritten, otherwise a row is inserted.
	ToggleReaction(ctx context.Context, r domain.Reaction) error
	ReactionTally(ctx context.Context, newsID int64) (domain.ReactionTally, error)
	TopReacted(ctx context.Context, limit int) ([]domain.ReactedNews, error)
	SourceReactionTallies(ctx context.Context) (map[string]domain.ReactionTally, error)
}

// ChatBackend produces a raw completion from an external text-understanding
// service. Responses are untrusted text requiring extraction and validation.
type ChatBackend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Translator converts text between languages through an external service.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Detector identifies the language of a text, returning an ISO 639-1 code or
// "unknown" when detection is not confident enough.
type Detector interface {
	Detect(text string) string
}

// Button is one interactive control attached to an outbound message.
type Button struct {
	Text string
	Data string
}

// SendOptions control formatting and interactive controls of an outbound message.
type SendOptions struct {
	Markdown       bool
	DisablePreview bool
	Keyboard       [][]Button
}

// Messenger is the delivery surface. Send returns the channel message id and
// may fail with rate-limit or formatting errors, both recoverable by a
// plain-text retry.
type Messenger interface {
	Send(ctx context.Context, text string, opts SendOptions) (int64, error)
	EditReplyMarkup(ctx context.Context, messageID int64, keyboard [][]Button) error
}
