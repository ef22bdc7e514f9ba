package domain

import "time"

// RawItem is a single fetch result produced by a source adapter. It is
// transient: consumed within one pipeline pass and discarded.
type RawItem struct {
	Title     string
	Link      string
	Summary   string
	Content   string
	Published string // source-format timestamp, parsed by the pipeline
	SourceID  string
	Lang      string
	Stars     int
	Upvotes   int
}

// NewsItem is the persisted form of a surviving item. URL is the identity
// key; the uniqueness constraint on it is the authoritative duplicate guard.
type NewsItem struct {
	ID          int64
	URL         string
	Title       string
	SourceID    string
	Published   time.Time
	Score       float64
	Impact      int
	Summary     string
	Why         string
	SummaryLang string
	ProcessedAt time.Time
	Sent        bool
	MessageID   int64 // outbound channel message id, 0 when never sent
}

// Source is a configured origin of raw items.
type Source struct {
	ID     string
	Name   string
	Weight int
	Active bool
}

// ReactionKind is the audience feedback variant attached to a delivered item.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// Valid reports whether the kind is one of the known reaction variants.
func (k ReactionKind) Valid() bool {
	return k == ReactionLike || k == ReactionDislike
}

// Reaction is one user's feedback on one news item; at most one per
// (news, user) pair.
type Reaction struct {
	NewsID    int64
	MessageID int64
	Kind      ReactionKind
	UserID    int64
	Username  string
	CreatedAt time.Time
}

// ReactionTally holds per-item like/dislike counts.
type ReactionTally struct {
	Likes    int
	Dislikes int
}

// ReactedNews is one row of the top-reacted stats query.
type ReactedNews struct {
	ID    int64
	Title string
	Tally ReactionTally
}

// Enrichment is the structured judgment returned by the enrichment service
// for one item.
type Enrichment struct {
	Title   string
	Summary string
	Why     string
	Impact  int
	Lang    string
}

// ImpactMin and ImpactMax bound the impact classification; BreakingImpact is
// the threshold at which an item is delivered immediately instead of batched.
const (
	ImpactMin      = 1
	ImpactMax      = 5
	BreakingImpact = 4
)
