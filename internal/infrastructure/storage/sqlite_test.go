package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newspulse/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testItem(url string, impact int, score float64) *domain.NewsItem {
	return &domain.NewsItem{
		URL:         url,
		Title:       "title for " + url,
		SourceID:    "rss-test",
		Published:   time.Now().UTC().Add(-time.Hour),
		Score:       score,
		Impact:      impact,
		Summary:     "summary",
		SummaryLang: "ru",
		ProcessedAt: time.Now().UTC(),
	}
}

func TestUpsertSourcePreservesRuntimeToggle(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSource(ctx, domain.Source{ID: "hn", Name: "Hacker News", Weight: 2, Active: true}))
	require.NoError(t, store.SetSourceActive(ctx, "hn", false))

	// Re-registering on startup must not flip the source back on.
	require.NoError(t, store.UpsertSource(ctx, domain.Source{ID: "hn", Name: "Hacker News", Weight: 3, Active: true}))

	active, err := store.SourceActive(ctx, "hn")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, 3, store.SourceWeight(ctx, "hn"), "weight refresh survives")
}

func TestSourceDefaults(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	active, err := store.SourceActive(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, 1, store.SourceWeight(ctx, "missing"))

	require.Error(t, store.SetSourceActive(ctx, "missing", true))
}

func TestActiveSourcesFiltersDisabled(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSource(ctx, domain.Source{ID: "a", Active: true, Weight: 1}))
	require.NoError(t, store.UpsertSource(ctx, domain.Source{ID: "b", Active: true, Weight: 1}))
	require.NoError(t, store.SetSourceActive(ctx, "b", false))

	sources, err := store.ActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "a", sources[0].ID)
}

func TestInsertNewsItemIgnoresDuplicateURL(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	first := testItem("https://example.org/a", 3, 20)
	inserted, err := store.InsertNewsItem(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, first.ID)

	dup := testItem("https://example.org/a", 5, 90)
	inserted, err = store.InsertNewsItem(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate URL is expected, not an error")
	assert.Zero(t, dup.ID)
}

func TestIsRecentDuplicateRespectsWindow(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	old := testItem("https://example.org/old", 2, 5)
	old.ProcessedAt = time.Now().UTC().Add(-100 * time.Hour)
	_, err := store.InsertNewsItem(ctx, old)
	require.NoError(t, err)

	fresh := testItem("https://example.org/fresh", 2, 5)
	_, err = store.InsertNewsItem(ctx, fresh)
	require.NoError(t, err)

	window := 72 * time.Hour

	dup, err := store.IsRecentDuplicate(ctx, "https://example.org/fresh", window)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = store.IsRecentDuplicate(ctx, "https://example.org/old", window)
	require.NoError(t, err)
	assert.False(t, dup, "expired entries are eligible again")

	dup, err = store.IsRecentDuplicate(ctx, "https://example.org/never", window)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestUnsentQueuesSplitByImpact(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	breaking := testItem("https://example.org/breaking", 5, 80)
	ordinary := testItem("https://example.org/ordinary", 2, 10)
	alsoBreaking := testItem("https://example.org/also-breaking", 4, 120)
	delivered := testItem("https://example.org/delivered", 5, 50)

	for _, item := range []*domain.NewsItem{breaking, ordinary, alsoBreaking, delivered} {
		_, err := store.InsertNewsItem(ctx, item)
		require.NoError(t, err)
	}
	require.NoError(t, store.MarkSent(ctx, delivered.ID, 777))

	highs, err := store.UnsentBreaking(ctx, 10)
	require.NoError(t, err)
	require.Len(t, highs, 2)
	assert.Equal(t, "https://example.org/also-breaking", highs[0].URL, "higher score first")
	assert.Equal(t, "https://example.org/breaking", highs[1].URL)

	lows, err := store.UnsentDigest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, lows, 1)
	assert.Equal(t, "https://example.org/ordinary", lows[0].URL)
	assert.False(t, lows[0].Sent)
	assert.Equal(t, "ru", lows[0].SummaryLang)
}

func TestMarkSentRecordsMessageID(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	item := testItem("https://example.org/sent", 5, 40)
	_, err := store.InsertNewsItem(ctx, item)
	require.NoError(t, err)

	require.NoError(t, store.MarkSent(ctx, item.ID, 4242))

	id, err := store.NewsIDByMessage(ctx, 4242)
	require.NoError(t, err)
	assert.Equal(t, item.ID, id)

	_, err = store.NewsIDByMessage(ctx, 9999)
	assert.Error(t, err)
}

func TestToggleReactionSemantics(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	item := testItem("https://example.org/reacted", 5, 40)
	_, err := store.InsertNewsItem(ctx, item)
	require.NoError(t, err)

	like := domain.Reaction{NewsID: item.ID, UserID: 100, Kind: domain.ReactionLike}
	dislike := domain.Reaction{NewsID: item.ID, UserID: 100, Kind: domain.ReactionDislike}

	require.NoError(t, store.ToggleReaction(ctx, like))
	tally, err := store.ReactionTally(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionTally{Likes: 1}, tally)

	// A different kind overwrites.
	require.NoError(t, store.ToggleReaction(ctx, dislike))
	tally, err = store.ReactionTally(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionTally{Dislikes: 1}, tally)

	// The same kind again removes it.
	require.NoError(t, store.ToggleReaction(ctx, dislike))
	tally, err = store.ReactionTally(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionTally{}, tally)

	// Per-user rows are independent.
	require.NoError(t, store.ToggleReaction(ctx, like))
	other := domain.Reaction{NewsID: item.ID, UserID: 200, Kind: domain.ReactionLike}
	require.NoError(t, store.ToggleReaction(ctx, other))
	tally, err = store.ReactionTally(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionTally{Likes: 2}, tally)

	assert.Error(t, store.ToggleReaction(ctx, domain.Reaction{NewsID: item.ID, UserID: 1, Kind: "love"}))
}

func TestReactionStats(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	popular := testItem("https://example.org/popular", 5, 60)
	popular.SourceID = "rss-a"
	niche := testItem("https://example.org/niche", 3, 10)
	niche.SourceID = "rss-b"
	for _, item := range []*domain.NewsItem{popular, niche} {
		_, err := store.InsertNewsItem(ctx, item)
		require.NoError(t, err)
	}

	require.NoError(t, store.ToggleReaction(ctx, domain.Reaction{NewsID: popular.ID, UserID: 1, Kind: domain.ReactionLike}))
	require.NoError(t, store.ToggleReaction(ctx, domain.Reaction{NewsID: popular.ID, UserID: 2, Kind: domain.ReactionLike}))
	require.NoError(t, store.ToggleReaction(ctx, domain.Reaction{NewsID: popular.ID, UserID: 3, Kind: domain.ReactionDislike}))
	require.NoError(t, store.ToggleReaction(ctx, domain.Reaction{NewsID: niche.ID, UserID: 1, Kind: domain.ReactionDislike}))

	top, err := store.TopReacted(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, popular.ID, top[0].ID)
	assert.Equal(t, domain.ReactionTally{Likes: 2, Dislikes: 1}, top[0].Tally)
	assert.Equal(t, domain.ReactionTally{Dislikes: 1}, top[1].Tally)

	tallies, err := store.SourceReactionTallies(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionTally{Likes: 2, Dislikes: 1}, tallies["rss-a"])
	assert.Equal(t, domain.ReactionTally{Dislikes: 1}, tallies["rss-b"])
}

func TestDeleteOlderThanCascadesReactions(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	stale := testItem("https://example.org/stale", 2, 5)
	stale.ProcessedAt = time.Now().UTC().Add(-40 * 24 * time.Hour)
	_, err := store.InsertNewsItem(ctx, stale)
	require.NoError(t, err)

	recent := testItem("https://example.org/recent", 2, 5)
	_, err = store.InsertNewsItem(ctx, recent)
	require.NoError(t, err)

	require.NoError(t, store.ToggleReaction(ctx, domain.Reaction{NewsID: stale.ID, UserID: 1, Kind: domain.ReactionLike}))

	removed, err := store.DeleteOlderThan(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	tally, err := store.ReactionTally(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionTally{}, tally)

	count, err := store.CountProcessedSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestForeignKeysEnforcedOnEveryConnection(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	// Force each statement onto a brand-new pooled connection so a pragma
	// applied to only one connection would not cover them.
	store.db.SetMaxIdleConns(0)

	err := store.ToggleReaction(ctx, domain.Reaction{NewsID: 424242, UserID: 1, Kind: domain.ReactionLike})
	assert.Error(t, err, "a reaction for a nonexistent news id must be rejected")

	item := testItem("https://example.org/fk", 2, 5)
	_, err = store.InsertNewsItem(ctx, item)
	require.NoError(t, err)
	require.NoError(t, store.ToggleReaction(ctx, domain.Reaction{NewsID: item.ID, UserID: 1, Kind: domain.ReactionLike}))

	removed, err := store.DeleteOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var orphans int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM news_reactions").Scan(&orphans))
	assert.Zero(t, orphans, "cascade removes reactions together with their item")
}

func TestSourcesListsDisabledToo(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSource(ctx, domain.Source{ID: "a", Name: "Alpha", Weight: 2, Active: true}))
	require.NoError(t, store.UpsertSource(ctx, domain.Source{ID: "b", Name: "Beta", Weight: 1, Active: true}))
	require.NoError(t, store.SetSourceActive(ctx, "b", false))

	sources, err := store.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "a", sources[0].ID)
	assert.True(t, sources[0].Active)
	assert.Equal(t, "b", sources[1].ID)
	assert.False(t, sources[1].Active)
}

func TestSourceNewsCount(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	first := testItem("https://example.org/c1", 2, 5)
	second := testItem("https://example.org/c2", 2, 5)
	other := testItem("https://example.org/c3", 2, 5)
	other.SourceID = "rss-other"
	for _, item := range []*domain.NewsItem{first, second, other} {
		_, err := store.InsertNewsItem(ctx, item)
		require.NoError(t, err)
	}

	count, err := store.SourceNewsCount(ctx, "rss-test")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.SourceNewsCount(ctx, "never-seen")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLanguageStatsGroupsAndLabelsUnknown(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	ru1 := testItem("https://example.org/l1", 2, 5)
	ru2 := testItem("https://example.org/l2", 2, 5)
	bare := testItem("https://example.org/l3", 2, 5)
	bare.SummaryLang = ""
	for _, item := range []*domain.NewsItem{ru1, ru2, bare} {
		_, err := store.InsertNewsItem(ctx, item)
		require.NoError(t, err)
	}

	stats, err := store.LanguageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ru": 2, "unknown": 1}, stats)
}

func TestMigrationsAreIdempotentAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reopen.db")

	store, err := Open(path)
	require.NoError(t, err)

	item := testItem("https://example.org/persist", 3, 15)
	_, err = store.InsertNewsItem(context.Background(), item)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	dup, err := store.IsRecentDuplicate(context.Background(), "https://example.org/persist", 72*time.Hour)
	require.NoError(t, err)
	assert.True(t, dup)
}
