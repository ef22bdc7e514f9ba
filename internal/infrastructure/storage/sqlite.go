// Package storage provides SQLite persistence for sources, news items, and
// reactions.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"newspulse/internal/domain"
	"newspulse/internal/ports"
)

// SQLiteStore implements ports.Store on a single SQLite database. database/sql
// serializes access; every method is one short-lived statement or transaction.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at path and applies pending
// migrations. ":memory:" opens a private in-memory database.
//
// foreign_keys is connection-scoped in SQLite, so it is set through the DSN
// where the driver applies it to every connection database/sql opens, not via
// a one-shot Exec that only reaches one pooled connection.
func Open(path string) (*SQLiteStore, error) {
	connStr := "file:" + path + "?_pragma=foreign_keys(1)"
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL is a database-level setting, a single Exec is enough.
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertSource inserts the source or refreshes its name and weight. The
// active flag is only written on first insert so runtime toggles survive
// restarts.
func (s *SQLiteStore) UpsertSource(ctx context.Context, src domain.Source) error {
	weight := src.Weight
	if weight < 1 {
		weight = 1
	}

	query, args, err := sq.Insert("sources").
		Columns("id", "name", "weight", "active").
		Values(src.ID, src.Name, weight, boolToInt(src.Active)).
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, weight = excluded.weight").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert source: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

// SetSourceActive flips the runtime enable flag of one source.
func (s *SQLiteStore) SetSourceActive(ctx context.Context, id string, active bool) error {
	query, args, err := sq.Update("sources").
		Set("active", boolToInt(active)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set active: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set source active: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown source %q", id)
	}
	return nil
}

// SourceActive reports whether the source exists and is enabled.
func (s *SQLiteStore) SourceActive(ctx context.Context, id string) (bool, error) {
	query, args, err := sq.Select("active").
		From("sources").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build source active: %w", err)
	}

	var active int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query source active: %w", err)
	}
	return active != 0, nil
}

// SourceWeight returns the configured weight, falling back to 1 for unknown
// sources so scoring never stalls on a storage miss.
func (s *SQLiteStore) SourceWeight(ctx context.Context, id string) int {
	query, args, err := sq.Select("weight").
		From("sources").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return 1
	}

	var weight int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&weight); err != nil || weight < 1 {
		return 1
	}
	return weight
}

// ActiveSources lists enabled sources ordered by id.
func (s *SQLiteStore) ActiveSources(ctx context.Context) ([]domain.Source, error) {
	return s.querySources(ctx, sq.Eq{"active": 1})
}

// Sources lists every registered source, disabled ones included, ordered by id.
func (s *SQLiteStore) Sources(ctx context.Context) ([]domain.Source, error) {
	return s.querySources(ctx, nil)
}

func (s *SQLiteStore) querySources(ctx context.Context, cond sq.Sqlizer) ([]domain.Source, error) {
	builder := sq.Select("id", "name", "weight", "active").
		From("sources").
		OrderBy("id")
	if cond != nil {
		builder = builder.Where(cond)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var src domain.Source
		var active int
		if err := rows.Scan(&src.ID, &src.Name, &src.Weight, &active); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.Active = active != 0
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return sources, nil
}

// IsRecentDuplicate reports whether the URL was already stored within the
// recency window.
func (s *SQLiteStore) IsRecentDuplicate(ctx context.Context, url string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window)

	query, args, err := sq.Select("1").
		From("news_items").
		Where(sq.Eq{"url": url}).
		Where(sq.GtOrEq{"processed_at": cutoff}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build recent duplicate: %w", err)
	}

	var one int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query recent duplicate: %w", err)
	}
	return true, nil
}

// InsertNewsItem inserts the item unless its URL already exists. On insert
// item.ID is filled; a conflicting URL returns (false, nil).
func (s *SQLiteStore) InsertNewsItem(ctx context.Context, item *domain.NewsItem) (bool, error) {
	if item.ProcessedAt.IsZero() {
		item.ProcessedAt = time.Now().UTC()
	}

	query, args, err := sq.Insert("news_items").
		Columns("url", "title", "source_id", "published", "score", "impact",
			"summary", "why", "summary_lang", "processed_at", "sent", "message_id").
		Values(item.URL, item.Title, item.SourceID, item.Published.UTC(), item.Score, item.Impact,
			item.Summary, item.Why, item.SummaryLang, item.ProcessedAt.UTC(), boolToInt(item.Sent), item.MessageID).
		Suffix("ON CONFLICT(url) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert news: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert news: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert news rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("insert news last id: %w", err)
	}
	item.ID = id
	return true, nil
}

// UpdateTitle rewrites the stored title, used when delivery re-translates a
// marked title successfully.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, id int64, title string) error {
	query, args, err := sq.Update("news_items").
		Set("title", title).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update title: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	return nil
}

// MarkSent flags the item delivered and records its channel message id.
func (s *SQLiteStore) MarkSent(ctx context.Context, id int64, messageID int64) error {
	query, args, err := sq.Update("news_items").
		Set("sent", 1).
		Set("message_id", messageID).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark sent: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// UnsentBreaking returns undelivered high-impact items, strongest signal
// first.
func (s *SQLiteStore) UnsentBreaking(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	return s.queryUnsent(ctx, sq.GtOrEq{"impact": domain.BreakingImpact}, limit,
		"score DESC", "published DESC")
}

// UnsentDigest returns undelivered ordinary items ordered by impact, then
// score.
func (s *SQLiteStore) UnsentDigest(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	return s.queryUnsent(ctx, sq.Lt{"impact": domain.BreakingImpact}, limit,
		"impact DESC", "score DESC", "published DESC")
}

func (s *SQLiteStore) queryUnsent(ctx context.Context, impactCond sq.Sqlizer, limit int, orderBy ...string) ([]domain.NewsItem, error) {
	query, args, err := sq.Select("id", "url", "title", "source_id", "published", "score", "impact",
		"summary", "why", "summary_lang", "processed_at", "sent", "message_id").
		From("news_items").
		Where(sq.Eq{"sent": 0}).
		Where(impactCond).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unsent: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unsent: %w", err)
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		item, err := scanNewsItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

// NewsIDByMessage resolves a channel message id back to the stored item.
func (s *SQLiteStore) NewsIDByMessage(ctx context.Context, messageID int64) (int64, error) {
	query, args, err := sq.Select("id").
		From("news_items").
		Where(sq.Eq{"message_id": messageID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build news by message: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("no item for message %d", messageID)
		}
		return 0, fmt.Errorf("query news by message: %w", err)
	}
	return id, nil
}

// DeleteOlderThan purges items processed before the cutoff, returning the
// number of removed rows. Reactions follow via the foreign key cascade.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := sq.Delete("news_items").
		Where(sq.Lt{"processed_at": cutoff.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build retention delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retention delete: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retention rows affected: %w", err)
	}
	return removed, nil
}

// SourceNewsCount counts the stored items of one source.
func (s *SQLiteStore) SourceNewsCount(ctx context.Context, id string) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("news_items").
		Where(sq.Eq{"source_id": id}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build source news count: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query source news count: %w", err)
	}
	return count, nil
}

// LanguageStats counts stored items per summary language. Items without a
// detected language are reported under "unknown".
func (s *SQLiteStore) LanguageStats(ctx context.Context) (map[string]int, error) {
	query, args, err := sq.Select("summary_lang", "COUNT(*)").
		From("news_items").
		GroupBy("summary_lang").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build language stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query language stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var lang string
		var count int
		if err := rows.Scan(&lang, &count); err != nil {
			return nil, fmt.Errorf("scan language stats: %w", err)
		}
		if lang == "" {
			lang = "unknown"
		}
		stats[lang] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return stats, nil
}

// CountProcessedSince counts items processed at or after the given moment.
func (s *SQLiteStore) CountProcessedSince(ctx context.Context, since time.Time) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("news_items").
		Where(sq.GtOrEq{"processed_at": since.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count processed: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query count processed: %w", err)
	}
	return count, nil
}

// ToggleReaction applies toggle semantics inside one transaction: pressing
// the same reaction again removes it, a different one replaces it, otherwise
// a new row is inserted.
func (s *SQLiteStore) ToggleReaction(ctx context.Context, r domain.Reaction) error {
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid reaction kind %q", r.Kind)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reaction tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT kind FROM news_reactions WHERE news_id = ? AND user_id = ?",
		r.NewsID, r.UserID).Scan(&existing)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			"INSERT INTO news_reactions (news_id, message_id, user_id, username, kind, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			r.NewsID, r.MessageID, r.UserID, r.Username, string(r.Kind), r.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert reaction: %w", err)
		}
	case err != nil:
		return fmt.Errorf("query reaction: %w", err)
	case existing == string(r.Kind):
		_, err = tx.ExecContext(ctx,
			"DELETE FROM news_reactions WHERE news_id = ? AND user_id = ?",
			r.NewsID, r.UserID)
		if err != nil {
			return fmt.Errorf("delete reaction: %w", err)
		}
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE news_reactions SET kind = ?, created_at = ? WHERE news_id = ? AND user_id = ?",
			string(r.Kind), r.CreatedAt.UTC(), r.NewsID, r.UserID)
		if err != nil {
			return fmt.Errorf("update reaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reaction tx: %w", err)
	}
	return nil
}

// ReactionTally returns per-item like and dislike counts.
func (s *SQLiteStore) ReactionTally(ctx context.Context, newsID int64) (domain.ReactionTally, error) {
	query, args, err := sq.Select("kind", "COUNT(*)").
		From("news_reactions").
		Where(sq.Eq{"news_id": newsID}).
		GroupBy("kind").
		ToSql()
	if err != nil {
		return domain.ReactionTally{}, fmt.Errorf("build reaction tally: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.ReactionTally{}, fmt.Errorf("query reaction tally: %w", err)
	}
	defer rows.Close()

	var tally domain.ReactionTally
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return domain.ReactionTally{}, fmt.Errorf("scan reaction tally: %w", err)
		}
		switch domain.ReactionKind(kind) {
		case domain.ReactionLike:
			tally.Likes = count
		case domain.ReactionDislike:
			tally.Dislikes = count
		}
	}
	if err := rows.Err(); err != nil {
		return domain.ReactionTally{}, fmt.Errorf("rows iteration: %w", err)
	}
	return tally, nil
}

// TopReacted returns the most-reacted items, ranked by total reaction count.
func (s *SQLiteStore) TopReacted(ctx context.Context, limit int) ([]domain.ReactedNews, error) {
	query, args, err := sq.Select(
		"n.id",
		"n.title",
		"SUM(CASE WHEN r.kind = ? THEN 1 ELSE 0 END) AS likes",
		"SUM(CASE WHEN r.kind = ? THEN 1 ELSE 0 END) AS dislikes").
		From("news_items n").
		Join("news_reactions r ON r.news_id = n.id").
		GroupBy("n.id", "n.title").
		OrderBy("COUNT(*) DESC", "likes DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build top reacted: %w", err)
	}
	args = append([]any{string(domain.ReactionLike), string(domain.ReactionDislike)}, args...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top reacted: %w", err)
	}
	defer rows.Close()

	var top []domain.ReactedNews
	for rows.Next() {
		var row domain.ReactedNews
		if err := rows.Scan(&row.ID, &row.Title, &row.Tally.Likes, &row.Tally.Dislikes); err != nil {
			return nil, fmt.Errorf("scan top reacted: %w", err)
		}
		top = append(top, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return top, nil
}

// SourceReactionTallies aggregates reactions per source.
func (s *SQLiteStore) SourceReactionTallies(ctx context.Context) (map[string]domain.ReactionTally, error) {
	query := `SELECT n.source_id,
		SUM(CASE WHEN r.kind = ? THEN 1 ELSE 0 END),
		SUM(CASE WHEN r.kind = ? THEN 1 ELSE 0 END)
	FROM news_reactions r
	JOIN news_items n ON n.id = r.news_id
	GROUP BY n.source_id`

	rows, err := s.db.QueryContext(ctx, query, string(domain.ReactionLike), string(domain.ReactionDislike))
	if err != nil {
		return nil, fmt.Errorf("query source tallies: %w", err)
	}
	defer rows.Close()

	tallies := map[string]domain.ReactionTally{}
	for rows.Next() {
		var sourceID string
		var tally domain.ReactionTally
		if err := rows.Scan(&sourceID, &tally.Likes, &tally.Dislikes); err != nil {
			return nil, fmt.Errorf("scan source tally: %w", err)
		}
		tallies[sourceID] = tally
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return tallies, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNewsItem(row rowScanner) (domain.NewsItem, error) {
	var item domain.NewsItem
	var sent int
	err := row.Scan(
		&item.ID,
		&item.URL,
		&item.Title,
		&item.SourceID,
		&item.Published,
		&item.Score,
		&item.Impact,
		&item.Summary,
		&item.Why,
		&item.SummaryLang,
		&item.ProcessedAt,
		&sent,
		&item.MessageID,
	)
	if err != nil {
		return domain.NewsItem{}, fmt.Errorf("scan news item: %w", err)
	}
	item.Sent = sent != 0
	return item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
