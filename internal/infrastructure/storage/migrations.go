package storage

import "fmt"

// migrations are applied in order; schema_version records the last applied
// index. Each entry must be a self-contained script runnable exactly once.
var migrations = []string{
	`
	CREATE TABLE sources (
		id     TEXT PRIMARY KEY,
		name   TEXT NOT NULL DEFAULT '',
		weight INTEGER NOT NULL DEFAULT 1,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE news_items (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		url          TEXT NOT NULL UNIQUE,
		title        TEXT NOT NULL,
		source_id    TEXT NOT NULL,
		published    DATETIME,
		score        REAL NOT NULL DEFAULT 0,
		impact       INTEGER NOT NULL DEFAULT 1,
		summary      TEXT NOT NULL DEFAULT '',
		why          TEXT NOT NULL DEFAULT '',
		summary_lang TEXT NOT NULL DEFAULT '',
		processed_at DATETIME NOT NULL,
		sent         INTEGER NOT NULL DEFAULT 0,
		message_id   INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX idx_news_unsent ON news_items(sent, impact);
	CREATE INDEX idx_news_processed ON news_items(processed_at);
	CREATE INDEX idx_news_message ON news_items(message_id);
	`,
	`
	CREATE TABLE news_reactions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		news_id    INTEGER NOT NULL REFERENCES news_items(id) ON DELETE CASCADE,
		message_id INTEGER NOT NULL DEFAULT 0,
		user_id    INTEGER NOT NULL,
		username   TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (news_id, user_id)
	);
	`,
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	row := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
