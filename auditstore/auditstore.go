// Package auditstore keeps a local record of every action the bot took (or
// would have taken in a dry run), so moderators can review enforcement after
// the fact.
package auditstore

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

type Args struct {
	Path   string
	Logger *slog.Logger
}

type Entry struct {
	PostID     string
	Author     string
	Decision   string
	DryRun     bool
	Error      string
	RecordedAt time.Time
}

func New(args *Args) (*Store, error) {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	if dir := filepath.Dir(args.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", args.Path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, logger: args.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT NOT NULL,
		author TEXT,
		decision TEXT NOT NULL,
		dry_run BOOLEAN NOT NULL,
		error TEXT,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_post_id ON actions(post_id);
	CREATE INDEX IF NOT EXISTS idx_actions_recorded_at ON actions(recorded_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Insert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (post_id, author, decision, dry_run, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.PostID, e.Author, e.Decision, e.DryRun, e.Error, e.RecordedAt.UTC())

	return err
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, author, decision, dry_run, error, recorded_at
		FROM actions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.PostID, &e.Author, &e.Decision, &e.DryRun, &e.Error, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
