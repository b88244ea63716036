// Package archive is an append-only SQLite transcript of processed
// messages and outcomes. It is an audit surface only: nothing on the
// processing path reads it back, and it is never used to rebuild
// conversation state after a restart.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"relaybot/internal/domain"

	_ "modernc.org/sqlite"
)

// Store writes transcript rows to SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create archive directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open archive database: %w", err)
	}

	// Single connection: SQLite write serialization.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcript (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id  TEXT NOT NULL,
		chat_id     TEXT NOT NULL,
		direction   TEXT NOT NULL,  -- inbound | outbound
		kind        TEXT NOT NULL,
		body        TEXT,
		sender      TEXT,
		ts          INTEGER NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_chat ON transcript(chat_id, ts);

	CREATE TABLE IF NOT EXISTS outcomes (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id   TEXT NOT NULL,
		chat_id      TEXT NOT NULL,
		success      INTEGER NOT NULL,
		error_detail TEXT,
		elapsed_ms   INTEGER NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_time ON outcomes(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordMessage appends one transcript row. direction is "inbound" or
// "outbound".
func (s *Store) RecordMessage(ctx context.Context, chatID, direction string, msg domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript (message_id, chat_id, direction, kind, body, sender, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, chatID, direction, string(msg.Kind), msg.Body, msg.From, msg.Timestamp,
	)
	return err
}

// RecordOutcome appends one processing-outcome row.
func (s *Store) RecordOutcome(ctx context.Context, messageID, chatID string, outcome domain.ProcessingOutcome) error {
	success := 0
	if outcome.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (message_id, chat_id, success, error_detail, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		messageID, chatID, success, outcome.ErrorDetail, outcome.ElapsedMS,
	)
	return err
}

// CountSince returns the number of transcript rows newer than the
// given time. Used by the doctor command, never on the hot path.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcript WHERE created_at >= ?`, since,
	).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
