// Package tracelog persists a diagnostic trace of merged search results
// and synthesized answers to a local SQLite database. Every write is
// best-effort: failures are logged and swallowed so tracing can never
// break a search.
package tracelog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"askcode/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS merge_trace (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    question    TEXT NOT NULL,
    position    INTEGER NOT NULL,
    channel     TEXT NOT NULL,
    file_path   TEXT NOT NULL,
    start_line  INTEGER NOT NULL,
    end_line    INTEGER NOT NULL,
    distance    REAL,
    final_score REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS answer_trace (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    question    TEXT NOT NULL,
    answer      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_merge_trace_question ON merge_trace(question);
`

// Log writes search traces to SQLite.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the trace database at path.
func New(path string, logger *slog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply trace schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Log{db: db, logger: logger.With("component", "tracelog")}, nil
}

// Close closes the database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

// RecordMerge stores the ranked results for one question. Best-effort.
func (l *Log) RecordMerge(question string, results []types.ScoredFragment) {
	tx, err := l.db.Begin()
	if err != nil {
		l.logger.Warn("trace write skipped", "err", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO merge_trace
        (recorded_at, question, position, channel, file_path, start_line, end_line, distance, final_score)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		l.logger.Warn("trace write skipped", "err", err)
		return
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for i, r := range results {
		var dist any
		if r.HasDistance {
			dist = r.Distance
		}
		if _, err := stmt.Exec(now, question, i+1, r.Channel, r.FilePath,
			r.StartLine, r.EndLine, dist, r.FinalScore); err != nil {
			_ = tx.Rollback()
			l.logger.Warn("trace write skipped", "err", err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		l.logger.Warn("trace commit failed", "err", err)
	}
}

// RecordAnswer stores the synthesized answer for one question. Best-effort.
func (l *Log) RecordAnswer(question, answer string) {
	if _, err := l.db.Exec(
		`INSERT INTO answer_trace (recorded_at, question, answer) VALUES (?, ?, ?)`,
		time.Now().UTC(), question, answer); err != nil {
		l.logger.Warn("answer trace write failed", "err", err)
	}
}
