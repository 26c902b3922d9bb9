// Package journal records finished segments in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS segments (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run           TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	number        INTEGER NOT NULL,
	path          TEXT NOT NULL,
	packets       INTEGER NOT NULL,
	bytes         INTEGER NOT NULL,
	start_seconds REAL NOT NULL,
	end_seconds   REAL NOT NULL,
	recorded_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_run ON segments(run, seq);
`

// Entry is one recorded segment.
type Entry struct {
	// Run identifies the segmentation run the segment belongs to.
	Run string

	// Seq is the run-wide segment index.
	Seq int64

	// Number is the wrapped filename ordinal.
	Number int

	// Path is the segment filename.
	Path string

	// Packets and Bytes count what the segment received.
	Packets int64
	Bytes   int64

	// Start and End delimit the segment's presentation interval in
	// seconds.
	Start float64
	End   float64

	// RecordedAt is when the entry was written. Zero means now.
	RecordedAt time.Time
}

// Store persists segment records.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the journal database at path, creating it and its
// schema when absent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Record inserts one finished segment.
func (s *Store) Record(ctx context.Context, e Entry) error {
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO segments (run, seq, number, path, packets, bytes, start_seconds, end_seconds, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Run, e.Seq, e.Number, e.Path, e.Packets, e.Bytes, e.Start, e.End,
		recordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record segment %s: %w", e.Path, err)
	}
	return nil
}

// Segments returns every recorded segment of a run in sequence order.
func (s *Store) Segments(ctx context.Context, run string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run, seq, number, path, packets, bytes, start_seconds, end_seconds, recorded_at
		 FROM segments WHERE run = ? ORDER BY seq`, run)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt string
		if err := rows.Scan(&e.Run, &e.Seq, &e.Number, &e.Path, &e.Packets, &e.Bytes,
			&e.Start, &e.End, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan segment row: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, recordedAt); perr == nil {
			e.RecordedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
