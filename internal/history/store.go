// Package history records finished playback sessions in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/vista-tts/vista/internal/stream"
)

const (
	defaultLimit = 20
	previewRunes = 60
)

// Entry is one finished session.
type Entry struct {
	ID         string
	Voice      string
	Model      string
	Format     string
	Preview    string
	Characters int
	Bytes      int64
	Chunks     int
	State      string
	Error      string
	StartedAt  time.Time
	EndedAt    time.Time
}

// Duration is the wall time between start and end.
func (e Entry) Duration() time.Duration {
	if e.EndedAt.IsZero() {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// FromSession builds an entry from a finished session.
func FromSession(s *stream.Session) Entry {
	req := s.Request()
	stats := s.Stats()
	e := Entry{
		ID:         s.ID(),
		Voice:      req.VoiceID,
		Model:      req.ModelID,
		Format:     s.Media().Format,
		Preview:    preview(req.Text),
		Characters: len([]rune(req.Text)),
		Bytes:      stats.BytesReceived,
		Chunks:     stats.ChunksReceived,
		State:      s.State().String(),
		StartedAt:  s.StartedAt(),
		EndedAt:    s.EndedAt(),
	}
	if err := s.Err(); err != nil {
		e.Error = err.Error()
	}
	return e
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes-1]) + "…"
}

// Store is a SQLite-backed session history.
type Store struct {
	db     *sql.DB
	logger *log.Logger
	clock  func() time.Time
}

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, logger: log.Default().WithPrefix("history"), clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    voice_id TEXT NOT NULL,
    model_id TEXT,
    output_format TEXT,
    preview TEXT,
    characters INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    chunks INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    error TEXT,
    started_at INTEGER NOT NULL,
    ended_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("history schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record writes e, replacing an earlier entry with the same ID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("history: entry has no id")
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = s.clock()
	}
	var ended sql.NullInt64
	if !e.EndedAt.IsZero() {
		ended = sql.NullInt64{Int64: e.EndedAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, voice_id, model_id, output_format, preview, characters, bytes, chunks, state, error, started_at, ended_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   bytes=excluded.bytes, chunks=excluded.chunks, state=excluded.state,
		   error=excluded.error, ended_at=excluded.ended_at`,
		e.ID, e.Voice, e.Model, e.Format, e.Preview, e.Characters, e.Bytes, e.Chunks,
		e.State, e.Error, e.StartedAt.UnixMilli(), ended)
	if err != nil {
		return fmt.Errorf("record session %s: %w", e.ID, err)
	}
	s.logger.Debug("session recorded", "id", e.ID, "state", e.State)
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, voice_id, model_id, output_format, preview, characters, bytes, chunks, state, error, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                      Entry
			model, format, preview sql.NullString
			errText                sql.NullString
			started                int64
			ended                  sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Voice, &model, &format, &preview, &e.Characters, &e.Bytes,
			&e.Chunks, &e.State, &errText, &started, &ended); err != nil {
			return nil, err
		}
		e.Model, e.Format, e.Preview, e.Error = model.String, format.String, preview.String, errText.String
		e.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			e.EndedAt = time.UnixMilli(ended.Int64)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries that started more than maxAge ago and reports how
// many were removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.clock().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("history pruned", "removed", n)
	}
	return n, nil
}
