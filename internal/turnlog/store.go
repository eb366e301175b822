package turnlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxalabs/voxa-core/internal/config"
)

// Entry is one recorded step in a spoken turn's timeline: a segmented
// sentence, a synthesis failure, a played clip, or turn completion.
type Entry struct {
	ID            int64
	TurnID        string
	Type          string
	SentenceIndex int64
	Detail        string
	CreatedAt     time.Time
}

const (
	EntrySentence    = "sentence"
	EntrySynthFailed = "synth_failed"
	EntryClipPlayed  = "clip_played"
	EntryTurnDone    = "turn_done"
	EntryTurnAborted = "turn_aborted"
)

// Store wraps a SQLite-backed timeline of spoken turns.
type Store struct {
	db    *sql.DB
	cfg   config.TurnLogConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the turn log according to config. Ephemeral mode keeps no
// database and turns every write into a no-op.
func Open(ctx context.Context, cfg config.TurnLogConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("turn log vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("turn log prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS turns (
    turn_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    turn_id TEXT NOT NULL,
    entry_type TEXT NOT NULL,
    sentence_index INTEGER,
    detail TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(turn_id) REFERENCES turns(turn_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_entries_turn_created ON entries(turn_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendTurn ensures a turn row exists.
func (s *Store) AppendTurn(ctx context.Context, turnID, sessionID string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns(turn_id, session_id, created_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(turn_id) DO NOTHING`,
		turnID, sessionID, s.clock().UTC())
	return err
}

// AppendEntry writes one timeline entry.
func (s *Store) AppendEntry(ctx context.Context, e Entry) error {
	if s.db == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries(turn_id, entry_type, sentence_index, detail, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		e.TurnID, e.Type, e.SentenceIndex, e.Detail, e.CreatedAt)
	return err
}

// ListTurnEntries retrieves up to limit entries for a turn ordered by time.
func (s *Store) ListTurnEntries(ctx context.Context, turnID string, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, turn_id, entry_type, sentence_index, detail, created_at
		 FROM entries WHERE turn_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, turnID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.TurnID, &e.Type, &e.SentenceIndex, &e.Detail, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxTurns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM turns WHERE turn_id IN (
			SELECT turn_id FROM turns ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxTurns)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
