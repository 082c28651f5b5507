package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vaanilabs/vaani-core/internal/config"
)

// Utterance is one recorded speak request and its outcome.
type Utterance struct {
	ID        string
	SessionID string
	Provider  string
	Chunks    int
	Bytes     int
	LatencyMS int64
	Outcome   string
	Error     string
	CreatedAt time.Time
}

// Outcomes recorded per utterance.
const (
	OutcomeCompleted = "completed"
	OutcomeFallback  = "fallback"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Store keeps a SQLite-backed log of synthesis requests for the admin
// dashboards. Disabled stores accept writes and drop them.
type Store struct {
	db    *sql.DB
	cfg   config.AuditConfig
	log   *slog.Logger
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.AuditConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
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
			log.Warn("audit store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("audit store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS utterances (
    id TEXT PRIMARY KEY,
    session_id TEXT,
    provider TEXT,
    chunks INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    error TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utterances_created ON utterances(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one utterance row. A disabled store is a no-op.
func (s *Store) Record(ctx context.Context, u Utterance) error {
	if s.db == nil {
		return nil
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO utterances (id, session_id, provider, chunks, bytes, latency_ms, outcome, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.SessionID, u.Provider, u.Chunks, u.Bytes, u.LatencyMS, u.Outcome, u.Error, created)
	if err != nil {
		return fmt.Errorf("record utterance: %w", err)
	}
	return nil
}

// ListRecent returns up to limit utterances, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Utterance, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, provider, chunks, bytes, latency_ms, outcome, COALESCE(error, ''), created_at
FROM utterances ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list utterances: %w", err)
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		if err := rows.Scan(&u.ID, &u.SessionID, &u.Provider, &u.Chunks, &u.Bytes, &u.LatencyMS, &u.Outcome, &u.Error, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Prune enforces the day- and row-count retention limits.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM utterances WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("prune by age: %w", err)
		}
	}
	if s.cfg.MaxUtterances > 0 {
		_, err := s.db.ExecContext(ctx, `
DELETE FROM utterances WHERE id NOT IN (
    SELECT id FROM utterances ORDER BY created_at DESC LIMIT ?
)`, s.cfg.MaxUtterances)
		if err != nil {
			return fmt.Errorf("prune by count: %w", err)
		}
	}
	return nil
}
