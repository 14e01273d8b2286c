// Package audit keeps a SQLite log of tool invocations. Only metadata is
// stored; arguments and results never leave the request.
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

	"toolhost/internal/domain"
	"toolhost/internal/tool"
)

const (
	maxMessageLen = 500
	writeTimeout  = 5 * time.Second
)

// Entry is one recorded invocation.
type Entry struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Provider   string    `json:"provider"`
	Tool       string    `json:"tool"`
	Outcome    string    `json:"outcome"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToolStats aggregates invocations of one tool.
type ToolStats struct {
	Provider string  `json:"provider"`
	Tool     string  `json:"tool"`
	Calls    int64   `json:"calls"`
	Failures int64   `json:"failures"`
	AvgMS    float64 `json:"avg_ms"`
}

// Store implements tool.Observer on top of SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create audit directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open audit database: %w", err)
	}
	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// ObserveInvocation records inv. Failures are logged, never returned, so a
// broken audit log cannot fail a request.
func (s *Store) ObserveInvocation(ctx context.Context, inv tool.Invocation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	var kind, msg string
	if inv.Err != nil {
		kind = string(inv.Err.Kind)
		msg = truncate(inv.Err.Message, maxMessageLen)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations (request_id, provider, tool, outcome, error_kind, message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		domain.RequestID(ctx), inv.Provider, inv.Tool, inv.Outcome(), kind, msg,
		inv.Duration.Milliseconds(), time.Now().UTC(),
	)
	if err != nil {
		s.logger.Warn("audit write failed", "provider", inv.Provider, "tool", inv.Tool, "err", err)
	}
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, provider, tool, outcome, error_kind, message, duration_ms, created_at
		 FROM invocations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Provider, &e.Tool, &e.Outcome,
			&e.ErrorKind, &e.Message, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats aggregates the log per tool, busiest first.
func (s *Store) Stats(ctx context.Context) ([]ToolStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, tool, COUNT(*),
		        SUM(CASE WHEN outcome != 'ok' THEN 1 ELSE 0 END),
		        AVG(duration_ms)
		 FROM invocations GROUP BY provider, tool ORDER BY COUNT(*) DESC, provider, tool`)
	if err != nil {
		return nil, fmt.Errorf("query audit stats: %w", err)
	}
	defer rows.Close()

	var stats []ToolStats
	for rows.Next() {
		var st ToolStats
		if err := rows.Scan(&st.Provider, &st.Tool, &st.Calls, &st.Failures, &st.AvgMS); err != nil {
			return nil, fmt.Errorf("scan audit stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Prune deletes entries older than age and returns how many were removed.
func (s *Store) Prune(ctx context.Context, age time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invocations WHERE created_at < ?`, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var _ tool.Observer = (*Store)(nil)
