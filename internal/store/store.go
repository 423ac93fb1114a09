// Package store implements the Persistent Bar Store: a single embedded
// SQLite database holding symbols, daily price bars, and the sync cursor,
// adapted from the originating codebase's internal/database connection
// discipline (WAL journal mode, pooled *sql.DB, busy_timeout) but narrowed
// to one profile and one schema, since this store has none of the
// ledger/cache split the original multi-database trader needed.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/YOUSOYOUSO/zsxq-market-data/internal/domain"
)

// Store wraps the pooled SQLite connection and the bar store's read/write API.
type Store struct {
	conn *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS symbols (
	stock_code TEXT PRIMARY KEY,
	stock_name TEXT NOT NULL DEFAULT '',
	market TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	synced_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS daily_prices (
	stock_code TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	adjust TEXT NOT NULL,
	open REAL NOT NULL DEFAULT 0,
	close REAL NOT NULL DEFAULT 0,
	high REAL NOT NULL DEFAULT 0,
	low REAL NOT NULL DEFAULT 0,
	volume REAL NOT NULL DEFAULT 0,
	change_pct REAL,
	source TEXT NOT NULL DEFAULT '',
	is_final INTEGER NOT NULL DEFAULT 0,
	fetched_at TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (stock_code, trade_date, adjust)
);

CREATE INDEX IF NOT EXISTS idx_daily_prices_trade_date ON daily_prices(trade_date);
CREATE INDEX IF NOT EXISTS idx_daily_prices_code_date ON daily_prices(stock_code, trade_date);
CREATE INDEX IF NOT EXISTS idx_daily_prices_final_date ON daily_prices(is_final, trade_date);

CREATE TABLE IF NOT EXISTS sync_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_symbols_sync_at TEXT NOT NULL DEFAULT '',
	last_incremental_sync_at TEXT NOT NULL DEFAULT '',
	last_backfill_sync_at TEXT NOT NULL DEFAULT '',
	last_finalized_trade_date TEXT NOT NULL DEFAULT '',
	bootstrap_cursor_symbol TEXT NOT NULL DEFAULT '',
	bootstrap_status TEXT NOT NULL DEFAULT 'idle',
	last_error TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT ''
);
`

// Open creates (or attaches to) the database file at path, applies WAL/
// busy_timeout PRAGMAs, and migrates the schema. Mirrors the originating
// codebase's New+Migrate pair but collapsed into a single call since this
// store has exactly one schema.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if dir := filepath.Dir(absPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	connStr := absPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(30000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=cache_size(-64000)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", absPath, err)
	}
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db %s: %w", absPath, err)
	}

	s := &Store{conn: conn, path: absPath}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	_, err := s.conn.ExecContext(ctx, `INSERT OR IGNORE INTO sync_state (id, bootstrap_status) VALUES (1, ?)`, string(domain.BootstrapIdle))
	if err != nil {
		return fmt.Errorf("seed sync_state: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the absolute database file path.
func (s *Store) Path() string {
	return s.path
}

// HealthCheck runs PRAGMA integrity_check, matching the originating
// codebase's database health-check contract.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var result string
	if err := s.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint, matching the originating codebase's
// maintenance primitive for preventing WAL bloat.
func (s *Store) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	if _, err := s.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	return nil
}

// Stats mirrors the originating codebase's database statistics snapshot.
type Stats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	PageSize      int64
	FreelistCount int64
}

// GetStats retrieves file-size and page-level statistics.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	if info, err := os.Stat(s.path + "-wal"); err == nil {
		stats.WALSizeBytes = info.Size()
	}
	if err := s.conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("page_count: %w", err)
	}
	if err := s.conn.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("page_size: %w", err)
	}
	if err := s.conn.QueryRow("PRAGMA freelist_count").Scan(&stats.FreelistCount); err != nil {
		return nil, fmt.Errorf("freelist_count: %w", err)
	}
	return stats, nil
}
