package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"noiseband/internal/market"
)

// Manifest summarizes one symbol@interval cache file.
type Manifest struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Store caches fetched bars locally, one sqlite file per symbol@interval.
// Re-fetching a range overwrites on the bar timestamp, so the cache stays
// duplicate-free.
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(symbol, interval string) (*sql.DB, string, error) {
	if symbol == "" || interval == "" {
		return nil, "", fmt.Errorf("symbol/interval cannot be empty")
	}
	key := strings.ToUpper(symbol) + "@" + strings.ToLower(interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok && db != nil {
		return db, s.dbPath(symbol, interval), nil
	}
	path := s.dbPath(symbol, interval)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, symbol, interval); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(symbol, interval string) string {
	// Index tickers carry a leading ^ that has no place in a filename.
	name := strings.TrimPrefix(strings.ToUpper(symbol), "^")
	return filepath.Join(s.root, name, strings.ToLower(interval)+".db")
}

func ensureSchema(db *sql.DB, symbol, interval string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			ts    INTEGER PRIMARY KEY,
			open  REAL NOT NULL,
			high  REAL NOT NULL,
			low   REAL NOT NULL,
			close REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			min_time INTEGER,
			max_time INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, symbol, interval) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET symbol=excluded.symbol, interval=excluded.interval;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, strings.ToUpper(symbol), strings.ToLower(interval))
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertBars upserts bars keyed on their timestamp.
func (s *Store) InsertBars(ctx context.Context, symbol, interval string, bars []market.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	db, _, err := s.db(symbol, interval)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (ts, open, high, low, close)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Time.Unix(), b.Open, b.High, b.Low, b.Close); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, s.refreshManifest(ctx, db)
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().Unix()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(ts), 0) FROM bars),
		    max_time = (SELECT COALESCE(MAX(ts), 0) FROM bars),
		    rows = (SELECT COUNT(1) FROM bars),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

// Manifest returns the cache summary for one symbol@interval.
func (s *Store) Manifest(ctx context.Context, symbol, interval string) (Manifest, error) {
	db, path, err := s.db(symbol, interval)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT symbol, interval, min_time, max_time, rows, last_sync_at FROM manifest WHERE id=1`)
	var m Manifest
	var minT, maxT, lastSync sql.NullInt64
	if err := row.Scan(&m.Symbol, &m.Interval, &minT, &maxT, &m.Rows, &lastSync); err != nil {
		return Manifest{}, err
	}
	m.MinTime, m.MaxTime, m.LastSyncAt = minT.Int64, maxT.Int64, lastSync.Int64
	m.Path = path
	return m, nil
}

// ListAllBars returns every cached bar in timestamp order.
func (s *Store) ListAllBars(ctx context.Context, symbol, interval string) ([]market.Bar, error) {
	db, _, err := s.db(symbol, interval)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT ts, open, high, low, close FROM bars ORDER BY ts ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBars(rows)
}

// RangeBars returns cached bars with start <= ts <= end, ascending.
func (s *Store) RangeBars(ctx context.Context, symbol, interval string, start, end int64) ([]market.Bar, error) {
	if end < start {
		start, end = end, start
	}
	db, _, err := s.db(symbol, interval)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT ts, open, high, low, close FROM bars
		WHERE ts BETWEEN ? AND ? ORDER BY ts ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]market.Bar, error) {
	var list []market.Bar
	for rows.Next() {
		var ts int64
		var b market.Bar
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, err
		}
		b.Time = time.Unix(ts, 0).UTC()
		list = append(list, b)
	}
	return list, rows.Err()
}
