package services

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3"
)

// Tick is one raw price observation from the market-data feed
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// TickStore keeps a local SQLite archive of raw feed ticks for diagnostics
// and backfill
type TickStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewTickStore opens (creating if needed) the tick archive at path
func NewTickStore(path string) (*TickStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create tick store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tick store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping tick store: %w", err)
	}

	store := &TickStore{db: db}
	if err := store.createTable(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *TickStore) createTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			price TEXT NOT NULL,
			volume TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, timestamp);
	`)
	return err
}

// Append records one tick
func (s *TickStore) Append(tick Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO ticks (symbol, price, volume, timestamp) VALUES (?, ?, ?, ?)`,
		tick.Symbol, tick.Price.String(), tick.Volume.String(), tick.Timestamp.UTC(),
	)
	return err
}

// Recent returns up to limit ticks for a symbol, newest first
func (s *TickStore) Recent(symbol string, limit int) ([]Tick, error) {
	rows, err := s.db.Query(
		`SELECT symbol, price, volume, timestamp FROM ticks WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var tick Tick
		var price, volume string
		if err := rows.Scan(&tick.Symbol, &price, &volume, &tick.Timestamp); err != nil {
			return nil, err
		}
		if tick.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if tick.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}

// PruneOlderThan deletes ticks older than cutoff, returning how many were
// removed
func (s *TickStore) PruneOlderThan(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.Exec(`DELETE FROM ticks WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the underlying database
func (s *TickStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
