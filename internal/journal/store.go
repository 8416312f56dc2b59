// Package journal persists executed trades. The store is append-only:
// records are immutable facts and are never updated or deleted.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// Store is the persistence boundary the trading loop writes through. A
// store failure must never block trading: callers log and continue.
type Store interface {
	Append(ctx context.Context, record types.TradeRecord) error
	List(ctx context.Context, symbol string) ([]types.TradeRecord, error)
	Close() error
}

// SQLiteStore persists trade records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so reporting reads do not block the trading writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol    TEXT NOT NULL,
			side      TEXT NOT NULL,
			qty       REAL NOT NULL,
			price     REAL NOT NULL,
			timestamp INTEGER NOT NULL,
			strategy  TEXT,
			mode      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, timestamp)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

// Append inserts one trade record.
func (s *SQLiteStore) Append(ctx context.Context, record types.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (symbol, side, qty, price, timestamp, strategy, mode)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Symbol, record.Side.String(), record.Qty, record.Price,
		record.Timestamp.UnixMilli(), record.Strategy, string(record.Mode),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// List returns the symbol's trades in execution order. An empty symbol
// returns every trade.
func (s *SQLiteStore) List(ctx context.Context, symbol string) ([]types.TradeRecord, error) {
	query := `SELECT symbol, side, qty, price, timestamp, strategy, mode
	          FROM trades`
	args := []interface{}{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY timestamp, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var records []types.TradeRecord
	for rows.Next() {
		var (
			record types.TradeRecord
			side   string
			mode   string
			ms     int64
		)
		if err := rows.Scan(&record.Symbol, &side, &record.Qty, &record.Price, &ms, &record.Strategy, &mode); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		record.Side = parseSide(side)
		record.Mode = types.TradeMode(mode)
		record.Timestamp = time.UnixMilli(ms)
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseSide(s string) types.Side {
	switch s {
	case "LONG":
		return types.SideLong
	case "SHORT":
		return types.SideShort
	default:
		return types.SideFlat
	}
}
