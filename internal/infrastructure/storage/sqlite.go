package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

// SQLiteStore persists the ledger snapshot document in a single-row table
// and mirrors closed positions into relational rows so cmd/export and ad-hoc
// queries can read them without decoding the document.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ledger_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			doc TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS closed_positions (
			id TEXT PRIMARY KEY,
			pair TEXT NOT NULL,
			entry_time DATETIME NOT NULL,
			exit_time DATETIME NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			volume REAL NOT NULL,
			profit_usd REAL NOT NULL,
			profit_pct REAL NOT NULL,
			exit_reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_closed_positions_pair ON closed_positions(pair);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_state (id, doc, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc=excluded.doc, updated_at=excluded.updated_at`,
		string(doc), snap.Timestamp)
	if err != nil {
		return err
	}

	// Closed history is append-only; the uuid key makes re-inserts idempotent.
	for _, pos := range snap.Closed {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO closed_positions
			 (id, pair, entry_time, exit_time, entry_price, exit_price, volume, profit_usd, profit_pct, exit_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos.ID, pos.Pair, pos.EntryTime, pos.ExitTime, pos.EntryPrice, pos.ExitPrice,
			pos.Volume, pos.CurrentProfit, pos.ProfitPct, pos.ExitReason)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM ledger_state WHERE id = 1`).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
