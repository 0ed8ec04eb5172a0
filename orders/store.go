package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed order audit trail.
type Store struct {
	db *sql.DB
}

func OpenStore(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    alerts TEXT NOT NULL,
    table_name TEXT,
    seat TEXT,
    resident TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Submit(ctx context.Context, draft Draft) error {
	alerts, err := json.Marshal(draft.Alerts)
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO orders (id, text, alerts, table_name, seat, resident, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		draft.ID, draft.Text, string(alerts),
		draft.Table, draft.Seat, draft.Resident, draft.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Recent returns up to limit orders, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, text, alerts, table_name, seat, resident, created_at
FROM orders ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		var d Draft
		var alerts string
		var createdAt time.Time
		if err := rows.Scan(&d.ID, &d.Text, &alerts, &d.Table, &d.Seat, &d.Resident, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if err := json.Unmarshal([]byte(alerts), &d.Alerts); err != nil {
			return nil, fmt.Errorf("decode alerts: %w", err)
		}
		d.CreatedAt = createdAt
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
