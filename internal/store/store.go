package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// schema is applied on startup; every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS till_sales (
	event_id   TEXT PRIMARY KEY,
	till_id    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	total      NUMERIC(12, 4) NOT NULL,
	cash_paid  NUMERIC(12, 4) NOT NULL,
	change_due NUMERIC(12, 4) NOT NULL,
	settled_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_till_sales_till_settled ON till_sales (till_id, settled_at);

CREATE TABLE IF NOT EXISTS till_sale_lines (
	event_id   TEXT NOT NULL REFERENCES till_sales (event_id) ON DELETE CASCADE,
	product_id BIGINT NOT NULL,
	name       TEXT NOT NULL,
	unit_price NUMERIC(12, 4) NOT NULL,
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	PRIMARY KEY (event_id, product_id)
);

CREATE TABLE IF NOT EXISTS till_resets (
	event_id       TEXT PRIMARY KEY,
	till_id        TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	reset_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate creates the journal tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
