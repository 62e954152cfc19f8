// Package store encapsulates the PostgreSQL connection pool, schema bootstrap,
// and the shop repositories.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"tg_storefront_bot/internal/config"
)

// sqlOpen is overridable for tests.
var sqlOpen = sql.Open

const schema = `
CREATE TABLE IF NOT EXISTS users (
  user_id BIGINT PRIMARY KEY,
  username TEXT,
  role TEXT DEFAULT 'user',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS categories (
  idx TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS products (
  idx TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  body TEXT,
  image TEXT,
  price INTEGER NOT NULL,
  tag TEXT REFERENCES categories(idx),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS cart (
  user_id BIGINT NOT NULL REFERENCES users(user_id),
  product_id TEXT NOT NULL REFERENCES products(idx),
  quantity INTEGER NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (user_id, product_id)
);
CREATE TABLE IF NOT EXISTS orders (
  order_id SERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(user_id),
  status TEXT NOT NULL DEFAULT 'pending',
  shipping_address TEXT,
  total_amount INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS order_items (
  order_id INTEGER NOT NULL REFERENCES orders(order_id),
  product_id TEXT NOT NULL REFERENCES products(idx),
  quantity INTEGER NOT NULL,
  price INTEGER NOT NULL,
  PRIMARY KEY (order_id, product_id)
);
CREATE TABLE IF NOT EXISTS questions (
  question_id SERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL,
  text TEXT NOT NULL,
  answer TEXT,
  answered BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_products_tag ON products(tag);
CREATE INDEX IF NOT EXISTS idx_cart_user_id ON cart(user_id);
CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
`

// Manager owns the PostgreSQL connection pool.
type Manager struct {
	db *sql.DB
}

// NewManager opens the connection pool for the configured DATABASE_URL and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	db, err := sqlOpen("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Manager{db: db}, nil
}

// DB returns the underlying pool handle.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// EnsureSchema creates the shop tables and indexes if they do not exist.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Ping verifies the database is reachable with a trivial query. Used both at
// startup and by the health endpoint as the runtime reachability probe.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	var one int
	if err := m.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("select 1: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}

	return m.db.Close()
}
