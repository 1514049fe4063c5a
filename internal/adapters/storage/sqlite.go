// Package storage persists sessions, orders and run results in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/robobull/trader/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	is_backtest INTEGER NOT NULL DEFAULT 0,
	halted      INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	qty             REAL NOT NULL,
	price           REAL NOT NULL,
	amount          REAL NOT NULL,
	balance_at_buy  REAL NOT NULL DEFAULT 0,
	balance_at_sell REAL NOT NULL DEFAULT 0,
	roi             REAL NOT NULL DEFAULT 0,
	client_order_id TEXT NOT NULL DEFAULT '',
	processed       INTEGER NOT NULL DEFAULT 0,
	cancelled       INTEGER NOT NULL DEFAULT 0,
	date_time       DATETIME NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	start_value REAL NOT NULL,
	end_value   REAL NOT NULL,
	roi         REAL NOT NULL,
	start_date  DATETIME NOT NULL,
	end_date    DATETIME NOT NULL,
	is_backtest INTEGER NOT NULL DEFAULT 0,
	order_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_orders_session ON orders(session_id, processed);
CREATE INDEX IF NOT EXISTS idx_results_session ON results(session_id);
`

// SQLiteStorage implements ports.Storage on a local SQLite database using
// the pure Go driver (no CGo).
type SQLiteStorage struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStorage opens (or creates) the database at path and applies
// the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}

	// SQLite admits a single writer; funnel everything through one
	// connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) CreateSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, is_backtest, halted, started_at) VALUES (?, ?, ?, ?)`,
		session.ID, boolToInt(session.IsBacktest), boolToInt(session.Halted()), session.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.CreateSession: insert %s: %w", session.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) SessionHalted(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var halted int
	err := s.db.QueryRowContext(ctx,
		`SELECT halted FROM sessions WHERE id = ?`, sessionID,
	).Scan(&halted)
	if err != nil {
		return false, fmt.Errorf("storage.SessionHalted: query %s: %w", sessionID, err)
	}
	return halted != 0, nil
}

func (s *SQLiteStorage) KillSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET halted = 1 WHERE id = ?`, sessionID,
	)
	if err != nil {
		return fmt.Errorf("storage.KillSession: update %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("storage.KillSession: session %s not found", sessionID)
	}
	return nil
}

func (s *SQLiteStorage) CreateOrder(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (
			id, session_id, symbol, side, qty, price, amount,
			balance_at_buy, balance_at_sell, roi, client_order_id,
			processed, cancelled, date_time, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.SessionID, order.Symbol, string(order.Side),
		order.Qty, order.Price, order.Amount,
		order.BalanceAtBuy, order.BalanceAtSell, order.ROI, order.ClientOrderID,
		boolToInt(order.Processed), boolToInt(order.Cancelled),
		order.DateTime.UTC(), order.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.CreateOrder: insert %s: %w", order.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateOrder(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET
			qty = ?, price = ?, amount = ?,
			balance_at_buy = ?, balance_at_sell = ?, roi = ?,
			client_order_id = ?, processed = ?, cancelled = ?
		WHERE id = ?`,
		order.Qty, order.Price, order.Amount,
		order.BalanceAtBuy, order.BalanceAtSell, order.ROI,
		order.ClientOrderID, boolToInt(order.Processed), boolToInt(order.Cancelled),
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateOrder: update %s: %w", order.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("storage.UpdateOrder: order %s not found", order.ID)
	}
	return nil
}

func (s *SQLiteStorage) UnprocessedOrders(ctx context.Context, sessionID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, symbol, side, qty, price, amount,
			balance_at_buy, balance_at_sell, roi, client_order_id,
			processed, cancelled, date_time, created_at
		FROM orders
		WHERE session_id = ? AND processed = 0 AND cancelled = 0
		ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.UnprocessedOrders: query %s: %w", sessionID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o                    domain.Order
			side                 string
			processed, cancelled int
			dateTime, createdAt  time.Time
		)
		if err := rows.Scan(
			&o.ID, &o.SessionID, &o.Symbol, &side, &o.Qty, &o.Price, &o.Amount,
			&o.BalanceAtBuy, &o.BalanceAtSell, &o.ROI, &o.ClientOrderID,
			&processed, &cancelled, &dateTime, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage.UnprocessedOrders: scan: %w", err)
		}
		o.Side = domain.Side(side)
		o.Processed = processed != 0
		o.Cancelled = cancelled != 0
		o.DateTime = dateTime
		o.CreatedAt = createdAt
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.UnprocessedOrders: rows: %w", err)
	}
	return orders, nil
}

func (s *SQLiteStorage) CreateResult(ctx context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (
			session_id, start_value, end_value, roi,
			start_date, end_date, is_backtest, order_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.SessionID, result.StartValue, result.EndValue, result.ROI,
		result.StartDate.UTC(), result.EndDate.UTC(),
		boolToInt(result.IsBacktest), result.OrderCount,
	)
	if err != nil {
		return fmt.Errorf("storage.CreateResult: insert %s: %w", result.SessionID, err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
