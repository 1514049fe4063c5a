package ports

import (
	"context"

	"github.com/robobull/trader/internal/domain"
)

// Storage persists sessions, orders and results. Everything is keyed by
// session id; the core does not depend on the storage format.
type Storage interface {
	// CreateSession records a new session row.
	CreateSession(ctx context.Context, session *domain.Session) error

	// SessionHalted reports whether the session has been halted externally
	// (e.g. killed from the dashboard).
	SessionHalted(ctx context.Context, sessionID string) (bool, error)

	// KillSession marks the session halted.
	KillSession(ctx context.Context, sessionID string) error

	// CreateOrder appends an order row.
	CreateOrder(ctx context.Context, order domain.Order) error

	// UpdateOrder rewrites the mutable fields of an order by id.
	UpdateOrder(ctx context.Context, order domain.Order) error

	// UnprocessedOrders returns the session's orders still waiting for
	// broker submission, oldest first.
	UnprocessedOrders(ctx context.Context, sessionID string) ([]domain.Order, error)

	// CreateResult appends a run result.
	CreateResult(ctx context.Context, result domain.Result) error

	// Close releases the underlying store.
	Close() error
}
