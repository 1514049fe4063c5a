package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is the unit of lifetime for one portfolio and its order stream.
// The halt-trading flag transitions false→true exactly once; there is
// deliberately no way to clear it.
type Session struct {
	ID         string
	IsBacktest bool
	StartedAt  time.Time

	halted atomic.Bool
}

// NewSession creates a session with a fresh id.
func NewSession(isBacktest bool) *Session {
	return &Session{
		ID:         uuid.NewString(),
		IsBacktest: isBacktest,
		StartedAt:  time.Now().UTC(),
	}
}

// Halt marks the session as halted. Terminal: no buy decision is made
// after the flag is observed.
func (s *Session) Halt() {
	s.halted.Store(true)
}

// Halted reports whether trading has been halted for this session.
func (s *Session) Halted() bool {
	return s.halted.Load()
}
