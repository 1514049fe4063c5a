// Package stocks holds the per-symbol trading state: rolling price series,
// live indicator instances, pending signals and the last order side.
package stocks

import (
	"sync"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/indicator"
)

// State is everything tracked for one symbol. The five series are
// append-only and mutated only by bar ingestion, which keeps them equal
// length. Callers serialize access per symbol via Lock/Unlock.
type State struct {
	Symbol        string
	LastOrderSide domain.Side
	Signals       []domain.Signal
	Price         float64

	Open   []float64
	Close  []float64
	High   []float64
	Low    []float64
	Volume []float64

	// Indicators maps algo name to that algo's live instances, one per
	// configured period spec, in config order.
	Indicators map[string][]indicator.Streaming

	mu sync.Mutex
}

// Lock serializes the decision pipeline for this symbol.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the per-symbol lock.
func (s *State) Unlock() { s.mu.Unlock() }

// Append records one bar into every series and refreshes the last price.
func (s *State) Append(bar domain.Bar) {
	s.Open = append(s.Open, bar.Open)
	s.Close = append(s.Close, bar.Close)
	s.High = append(s.High, bar.High)
	s.Low = append(s.Low, bar.Low)
	s.Volume = append(s.Volume, bar.Volume)
	s.Price = bar.Close
}

// SampleCount returns how many bars have been ingested.
func (s *State) SampleCount() int {
	return len(s.Close)
}

// HasEnoughSamples reports whether all four price series are longer than
// the given count, the precondition for the standard-pattern pass.
func (s *State) HasEnoughSamples(count int) bool {
	return len(s.Open) > count && len(s.Close) > count &&
		len(s.High) > count && len(s.Low) > count
}

// AddSignal attaches a signal and refreshes the last seen price.
func (s *State) AddSignal(sig domain.Signal, price float64) {
	s.Price = price
	s.Signals = append(s.Signals, sig)
}

// ClearSignals drops all pending signals.
func (s *State) ClearSignals() {
	s.Signals = s.Signals[:0]
}

// Store is the set of symbol states for one session. It is safe for
// concurrent lookups; per-symbol mutation goes through State locking.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewStore creates an empty symbol-state store.
func NewStore() *Store {
	return &Store{states: make(map[string]*State)}
}

// Get returns the state for a symbol, or nil if never seen.
func (s *Store) Get(symbol string) *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[symbol]
}

// Ensure returns the state for a symbol, creating it with the given last
// order side if missing. New symbols start as if just sold so the first
// fired signal may be a buy.
func (s *Store) Ensure(symbol string, lastOrder domain.Side) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[symbol]; ok {
		return st
	}
	st := &State{
		Symbol:        symbol,
		LastOrderSide: lastOrder,
		Indicators:    make(map[string][]indicator.Streaming),
	}
	s.states[symbol] = st
	return st
}

// Symbols returns every tracked symbol.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.states))
	for sym := range s.states {
		out = append(out, sym)
	}
	return out
}

// Len returns the number of tracked symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// PriceOf returns the last seen price for a symbol, zero if unknown.
func (s *Store) PriceOf(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[symbol]; ok {
		return st.Price
	}
	return 0
}
