// Package indicator provides streaming technical indicators over bar data.
//
// Every indicator advances by exactly one step per bar via Next; nothing is
// recomputed from scratch. Next reports ok=false until the indicator has
// accumulated enough samples to be meaningful.
package indicator

import (
	"fmt"

	"github.com/robobull/trader/internal/domain"
)

// Output is one step's worth of indicator values, keyed by field name.
// Single-valued indicators expose the key "value"; multi-valued ones add
// their own fields (e.g. MACD's "signal" and "histogram").
type Output map[string]float64

// Field resolves a named output value. This is the single lookup point for
// condition evaluation; unknown fields report ok=false.
func (o Output) Field(name string) (float64, bool) {
	v, ok := o[name]
	return v, ok
}

// Value returns the indicator's primary value.
func (o Output) Value() float64 {
	return o["value"]
}

// Streaming is a technical indicator fed one bar at a time.
type Streaming interface {
	// Name returns the configured instance name (e.g. "rsi14", "emaFast").
	Name() string

	// Next advances the computation by one bar. ok is false while the
	// indicator is still warming up.
	Next(bar domain.Bar) (Output, bool)
}

// Params configures a single indicator instance.
type Params struct {
	Name         string
	Kind         string // SMA | EMA | RSI | MACD | BollingerBands | Stochastic
	Period       int
	StdDev       float64
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// New builds an indicator instance from its parameters.
func New(p Params) (Streaming, error) {
	switch p.Kind {
	case "SMA":
		return NewSMA(p.Name, p.Period), nil
	case "EMA":
		return NewEMA(p.Name, p.Period), nil
	case "RSI":
		return NewRSI(p.Name, p.Period), nil
	case "MACD":
		return NewMACD(p.Name, p.FastPeriod, p.SlowPeriod, p.SignalPeriod), nil
	case "BollingerBands":
		return NewBollinger(p.Name, p.Period, p.StdDev), nil
	case "Stochastic":
		return NewStochastic(p.Name, p.Period, p.SignalPeriod), nil
	default:
		return nil, fmt.Errorf("indicator.New: unknown kind %q", p.Kind)
	}
}
