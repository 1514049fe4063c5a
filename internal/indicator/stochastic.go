package indicator

import "github.com/robobull/trader/internal/domain"

// Stochastic is the stochastic oscillator: %K positions the close within
// the high/low range of the lookback window, %D smooths %K.
type Stochastic struct {
	name   string
	period int
	highs  []float64
	lows   []float64
	next   int
	filled bool
	d      *SMA
}

// NewStochastic creates a stochastic oscillator with the given lookback
// and %D smoothing period.
func NewStochastic(name string, period, signalPeriod int) *Stochastic {
	if period < 1 {
		period = 1
	}
	if signalPeriod < 1 {
		signalPeriod = 3
	}
	return &Stochastic{
		name:   name,
		period: period,
		highs:  make([]float64, period),
		lows:   make([]float64, period),
		d:      NewSMA(name+".d", signalPeriod),
	}
}

func (s *Stochastic) Name() string { return s.name }

// Next pushes one bar's high/low/close through the lookback window.
func (s *Stochastic) Next(bar domain.Bar) (Output, bool) {
	s.highs[s.next] = bar.High
	s.lows[s.next] = bar.Low
	s.next++
	if s.next == s.period {
		s.next = 0
		s.filled = true
	}
	if !s.filled {
		return nil, false
	}

	hi, lo := s.highs[0], s.lows[0]
	for i := 1; i < s.period; i++ {
		if s.highs[i] > hi {
			hi = s.highs[i]
		}
		if s.lows[i] < lo {
			lo = s.lows[i]
		}
	}

	k := 50.0
	if hi != lo {
		k = (bar.Close - lo) / (hi - lo) * 100
	}

	out := Output{"value": k, "k": k}
	if d, ok := s.d.push(k); ok {
		out["d"] = d
	}
	return out, true
}
