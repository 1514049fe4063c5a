package indicator

import "github.com/robobull/trader/internal/domain"

// SMA is a simple moving average of close prices over a fixed window.
type SMA struct {
	name   string
	period int
	window []float64
	sum    float64
	next   int
	filled bool
}

// NewSMA creates a simple moving average with the given period.
func NewSMA(name string, period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{name: name, period: period, window: make([]float64, period)}
}

func (s *SMA) Name() string { return s.name }

// Next pushes one close price through the rolling window.
func (s *SMA) Next(bar domain.Bar) (Output, bool) {
	v, ok := s.push(bar.Close)
	if !ok {
		return nil, false
	}
	return Output{"value": v}, true
}

func (s *SMA) push(value float64) (float64, bool) {
	s.sum += value - s.window[s.next]
	s.window[s.next] = value
	s.next++
	if s.next == s.period {
		s.next = 0
		s.filled = true
	}
	if !s.filled {
		return 0, false
	}
	return s.sum / float64(s.period), true
}

// EMA is an exponential moving average of close prices, seeded with the
// simple average of the first period samples.
type EMA struct {
	name   string
	period int
	mult   float64
	value  float64
	seen   int
	seed   float64
}

// NewEMA creates an exponential moving average with the given period.
func NewEMA(name string, period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{name: name, period: period, mult: 2.0 / float64(period+1)}
}

func (e *EMA) Name() string { return e.name }

// Next pushes one close price through the smoothing.
func (e *EMA) Next(bar domain.Bar) (Output, bool) {
	v, ok := e.push(bar.Close)
	if !ok {
		return nil, false
	}
	return Output{"value": v}, true
}

func (e *EMA) push(value float64) (float64, bool) {
	e.seen++
	if e.seen < e.period {
		e.seed += value
		return 0, false
	}
	if e.seen == e.period {
		e.seed += value
		e.value = e.seed / float64(e.period)
		return e.value, true
	}
	e.value = (value-e.value)*e.mult + e.value
	return e.value, true
}
