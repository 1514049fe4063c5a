package indicator

import (
	"math"

	"github.com/robobull/trader/internal/domain"
)

// Bollinger computes Bollinger Bands: a middle SMA with upper/lower bands
// a configured number of standard deviations away. Variance is maintained
// with rolling sums, so each step is O(1).
type Bollinger struct {
	name   string
	period int
	stdDev float64
	window []float64
	sum    float64
	sumSq  float64
	next   int
	filled bool
}

// NewBollinger creates Bollinger Bands with the given period and width.
func NewBollinger(name string, period int, stdDev float64) *Bollinger {
	if period < 1 {
		period = 1
	}
	if stdDev <= 0 {
		stdDev = 2
	}
	return &Bollinger{name: name, period: period, stdDev: stdDev, window: make([]float64, period)}
}

func (b *Bollinger) Name() string { return b.name }

// Next pushes one close price through the rolling window.
func (b *Bollinger) Next(bar domain.Bar) (Output, bool) {
	old := b.window[b.next]
	v := bar.Close
	b.sum += v - old
	b.sumSq += v*v - old*old
	b.window[b.next] = v
	b.next++
	if b.next == b.period {
		b.next = 0
		b.filled = true
	}
	if !b.filled {
		return nil, false
	}

	n := float64(b.period)
	mean := b.sum / n
	variance := b.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	sd := math.Sqrt(variance)

	upper := mean + b.stdDev*sd
	lower := mean - b.stdDev*sd
	pb := 0.0
	if upper != lower {
		pb = (v - lower) / (upper - lower)
	}

	return Output{
		"value":  mean,
		"middle": mean,
		"upper":  upper,
		"lower":  lower,
		"pb":     pb,
	}, true
}
