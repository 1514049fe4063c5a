package indicator

import "github.com/robobull/trader/internal/domain"

// RSI is the relative strength index over close prices with Wilder
// smoothing. Values range 0..100.
type RSI struct {
	name    string
	period  int
	prev    float64
	hasPrev bool
	seen    int
	avgGain float64
	avgLoss float64
}

// NewRSI creates a relative strength index with the given period.
func NewRSI(name string, period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{name: name, period: period}
}

func (r *RSI) Name() string { return r.name }

// Next pushes one close price through the gain/loss smoothing.
func (r *RSI) Next(bar domain.Bar) (Output, bool) {
	close := bar.Close
	if !r.hasPrev {
		r.prev = close
		r.hasPrev = true
		return nil, false
	}

	change := close - r.prev
	r.prev = close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	r.seen++
	if r.seen < r.period {
		r.avgGain += gain
		r.avgLoss += loss
		return nil, false
	}
	if r.seen == r.period {
		r.avgGain = (r.avgGain + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss + loss) / float64(r.period)
	} else {
		n := float64(r.period)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}

	if r.avgLoss == 0 {
		return Output{"value": 100}, true
	}
	rs := r.avgGain / r.avgLoss
	return Output{"value": 100 - 100/(1+rs)}, true
}
