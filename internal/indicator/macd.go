package indicator

import "github.com/robobull/trader/internal/domain"

// MACD is moving average convergence/divergence: the spread between a fast
// and a slow EMA of close prices, with a signal EMA over that spread.
type MACD struct {
	name   string
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD with the given fast/slow/signal periods.
func NewMACD(name string, fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		name:   name,
		fast:   NewEMA(name+".fast", fastPeriod),
		slow:   NewEMA(name+".slow", slowPeriod),
		signal: NewEMA(name+".signal", signalPeriod),
	}
}

func (m *MACD) Name() string { return m.name }

// Next advances both EMAs and the signal line by one close price. Warm
// once the slow EMA and the signal line both have enough samples.
func (m *MACD) Next(bar domain.Bar) (Output, bool) {
	fast, fastOK := m.fast.push(bar.Close)
	slow, slowOK := m.slow.push(bar.Close)
	if !fastOK || !slowOK {
		return nil, false
	}

	macd := fast - slow
	signal, sigOK := m.signal.push(macd)
	if !sigOK {
		return nil, false
	}

	return Output{
		"value":     macd,
		"MACD":      macd,
		"signal":    signal,
		"histogram": macd - signal,
	}, true
}
