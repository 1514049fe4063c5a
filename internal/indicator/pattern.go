package indicator

// Candlestick pattern checks over the tail of the four price series. These
// back the standard-pattern pass that runs independently of the configured
// indicator set once a symbol has enough samples.

// Bullish reports whether the most recent candles form a bullish pattern:
// a bullish engulfing, a hammer, or three advancing closes.
func Bullish(open, high, low, close []float64) bool {
	n := len(close)
	if n < 2 || len(open) < n || len(high) < n || len(low) < n {
		return false
	}

	// bullish engulfing: a down candle swallowed by the next up candle
	prevDown := close[n-2] < open[n-2]
	currUp := close[n-1] > open[n-1]
	if prevDown && currUp && open[n-1] <= close[n-2] && close[n-1] >= open[n-2] {
		return true
	}

	// hammer: long lower wick, small body near the top of the range
	body := abs(close[n-1] - open[n-1])
	lowerWick := min(open[n-1], close[n-1]) - low[n-1]
	upperWick := high[n-1] - max(open[n-1], close[n-1])
	if body > 0 && lowerWick >= 2*body && upperWick <= body {
		return true
	}

	// three white soldiers: three consecutive rising up candles
	if n >= 3 {
		soldiers := true
		for i := n - 3; i < n; i++ {
			if close[i] <= open[i] || (i > n-3 && close[i] <= close[i-1]) {
				soldiers = false
				break
			}
		}
		if soldiers {
			return true
		}
	}

	return false
}

// Bearish reports whether the most recent candles form a bearish pattern:
// a bearish engulfing, a shooting star, or three declining closes.
func Bearish(open, high, low, close []float64) bool {
	n := len(close)
	if n < 2 || len(open) < n || len(high) < n || len(low) < n {
		return false
	}

	// bearish engulfing: an up candle swallowed by the next down candle
	prevUp := close[n-2] > open[n-2]
	currDown := close[n-1] < open[n-1]
	if prevUp && currDown && open[n-1] >= close[n-2] && close[n-1] <= open[n-2] {
		return true
	}

	// shooting star: long upper wick, small body near the bottom
	body := abs(close[n-1] - open[n-1])
	upperWick := high[n-1] - max(open[n-1], close[n-1])
	lowerWick := min(open[n-1], close[n-1]) - low[n-1]
	if body > 0 && upperWick >= 2*body && lowerWick <= body {
		return true
	}

	// three black crows: three consecutive falling down candles
	if n >= 3 {
		crows := true
		for i := n - 3; i < n; i++ {
			if close[i] >= open[i] || (i > n-3 && close[i] >= close[i-1]) {
				crows = false
				break
			}
		}
		if crows {
			return true
		}
	}

	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
