package domain

import "time"

// Bar is a single OHLCV sample for a symbol, normally one minute wide.
type Bar struct {
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Clock is the broker's view of the trading calendar.
type Clock struct {
	Now       time.Time
	IsOpen    bool
	NextClose time.Time
}

// TimeToClose returns how long until the next market close.
func (c Clock) TimeToClose() time.Duration {
	return c.NextClose.Sub(c.Now)
}

// Account is a snapshot of the brokerage account.
type Account struct {
	Cash             float64
	Equity           float64
	LastEquity       float64
	PatternDayTrader bool
}

// DayROI returns today's account-level ROI as a percentage, computed
// against the previous day's closing equity. Zero if there is no prior
// equity to compare against.
func (a Account) DayROI() float64 {
	if a.LastEquity == 0 {
		return 0
	}
	return (a.Equity - a.LastEquity) / a.LastEquity * 100
}

// Quote is a delayed snapshot quote used by the pre-submission screen.
type Quote struct {
	Symbol        string
	Price         float64
	ChangePercent float64
}
