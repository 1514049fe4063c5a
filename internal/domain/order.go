package domain

import "time"

// Side is the direction of an order or signal.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order is one accepted trading decision. It is immutable after creation
// except for the processed/cancelled/fill fields, which are updated when
// the broker confirms or fills it.
type Order struct {
	ID            string
	SessionID     string
	Symbol        string
	Side          Side
	Qty           float64
	Price         float64
	Amount        float64 // qty * price at decision time, replaced by fill amount
	BalanceAtBuy  float64 // cash before the fill was applied
	BalanceAtSell float64 // cash after the fill was applied
	ROI           float64
	ClientOrderID string
	Processed     bool
	Cancelled     bool
	DateTime      time.Time
	CreatedAt     time.Time
}

// OrderROI computes return on investment for a sell against the amount of
// the most recent buy for the same symbol. Returns 0 when there is no
// prior buy or the sell amount is not positive.
func OrderROI(side Side, amount float64, lastBuy *Order) float64 {
	if side != SideSell || amount <= 0 {
		return 0
	}
	if lastBuy == nil || lastBuy.Amount == 0 {
		return 0
	}
	return (amount - lastBuy.Amount) / lastBuy.Amount
}

// BrokerOrder is an order as reported by the brokerage.
type BrokerOrder struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           Side
	Status         string
	FilledQty      float64
	FilledAvgPrice float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Filled reports whether the broker has filled any quantity.
func (o BrokerOrder) Filled() bool {
	return o.FilledQty > 0 && o.FilledAvgPrice > 0
}

// Result is the outcome of one trading run (a live day or one backtest day).
type Result struct {
	SessionID  string
	StartValue float64
	EndValue   float64
	ROI        float64
	StartDate  time.Time
	EndDate    time.Time
	IsBacktest bool
	OrderCount int
}

// AggregateResults folds per-day backtest results into a single result.
// Total ROI is the sum of the per-day ROIs and the ending value is the
// starting capital grown by that total.
func AggregateResults(startingCapital float64, days []Result) Result {
	total := Result{StartValue: startingCapital, IsBacktest: true}
	for _, day := range days {
		total.ROI += day.ROI
		total.OrderCount += day.OrderCount
	}
	total.EndValue = startingCapital * (1 + total.ROI)
	if len(days) > 0 {
		total.StartDate = days[0].StartDate
		total.EndDate = days[len(days)-1].EndDate
		total.SessionID = days[0].SessionID
	}
	return total
}
