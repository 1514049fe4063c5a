package domain

// Position is one open long exposure held in the local ledger. The model
// is long-only with full exits: a filled buy appends a row, a filled sell
// removes every row for that symbol.
type Position struct {
	Symbol        string
	Side          Side
	Qty           float64
	Price         float64
	Amount        float64
	BalanceBefore float64
	BalanceAfter  float64
	Profit        float64
}

// BrokerPosition is a position as reported by the brokerage, used for
// reconciliation and the periodic risk check.
type BrokerPosition struct {
	Symbol         string
	Qty            float64
	AvgEntryPrice  float64
	CurrentPrice   float64
	LastdayPrice   float64
	MarketValue    float64
	CostBasis      float64
	UnrealizedPLPC float64
}

// ROI returns the position-level return against the average entry price.
func (p BrokerPosition) ROI() float64 {
	if p.AvgEntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.AvgEntryPrice) / p.AvgEntryPrice
}
