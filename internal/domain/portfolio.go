package domain

// Portfolio is the authoritative in-process ledger for one session: cash
// balance plus currently open positions. Cash is mutated only by ApplyFill
// and positions only by ApplyPosition/Reconcile; callers serialize access
// (the live engine holds a single lock around every mutation).
type Portfolio struct {
	StartingCapital float64
	Cash            float64
	Positions       []Position
}

// NewPortfolio creates a ledger with the full starting capital as cash.
func NewPortfolio(startingCapital float64) *Portfolio {
	return &Portfolio{StartingCapital: startingCapital, Cash: startingCapital}
}

// ApplyFill moves cash for one fill: sells add qty*price, buys subtract it.
// The contract is one call per fill; re-applying a fill double-counts.
func (p *Portfolio) ApplyFill(side Side, qty, price float64) {
	if side == SideSell {
		p.Cash += qty * price
	} else {
		p.Cash -= qty * price
	}
}

// ApplyPosition records the position change for a fill: a buy appends a
// row, a sell removes every row for the symbol (full-exit model).
func (p *Portfolio) ApplyPosition(symbol string, side Side, qty, price, balanceBefore float64) {
	if side == SideBuy {
		p.Positions = append(p.Positions, Position{
			Symbol:        symbol,
			Side:          side,
			Qty:           qty,
			Price:         price,
			Amount:        qty * price,
			BalanceBefore: balanceBefore,
			BalanceAfter:  p.Cash,
		})
		return
	}

	kept := p.Positions[:0]
	for _, pos := range p.Positions {
		if pos.Symbol != symbol {
			kept = append(kept, pos)
		}
	}
	p.Positions = kept
}

// Reconcile replaces the locally tracked positions with the broker's view.
// The broker is the source of truth: profit is recomputed per symbol from
// reported market value against cost basis.
func (p *Portfolio) Reconcile(positions []BrokerPosition) {
	if len(positions) == 0 {
		return
	}

	p.Positions = p.Positions[:0]
	for _, bp := range positions {
		p.Positions = append(p.Positions, Position{
			Symbol:        bp.Symbol,
			Side:          SideBuy,
			Qty:           bp.Qty,
			Price:         bp.LastdayPrice,
			Amount:        bp.Qty * bp.LastdayPrice,
			BalanceBefore: p.Cash,
			BalanceAfter:  p.Cash,
			Profit:        bp.MarketValue - bp.CostBasis,
		})
	}
}

// HeldQty returns the total quantity held for a symbol.
func (p *Portfolio) HeldQty(symbol string) float64 {
	var qty float64
	for _, pos := range p.Positions {
		if pos.Symbol == symbol {
			qty += pos.Qty
		}
	}
	return qty
}

// OpenPositions returns the number of open position rows.
func (p *Portfolio) OpenPositions() int {
	return len(p.Positions)
}

// MarketValue values the ledger at the given last-seen prices: cash plus
// every open position priced by priceOf (falling back to entry price when
// the symbol has no known price).
func (p *Portfolio) MarketValue(priceOf func(symbol string) float64) float64 {
	value := p.Cash
	for _, pos := range p.Positions {
		price := priceOf(pos.Symbol)
		if price <= 0 {
			price = pos.Price
		}
		value += pos.Qty * price
	}
	return value
}
