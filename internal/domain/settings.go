package domain

import "time"

// Default thresholds, matching the values applied when a setting is left
// at zero. CapitalAllowance runs 1..12 (higher allows more per buy) and
// RiskAllocation 0.0..5.0 (higher is more aggressive).
const (
	DefaultStartingCapital  = 100000.0
	DefaultCapitalAllowance = 1.0
	DefaultBuyCapFraction   = 0.1
	DefaultStockCap         = 15
	DefaultCapitalRetention = 10000.0
)

// Settings is the immutable configuration snapshot for one session. It is
// built once at session construction and passed into every component;
// nothing reads ambient global state.
type Settings struct {
	IsBacktest bool
	StartDate  time.Time
	EndDate    time.Time

	StartingCapital  float64
	CapitalAllowance float64
	RiskAllocation   float64
	BuyCapFraction   float64
	StockCap         int
	CapitalRetention float64
	CooldownMinutes  float64

	StopLossROI   float64 // per-position, e.g. -0.006
	TakeProfitROI float64 // per-position, e.g. 0.015
	ROIToClose    float64 // account-level ROI (%) that ends the session
	ROIToReset    float64 // account-level ROI (%) lower bound, also terminal

	ResetSignals     bool
	CloseBeforeClose bool
	HoldUntilProfit  bool

	UseScreener       bool
	UseDefaultSymbols bool
	UseQuoteScreen    bool
	QuoteChangeMax    float64
}

// Normalized returns a copy with zero-valued thresholds replaced by their
// defaults. RiskAllocation defaults to a tenth of the capital allowance.
func (s Settings) Normalized() Settings {
	if s.CapitalAllowance == 0 {
		s.CapitalAllowance = DefaultCapitalAllowance
	}
	if s.RiskAllocation == 0 {
		s.RiskAllocation = s.CapitalAllowance / 10
	}
	if s.BuyCapFraction == 0 {
		s.BuyCapFraction = DefaultBuyCapFraction
	}
	if s.StockCap == 0 {
		s.StockCap = DefaultStockCap
	}
	if s.CapitalRetention == 0 {
		s.CapitalRetention = DefaultCapitalRetention
	}
	return s
}
