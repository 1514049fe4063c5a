package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robobull/trader/internal/algo"
	"github.com/robobull/trader/internal/decision"
	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu        sync.Mutex
	clock     domain.Clock
	clockErr  error
	account   domain.Account
	positions []domain.BrokerPosition
	closed    []domain.BrokerOrder
	created   []ports.OrderRequest
	confirm   domain.BrokerOrder
}

func (b *fakeBroker) GetClock(context.Context) (domain.Clock, error) {
	return b.clock, b.clockErr
}
func (b *fakeBroker) GetAccount(context.Context) (domain.Account, error) {
	return b.account, nil
}
func (b *fakeBroker) GetPositions(context.Context) ([]domain.BrokerPosition, error) {
	return b.positions, nil
}
func (b *fakeBroker) GetOrders(context.Context, ports.OrderFilter) ([]domain.BrokerOrder, error) {
	return b.closed, nil
}
func (b *fakeBroker) CreateOrder(_ context.Context, req ports.OrderRequest) (domain.BrokerOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, req)
	return b.confirm, nil
}

func (b *fakeBroker) createdRequests() []ports.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ports.OrderRequest(nil), b.created...)
}

type fakeStream struct {
	mu           sync.Mutex
	connected    bool
	disconnected bool
	symbols      []string
	handler      func(domain.Bar)
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}
func (s *fakeStream) Subscribe(_ context.Context, symbols []string, handler func(domain.Bar)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = append(s.symbols, symbols...)
	s.handler = handler
	return nil
}
func (s *fakeStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

type fakeData struct {
	bars map[string][]domain.Bar
}

func (d *fakeData) GetBars(_ context.Context, symbols []string, _, _ time.Time) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar)
	for _, sym := range symbols {
		out[sym] = d.bars[sym]
	}
	return out, nil
}

type fakeScreener struct {
	symbols []string
	err     error
	quotes  map[string]domain.Quote
}

func (s *fakeScreener) GetCandidateSymbols(context.Context) ([]string, error) {
	return s.symbols, s.err
}
func (s *fakeScreener) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	q, ok := s.quotes[symbol]
	if !ok {
		return domain.Quote{}, errors.New("no quote")
	}
	return q, nil
}

type memStorage struct {
	mu       sync.Mutex
	sessions []*domain.Session
	killed   map[string]bool
	orders   map[string]domain.Order
	results  []domain.Result
}

func newMemStorage() *memStorage {
	return &memStorage{killed: make(map[string]bool), orders: make(map[string]domain.Order)}
}

func (m *memStorage) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}
func (m *memStorage) SessionHalted(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killed[id], nil
}
func (m *memStorage) KillSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killed[id] = true
	return nil
}
func (m *memStorage) CreateOrder(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}
func (m *memStorage) UpdateOrder(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}
func (m *memStorage) UnprocessedOrders(_ context.Context, sessionID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.SessionID == sessionID && !o.Processed && !o.Cancelled {
			out = append(out, o)
		}
	}
	return out, nil
}
func (m *memStorage) CreateResult(_ context.Context, r domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}
func (m *memStorage) Close() error { return nil }

type harness struct {
	engine   *Engine
	broker   *fakeBroker
	stream   *fakeStream
	screener *fakeScreener
	storage  *memStorage
}

func liveSettings() domain.Settings {
	return domain.Settings{
		CapitalAllowance: 1,
		RiskAllocation:   1,
		BuyCapFraction:   0.1,
		CapitalRetention: 1,
	}
}

func newHarness(settings domain.Settings, symbols []string) *harness {
	broker := &fakeBroker{
		clock:   domain.Clock{Now: time.Now(), IsOpen: true, NextClose: time.Now().Add(6 * time.Hour)},
		account: domain.Account{Cash: 100000, Equity: 100000, LastEquity: 100000},
	}
	stream := &fakeStream{}
	screener := &fakeScreener{}
	storage := newMemStorage()
	engine := New(settings, algo.DefaultConfig(), symbols, Deps{
		Broker:   broker,
		Stream:   stream,
		Data:     &fakeData{},
		Screener: screener,
		Storage:  storage,
		Notifier: nil,
	})
	return &harness{engine: engine, broker: broker, stream: stream, screener: screener, storage: storage}
}

// start wires the session pieces the way Run does, without the blocking
// loop, so tasks can be driven by hand.
func (h *harness) start(t *testing.T) {
	t.Helper()
	e := h.engine
	e.session = domain.NewSession(false)
	require.NoError(t, h.storage.CreateSession(context.Background(), e.session))
	portfolio := domain.NewPortfolio(h.broker.account.Cash)
	e.decider = decision.New(e.settings, e.session, portfolio, h.storage, nil)
	e.algos = algo.New(e.algoCfg, e.settings.ResetSignals, e.decider, nil)
	_, e.cancel = context.WithCancel(context.Background())
}

func TestRun_FailsWhenMarketClosed(t *testing.T) {
	h := newHarness(liveSettings(), []string{"AAPL"})
	h.broker.clock.IsOpen = false

	err := h.engine.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "market is closed")
}

func TestRun_SubscribesAndStopsOnCancel(t *testing.T) {
	h := newHarness(liveSettings(), []string{"AAPL", "MSFT"})
	h.broker.positions = []domain.BrokerPosition{
		{Symbol: "NVDA", Qty: 3, AvgEntryPrice: 500, CurrentPrice: 510, MarketValue: 1530, CostBasis: 1500},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.engine.Phase() == PhaseStreaming
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, PhaseStopped, h.engine.Phase())
	assert.True(t, h.stream.disconnected)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "NVDA"}, h.stream.symbols)
	require.Len(t, h.storage.sessions, 1)

	// held symbol reconciled and seeded as bought
	st := h.engine.store.Get("NVDA")
	require.NotNil(t, st)
	assert.Equal(t, domain.SideBuy, st.LastOrderSide)
	assert.Equal(t, 3, h.engine.decider.SymbolCount())
}

func TestFlushOrders_SubmitsQueuedAndMarksProcessed(t *testing.T) {
	h := newHarness(liveSettings(), []string{"AAPL"})
	h.start(t)
	h.broker.confirm = domain.BrokerOrder{ID: "bo-1", Status: "accepted"}
	st := h.engine.store.Ensure("AAPL", domain.SideSell)
	require.NoError(t, h.engine.algos.InitSymbol(st))

	h.engine.decider.Decide(context.Background(), st, domain.SideBuy, 100, time.Now())
	queued, err := h.storage.UnprocessedOrders(context.Background(), h.engine.session.ID)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	h.engine.flushOrders(context.Background())

	reqs := h.broker.createdRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "AAPL", reqs[0].Symbol)
	assert.Equal(t, "market", reqs[0].Type)
	assert.Equal(t, "day", reqs[0].TimeInForce)

	queued, err = h.storage.UnprocessedOrders(context.Background(), h.engine.session.ID)
	require.NoError(t, err)
	assert.Empty(t, queued, "submitted orders leave the queue")
}

func TestFlushOrders_QuoteScreenCancelsRunners(t *testing.T) {
	settings := liveSettings()
	settings.UseQuoteScreen = true
	settings.QuoteChangeMax = 5
	h := newHarness(settings, []string{"AAPL"})
	h.start(t)
	h.screener.quotes = map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 100, ChangePercent: 9},
	}
	st := h.engine.store.Ensure("AAPL", domain.SideSell)
	require.NoError(t, h.engine.algos.InitSymbol(st))
	h.engine.decider.Decide(context.Background(), st, domain.SideBuy, 100, time.Now())

	h.engine.flushOrders(context.Background())

	assert.Empty(t, h.broker.createdRequests(), "buy never reached the broker")
	for _, o := range h.storage.orders {
		assert.True(t, o.Cancelled)
	}

	// the ledger is refunded, so the cap and cash are free again
	h.engine.decider.WithPortfolio(func(p *domain.Portfolio) {
		assert.Equal(t, 100000.0, p.Cash)
		assert.Zero(t, p.HeldQty("AAPL"))
	})
	h.engine.decider.Decide(context.Background(), st, domain.SideBuy, 100, time.Now())
	assert.Equal(t, 2, h.engine.decider.OrderCount(), "symbol can be bought again")
}

func TestFlushOrders_ExternalKillHaltsSession(t *testing.T) {
	h := newHarness(liveSettings(), []string{"AAPL"})
	h.start(t)
	require.NoError(t, h.storage.KillSession(context.Background(), h.engine.session.ID))

	h.engine.flushOrders(context.Background())

	assert.True(t, h.engine.session.Halted())
	require.Len(t, h.storage.results, 1)
	assert.Equal(t, h.engine.session.ID, h.storage.results[0].SessionID)
}

func TestCheckRisk_StopLossQueuesForcedSell(t *testing.T) {
	settings := liveSettings()
	settings.StopLossROI = -0.01
	h := newHarness(settings, []string{"AAPL"})
	h.start(t)
	h.broker.positions = []domain.BrokerPosition{
		{Symbol: "AAPL", Qty: 10, AvgEntryPrice: 100, CurrentPrice: 95, MarketValue: 950, CostBasis: 1000},
	}
	h.engine.decider.WithPortfolio(func(p *domain.Portfolio) {
		p.Reconcile(h.broker.positions)
	})

	h.engine.checkRisk(context.Background())

	orders := h.engine.decider.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.Equal(t, 10.0, orders[0].Qty)
	assert.Equal(t, 95.0, orders[0].Price)
}

func TestCheckRisk_CooldownSuppressesForcedSell(t *testing.T) {
	settings := liveSettings()
	settings.StopLossROI = -0.01
	settings.CooldownMinutes = 30
	h := newHarness(settings, []string{"AAPL"})
	h.start(t)
	st := h.engine.store.Ensure("AAPL", domain.SideSell)
	require.NoError(t, h.engine.algos.InitSymbol(st))
	h.engine.decider.Decide(context.Background(), st, domain.SideBuy, 100, time.Now())
	require.Equal(t, 1, h.engine.decider.OrderCount())

	h.broker.positions = []domain.BrokerPosition{
		{Symbol: "AAPL", Qty: 10, AvgEntryPrice: 100, CurrentPrice: 95, MarketValue: 950, CostBasis: 1000},
	}

	h.engine.checkRisk(context.Background())

	assert.Equal(t, 1, h.engine.decider.OrderCount(), "no forced sell right after the buy")
}

func TestCheckRisk_CloseBoundHaltsAndLiquidatesMostProfitableFirst(t *testing.T) {
	settings := liveSettings()
	settings.ROIToClose = 1 // percent
	settings.CloseBeforeClose = true
	h := newHarness(settings, []string{"AAPL"})
	h.start(t)
	h.broker.account = domain.Account{Cash: 50000, Equity: 102000, LastEquity: 100000}
	h.broker.positions = []domain.BrokerPosition{
		{Symbol: "AAPL", Qty: 10, AvgEntryPrice: 100, CurrentPrice: 101, MarketValue: 1010, CostBasis: 1000},
		{Symbol: "MSFT", Qty: 10, AvgEntryPrice: 100, CurrentPrice: 109, MarketValue: 1090, CostBasis: 1000},
	}
	h.engine.decider.WithPortfolio(func(p *domain.Portfolio) {
		p.Reconcile(h.broker.positions)
	})

	h.engine.checkRisk(context.Background())

	assert.True(t, h.engine.session.Halted())
	orders := h.engine.decider.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "MSFT", orders[0].Symbol, "largest profit liquidated first")
	assert.Equal(t, "AAPL", orders[1].Symbol)
	require.Len(t, h.storage.results, 1)
	assert.Equal(t, 102000.0, h.storage.results[0].EndValue)
}

func TestCheckRisk_CloseTimeHaltsEvenWithoutSelling(t *testing.T) {
	h := newHarness(liveSettings(), []string{"AAPL"}) // close-before-close off
	h.start(t)
	h.broker.clock = domain.Clock{
		Now: time.Now(), IsOpen: true, NextClose: time.Now().Add(5 * time.Minute),
	}
	h.broker.positions = []domain.BrokerPosition{
		{Symbol: "AAPL", Qty: 10, AvgEntryPrice: 100, CurrentPrice: 110, MarketValue: 1100, CostBasis: 1000},
	}

	h.engine.checkRisk(context.Background())

	assert.True(t, h.engine.session.Halted(), "approaching close always ends the session")
	assert.Zero(t, h.engine.decider.OrderCount(), "positions stay open overnight")
	require.Len(t, h.storage.results, 1)
}

func TestCheckRisk_CloseTimeSellsWhenCloseBeforeCloseSet(t *testing.T) {
	settings := liveSettings()
	settings.CloseBeforeClose = true
	h := newHarness(settings, []string{"AAPL"})
	h.start(t)
	h.broker.clock = domain.Clock{
		Now: time.Now(), IsOpen: true, NextClose: time.Now().Add(5 * time.Minute),
	}
	h.broker.positions = []domain.BrokerPosition{
		{Symbol: "AAPL", Qty: 10, AvgEntryPrice: 100, CurrentPrice: 110, MarketValue: 1100, CostBasis: 1000},
	}

	h.engine.checkRisk(context.Background())

	assert.True(t, h.engine.session.Halted())
	orders := h.engine.decider.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.Equal(t, "AAPL", orders[0].Symbol)
}

func TestHalt_HoldUntilProfitKeepsLosers(t *testing.T) {
	settings := liveSettings()
	settings.HoldUntilProfit = true
	settings.CloseBeforeClose = true
	h := newHarness(settings, []string{"AAPL"})
	h.start(t)
	h.broker.positions = []domain.BrokerPosition{
		{Symbol: "AAPL", Qty: 10, AvgEntryPrice: 100, CurrentPrice: 90, MarketValue: 900, CostBasis: 1000},
		{Symbol: "MSFT", Qty: 10, AvgEntryPrice: 100, CurrentPrice: 110, MarketValue: 1100, CostBasis: 1000},
	}
	h.engine.decider.WithPortfolio(func(p *domain.Portfolio) {
		p.Reconcile(h.broker.positions)
	})

	h.engine.halt(context.Background(), "test")

	orders := h.engine.decider.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "MSFT", orders[0].Symbol)
	assert.True(t, h.engine.session.Halted())
}

func TestHalt_IsIdempotent(t *testing.T) {
	h := newHarness(liveSettings(), []string{"AAPL"})
	h.start(t)

	h.engine.halt(context.Background(), "first")
	h.engine.halt(context.Background(), "second")

	assert.Len(t, h.storage.results, 1)
	assert.True(t, h.engine.session.Halted())
}

func TestOnBarIgnoresUnknownSymbols(t *testing.T) {
	h := newHarness(liveSettings(), []string{"AAPL"})
	h.start(t)

	// no state for the symbol: the bar is dropped, nothing panics
	h.engine.onBar(domain.Bar{Symbol: "ZZZ", Close: 10})
	assert.Zero(t, h.engine.decider.OrderCount())
}

func TestRefreshSymbols_AddsScreenerPicks(t *testing.T) {
	settings := liveSettings()
	settings.UseScreener = true
	h := newHarness(settings, []string{"AAPL"})
	h.start(t)
	h.screener.symbols = []string{"TSLA", "AMD"}

	h.engine.refreshSymbols(context.Background())

	assert.NotNil(t, h.engine.store.Get("TSLA"))
	assert.NotNil(t, h.engine.store.Get("AMD"))
	assert.Equal(t, 2, h.engine.decider.SymbolCount())
	assert.ElementsMatch(t, []string{"TSLA", "AMD"}, h.stream.symbols)
}

func TestMergeSymbols(t *testing.T) {
	got := mergeSymbols([]string{"A", "B", "A"}, []string{"B", "C", ""})
	assert.Equal(t, []string{"A", "B", "C"}, got)
}
