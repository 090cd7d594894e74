package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"consensusbot/src/connectors"
	"consensusbot/src/ledger"
	"consensusbot/src/model"
	"consensusbot/src/weights"

	"github.com/nntaoli-project/goex"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  int
}

func newFakePrices(prices map[string]float64) *fakePrices {
	return &fakePrices{prices: prices, errs: map[string]error{}}
}

func (f *fakePrices) set(symbol string, p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = p
	delete(f.errs, symbol)
}

func (f *fakePrices) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func (f *fakePrices) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePrices) Price(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[symbol]; err != nil {
		return 0, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("unknown symbol")
	}
	return p, nil
}

type orderCall struct {
	symbol   string
	side     model.Action
	notional float64
	quantity float64
}

type fakeOrders struct {
	mu    sync.Mutex
	fill  float64
	qty   float64 // reported entry quantity; notional/fill when zero
	err   error
	calls []orderCall
}

func (f *fakeOrders) ExecuteMarketOrder(ctx context.Context, symbol string, side model.Action, notionalUSD float64) (model.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderCall{symbol: symbol, side: side, notional: notionalUSD})
	if f.err != nil {
		return model.Fill{}, f.err
	}
	qty := f.qty
	if qty == 0 {
		qty = notionalUSD / f.fill
	}
	return model.Fill{Price: f.fill, Quantity: qty}, nil
}

func (f *fakeOrders) ExecuteMarketQuantity(ctx context.Context, symbol string, side model.Action, quantity float64) (model.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderCall{symbol: symbol, side: side, quantity: quantity})
	if f.err != nil {
		return model.Fill{}, f.err
	}
	return model.Fill{Price: f.fill, Quantity: quantity}, nil
}

// spotStub is the exchange side of a real connectors.Binance.
type spotStub struct {
	mu     sync.Mutex
	last   float64
	avg    float64
	placed []string
}

func (s *spotStub) GetTicker(pair goex.CurrencyPair) (*goex.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &goex.Ticker{Pair: pair, Last: s.last}, nil
}

func (s *spotStub) MarketBuy(amount, price string, pair goex.CurrencyPair) (*goex.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placed = append(s.placed, "buy "+amount)
	return &goex.Order{AvgPrice: s.avg}, nil
}

func (s *spotStub) MarketSell(amount, price string, pair goex.CurrencyPair) (*goex.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placed = append(s.placed, "sell "+amount)
	return &goex.Order{AvgPrice: s.avg}, nil
}

func (s *spotStub) move(last, avg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last, s.avg = last, avg
}

// fixedPanel answers every symbol with the same votes unless overridden per symbol.
type fixedPanel struct {
	mu       sync.Mutex
	votes    []model.Vote
	bySymbol map[string][]model.Vote
	onCall   func()
}

func (p *fixedPanel) Collect(ctx context.Context, symbol string) []model.Vote {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onCall != nil {
		p.onCall()
	}
	if v, ok := p.bySymbol[symbol]; ok {
		return v
	}
	return p.votes
}

func (p *fixedPanel) setVotes(v []model.Vote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votes = v
}

type memSink struct {
	mu         sync.Mutex
	nextID     uint
	trades     []model.Trade
	weights    []map[string]float64
	history    []model.EngineHistory
	orders     []model.OrderExecutionLog
	exceptions []model.Exception
	counted    int

	tradeErr error
}

func (m *memSink) SaveTrade(ctx context.Context, trade *model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tradeErr != nil {
		return m.tradeErr
	}
	m.nextID++
	trade.ID = m.nextID
	m.trades = append(m.trades, *trade)
	return nil
}

func (m *memSink) SaveWeights(ctx context.Context, w map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = append(m.weights, w)
	return nil
}

func (m *memSink) SaveHistory(ctx context.Context, rows []model.EngineHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, rows...)
	return nil
}

func (m *memSink) SaveOrderExecution(ctx context.Context, entry *model.OrderExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, *entry)
	return nil
}

func (m *memSink) SaveException(ctx context.Context, exc *model.Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptions = append(m.exceptions, *exc)
	return nil
}

func (m *memSink) CountTrades(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counted++
	return int64(len(m.trades)), nil
}

func votes(actions ...model.Action) []model.Vote {
	ids := []string{"GPT-5", "Grok", "Gemini", "Claude", "DeepSeek"}
	out := make([]model.Vote, 0, len(actions))
	for i, a := range actions {
		out = append(out, model.Vote{Source: ids[i], Action: a, Confidence: 0.8})
	}
	return out
}

type harness struct {
	s       *Scheduler
	ledger  *ledger.Ledger
	weights *weights.Store
	prices  *fakePrices
	panel   *fixedPanel
	sink    *memSink
}

func newHarness(t *testing.T, cfg Config, ledgerCfg ledger.Config, orders OrderExecutor) *harness {
	t.Helper()

	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"BTC/USDT"}
	}
	if cfg.CycleSeconds == 0 {
		cfg.CycleSeconds = 30
	}
	if cfg.WeightLR == 0 {
		cfg.WeightLR = 0.04
	}
	if ledgerCfg.TradeUSD == 0 {
		ledgerCfg = ledger.Config{TradeUSD: 100, TPPct: 2, SLPct: 3}
	}

	h := &harness{
		ledger:  ledger.New(quietLogger(), ledgerCfg),
		weights: weights.NewStore(cfg.WeightLR, []string{"GPT-5", "Grok", "Gemini", "Claude", "DeepSeek"}, nil),
		prices:  newFakePrices(map[string]float64{"BTC/USDT": 100, "ETH/USDT": 50}),
		panel:   &fixedPanel{votes: votes(model.ActionBuy, model.ActionBuy, model.ActionSell)},
		sink:    &memSink{},
	}

	s, err := New(quietLogger(), cfg, Deps{
		Panel:   h.panel,
		Ledger:  h.ledger,
		Weights: h.weights,
		Prices:  h.prices,
		Orders:  orders,
		Sink:    h.sink,
	})
	require.NoError(t, err)
	h.s = s
	return h
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, Config{Symbols: []string{"BTC/USDT"}}, Deps{})
	require.Error(t, err)

	l := ledger.New(nil, ledger.Config{TradeUSD: 100, TPPct: 2, SLPct: 3})
	_, err = New(nil, Config{}, Deps{
		Panel:   &fixedPanel{},
		Ledger:  l,
		Weights: weights.NewStore(0.04, nil, nil),
		Prices:  newFakePrices(nil),
	})
	require.Error(t, err)
}

func TestRunCycle_OpensOnMajority(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)
	assert.Equal(t, StateIdle, h.s.State())

	report := h.s.RunCycle(context.Background())

	require.NotEmpty(t, report.ID)
	require.Len(t, report.Opened, 1)
	pos := report.Opened[0]
	assert.Equal(t, model.SideLong, pos.Side)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, 102.0, pos.TargetPrice)
	assert.Equal(t, 97.0, pos.StopPrice)
	assert.Len(t, pos.Votes, 3)

	assert.Equal(t, model.ActionBuy, report.Decisions["BTC/USDT"].Action)
	assert.Equal(t, 1, h.ledger.Len())
	assert.EqualValues(t, 1, h.s.Cycles())
	assert.Equal(t, StateWaiting, h.s.State(), "a finished cycle does not report a stale phase")
}

func TestRunCycle_TieAndHoldDoNotOpen(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)

	h.panel.setVotes(votes(model.ActionBuy, model.ActionBuy, model.ActionSell, model.ActionHold, model.ActionHold))
	report := h.s.RunCycle(context.Background())
	assert.Equal(t, model.ActionHold, report.Decisions["BTC/USDT"].Action)
	assert.Empty(t, report.Opened)

	h.panel.setVotes(nil)
	report = h.s.RunCycle(context.Background())
	assert.Equal(t, model.ActionHold, report.Decisions["BTC/USDT"].Action)
	assert.Empty(t, report.Opened)
	assert.Zero(t, h.ledger.Len())
}

func TestRunCycle_PriceFailureIsolatedPerSymbol(t *testing.T) {
	h := newHarness(t, Config{Symbols: []string{"BTC/USDT", "ETH/USDT"}}, ledger.Config{}, nil)
	h.prices.fail("BTC/USDT", errors.New("exchange down"))

	report := h.s.RunCycle(context.Background())

	require.Len(t, report.Opened, 1)
	assert.Equal(t, "ETH/USDT", report.Opened[0].Symbol)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, h.sink.exceptions, 1)
	assert.Equal(t, "price_source", h.sink.exceptions[0].Module)
	assert.Contains(t, h.sink.exceptions[0].Context, "BTC/USDT")
}

func TestRunCycle_TargetHitClosesAndLearns(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)
	h.s.RunCycle(context.Background())
	require.Equal(t, 1, h.ledger.Len())

	h.panel.setVotes(nil)
	h.prices.set("BTC/USDT", 105)
	report := h.s.RunCycle(context.Background())

	require.Len(t, report.Closed, 1)
	trade := report.Closed[0]
	assert.Equal(t, 102.0, trade.ExitPrice, "simulated exit happens at the target level")
	assert.Equal(t, 2.0, trade.PnlUSD)
	assert.Equal(t, model.TradeResultWin, trade.Result)
	assert.Equal(t, model.CloseReasonTargetHit, trade.Reason)
	assert.EqualValues(t, 1, trade.ID)
	assert.Zero(t, h.ledger.Len())

	require.Len(t, h.sink.trades, 1)
	require.Len(t, h.sink.weights, 1)
	assert.Greater(t, h.weights.Get("GPT-5"), 1.0)
	assert.Greater(t, h.weights.Get("Grok"), 1.0)
	assert.Less(t, h.weights.Get("Gemini"), 1.0)
	assert.Equal(t, 1.0, h.weights.Get("Claude"), "sources that did not vote are untouched")

	require.Len(t, h.sink.history, 3)
	for _, row := range h.sink.history {
		assert.EqualValues(t, 1, row.TradeID)
		assert.Equal(t, trade.PositionID, row.PositionID)
	}
}

func TestRunCycle_StopHitShort(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)
	h.panel.setVotes(votes(model.ActionSell, model.ActionSell, model.ActionHold))
	h.s.RunCycle(context.Background())

	h.panel.setVotes(nil)
	h.prices.set("BTC/USDT", 104)
	report := h.s.RunCycle(context.Background())

	require.Len(t, report.Closed, 1)
	trade := report.Closed[0]
	assert.Equal(t, model.SideShort, trade.Side)
	assert.Equal(t, 103.0, trade.ExitPrice)
	assert.Equal(t, -3.0, trade.PnlUSD)
	assert.Equal(t, model.CloseReasonStopHit, trade.Reason)
	assert.Equal(t, model.TradeResultLoss, trade.Result)

	// a losing trade makes sell the profitable side
	assert.Greater(t, h.weights.Get("GPT-5"), 1.0)
	assert.Less(t, h.weights.Get("Gemini"), 1.0)
}

func TestRunCycle_PhasesRunInOrder(t *testing.T) {
	h := newHarness(t, Config{Symbols: []string{"BTC/USDT", "ETH/USDT"}}, ledger.Config{}, nil)
	h.s.RunCycle(context.Background())
	require.Equal(t, 2, h.ledger.Len())

	h.prices.set("BTC/USDT", 105) // BTC hits its target, ETH stays between levels
	pricesBefore := h.prices.callCount()

	type seen struct {
		open   int
		trades int
		state  State
		prices int
	}
	var observed []seen
	h.panel.onCall = func() {
		h.sink.mu.Lock()
		trades := len(h.sink.trades)
		h.sink.mu.Unlock()
		observed = append(observed, seen{
			open:   h.ledger.Len(),
			trades: trades,
			state:  h.s.State(),
			prices: h.prices.callCount(),
		})
	}

	report := h.s.RunCycle(context.Background())

	require.Len(t, observed, 2)
	for _, o := range observed {
		assert.Equal(t, 1, o.open, "the triggered position is closed and nothing is opened while votes are collected")
		assert.Equal(t, 1, o.trades, "the closed trade is persisted before collection starts")
		assert.Equal(t, StateCollectingSignals, o.state)
		assert.Equal(t, pricesBefore+2, o.prices, "only the position checks have quoted prices so far")
	}

	require.Len(t, report.Closed, 1)
	assert.Equal(t, "BTC/USDT", report.Closed[0].Symbol)
	assert.Len(t, report.Opened, 2)
	assert.Equal(t, pricesBefore+4, h.prices.callCount())
	assert.Equal(t, 3, h.ledger.Len())
}

func TestRunCycle_PriceBetweenLevelsKeepsPosition(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)
	h.s.RunCycle(context.Background())

	h.panel.setVotes(nil)
	h.prices.set("BTC/USDT", 101)
	report := h.s.RunCycle(context.Background())

	assert.Empty(t, report.Closed)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestRunCycle_UnavailablePriceNeverCloses(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)
	h.s.RunCycle(context.Background())

	h.panel.setVotes(nil)
	h.prices.fail("BTC/USDT", errors.New("timeout"))
	report := h.s.RunCycle(context.Background())

	assert.Empty(t, report.Closed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestRunCycle_TimeoutClosesAtCurrentPrice(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{TradeUSD: 100, TPPct: 2, SLPct: 3, MaxHold: time.Hour}, nil)
	h.s.RunCycle(context.Background())

	h.panel.setVotes(nil)
	h.prices.set("BTC/USDT", 101)
	h.s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	report := h.s.RunCycle(context.Background())

	require.Len(t, report.Closed, 1)
	assert.Equal(t, model.CloseReasonTimeout, report.Closed[0].Reason)
	assert.Equal(t, 101.0, report.Closed[0].ExitPrice)
	assert.Equal(t, 1.0, report.Closed[0].PnlUSD)
}

func TestRunCycle_DuplicateExposure(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)
	h.s.RunCycle(context.Background())
	h.s.RunCycle(context.Background())
	assert.Equal(t, 2, h.ledger.Len(), "duplicate exposure is allowed by default")

	h = newHarness(t, Config{SkipIfExposed: true}, ledger.Config{}, nil)
	h.s.RunCycle(context.Background())
	report := h.s.RunCycle(context.Background())
	assert.Empty(t, report.Opened)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestRunCycle_LiveOrders(t *testing.T) {
	orders := &fakeOrders{fill: 99.5}
	h := newHarness(t, Config{}, ledger.Config{}, orders)
	require.True(t, h.s.Live())

	report := h.s.RunCycle(context.Background())
	require.Len(t, report.Opened, 1)
	assert.Equal(t, 99.5, report.Opened[0].EntryPrice)
	require.Len(t, orders.calls, 1)
	assert.Equal(t, orderCall{symbol: "BTC/USDT", side: model.ActionBuy, notional: 100}, orders.calls[0])
	assert.InDelta(t, 100/99.5, report.Opened[0].Quantity, 1e-12)

	require.Len(t, h.sink.orders, 1)
	assert.Equal(t, model.OrderExecutionStatusFilled, h.sink.orders[0].Status)
	assert.Equal(t, model.OrderDirectionEntry, h.sink.orders[0].OrderDir)
	require.NotNil(t, h.sink.orders[0].FillPrice)

	// exit: opposite side, filled price becomes the exit
	h.panel.setVotes(nil)
	h.prices.set("BTC/USDT", 110)
	orders.fill = 109
	report = h.s.RunCycle(context.Background())
	require.Len(t, report.Closed, 1)
	assert.Equal(t, 109.0, report.Closed[0].ExitPrice)
	require.Len(t, orders.calls, 2)
	assert.Equal(t, model.ActionSell, orders.calls[1].side)
	assert.InDelta(t, 100/99.5, orders.calls[1].quantity, 1e-12, "exit trades back the filled entry quantity")

	require.Len(t, h.sink.orders, 2)
	assert.Equal(t, model.OrderDirectionExit, h.sink.orders[1].OrderDir)
	require.NotNil(t, h.sink.orders[1].PositionID)
}

func TestRunCycle_LiveExitSellsWhatEntryBought(t *testing.T) {
	spot := &spotStub{last: 100, avg: 99.5}
	binance := connectors.NewBinanceWithAPI(quietLogger(), spot, nil)
	h := newHarness(t, Config{}, ledger.Config{}, binance)

	report := h.s.RunCycle(context.Background())
	require.Len(t, report.Opened, 1)
	assert.Equal(t, 99.5, report.Opened[0].EntryPrice)
	assert.Equal(t, 1.0, report.Opened[0].Quantity)

	h.panel.setVotes(nil)
	h.prices.set("BTC/USDT", 110)
	spot.move(110, 110)
	report = h.s.RunCycle(context.Background())

	require.Len(t, report.Closed, 1)
	assert.Equal(t, 110.0, report.Closed[0].ExitPrice)
	assert.Equal(t, []string{"buy 1", "sell 1"}, spot.placed)

	require.Len(t, h.sink.orders, 2)
	require.NotNil(t, h.sink.orders[1].FillQuantity)
	assert.Equal(t, 1.0, *h.sink.orders[1].FillQuantity)
}

func TestRunCycle_LiveOrderFailures(t *testing.T) {
	orders := &fakeOrders{err: errors.New("insufficient balance")}
	h := newHarness(t, Config{}, ledger.Config{}, orders)

	report := h.s.RunCycle(context.Background())
	assert.Empty(t, report.Opened)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, h.sink.orders, 1)
	assert.Equal(t, model.OrderExecutionStatusError, h.sink.orders[0].Status)
	require.NotNil(t, h.sink.orders[0].ErrorMessage)

	// open one, then fail the exit: the position must stay open
	orders.err = nil
	orders.fill = 100
	h.s.RunCycle(context.Background())
	require.Equal(t, 1, h.ledger.Len())

	h.panel.setVotes(nil)
	h.prices.set("BTC/USDT", 120)
	orders.err = errors.New("rejected")
	report = h.s.RunCycle(context.Background())
	assert.Empty(t, report.Closed)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestRunCycle_TradeSaveFailureStillLearns(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)
	h.s.RunCycle(context.Background())

	h.sink.tradeErr = errors.New("disk full")
	h.panel.setVotes(nil)
	h.prices.set("BTC/USDT", 105)
	report := h.s.RunCycle(context.Background())

	require.Len(t, report.Closed, 1)
	assert.Greater(t, h.weights.Get("GPT-5"), 1.0)
	require.Len(t, h.sink.history, 3)
	assert.Zero(t, h.sink.history[0].TradeID)

	found := false
	for _, e := range h.sink.exceptions {
		if e.Method == "SaveTrade" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunCycle_Housekeeping(t *testing.T) {
	h := newHarness(t, Config{HousekeepingEvery: 2}, ledger.Config{}, nil)
	h.panel.setVotes(nil)

	for i := 0; i < 5; i++ {
		h.s.RunCycle(context.Background())
	}
	assert.Equal(t, 2, h.sink.counted)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, Config{}, ledger.Config{}, nil)
	h.s.interval = time.Millisecond
	h.panel.setVotes(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	h.panel.onCall = func() {
		calls++
		if calls == 3 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not stop after cancel")
	}

	assert.EqualValues(t, 3, h.s.Cycles())
	assert.Equal(t, StateIdle, h.s.State())
}

func TestConfigValidate(t *testing.T) {
	good := Config{Symbols: []string{"BTC/USDT"}, CycleSeconds: 30, WeightLR: 0.04}
	require.NoError(t, good.Validate())
	assert.Equal(t, 30*time.Second, good.Interval())

	bad := good
	bad.Symbols = nil
	require.Error(t, bad.Validate())

	bad = good
	bad.CycleSeconds = 0
	require.Error(t, bad.Validate())

	bad = good
	bad.WeightLR = -1
	require.Error(t, bad.Validate())
}
