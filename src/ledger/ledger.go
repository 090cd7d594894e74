package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"consensusbot/src/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Ledger owns the set of open positions. Open and Close are the only paths that mutate it.
type Ledger struct {
	logger *logrus.Entry
	cfg    Config
	now    func() time.Time

	mu        sync.Mutex
	nextID    uint
	positions map[uint]*model.Position
}

func New(logger *logrus.Entry, cfg Config) *Ledger {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Ledger{
		logger:    logger.WithField("component", "ledger"),
		cfg:       cfg,
		now:       time.Now,
		positions: make(map[uint]*model.Position),
	}
}

// Open records a new position sized at the configured notional. Target and stop are derived
// from the entry price here and never recomputed.
//
// Long:  target = entry * (1 + TP%), stop = entry * (1 - SL%)
// Short: target = entry * (1 - TP%), stop = entry * (1 + SL%)
func (l *Ledger) Open(symbol string, side model.Side, entryPrice float64, votes []model.Vote) (model.Position, error) {
	if entryPrice <= 0 {
		return model.Position{}, &InvalidPriceError{Symbol: symbol, Price: entryPrice}
	}
	qty := decimal.NewFromFloat(l.cfg.TradeUSD).Div(decimal.NewFromFloat(entryPrice))
	return l.open(symbol, side, entryPrice, qty, votes)
}

// OpenFilled records a position whose entry order was executed on the exchange. The quantity is
// the base amount the exchange reported, so the exit can trade exactly that amount back.
func (l *Ledger) OpenFilled(symbol string, side model.Side, fill model.Fill, votes []model.Vote) (model.Position, error) {
	if fill.Price <= 0 {
		return model.Position{}, &InvalidPriceError{Symbol: symbol, Price: fill.Price}
	}
	if fill.Quantity <= 0 {
		return model.Position{}, fmt.Errorf("%w %v for %s", ErrInvalidQuantity, fill.Quantity, symbol)
	}
	return l.open(symbol, side, fill.Price, decimal.NewFromFloat(fill.Quantity), votes)
}

func (l *Ledger) open(symbol string, side model.Side, entryPrice float64, qty decimal.Decimal, votes []model.Vote) (model.Position, error) {
	entry := decimal.NewFromFloat(entryPrice)
	tp := decimal.NewFromFloat(l.cfg.TPPct).Div(hundred)
	sl := decimal.NewFromFloat(l.cfg.SLPct).Div(hundred)

	var target, stop decimal.Decimal
	switch side {
	case model.SideLong:
		target = entry.Mul(one.Add(tp))
		stop = entry.Mul(one.Sub(sl))
	case model.SideShort:
		target = entry.Mul(one.Sub(tp))
		stop = entry.Mul(one.Add(sl))
	default:
		return model.Position{}, &InvalidSideError{Side: side}
	}

	justifying := make([]model.Vote, len(votes))
	copy(justifying, votes)

	l.mu.Lock()
	l.nextID++
	pos := &model.Position{
		ID:          l.nextID,
		Symbol:      symbol,
		Side:        side,
		EntryPrice:  entryPrice,
		Quantity:    qty.InexactFloat64(),
		TargetPrice: target.InexactFloat64(),
		StopPrice:   stop.InexactFloat64(),
		OpenedAt:    l.now().UTC(),
		Votes:       justifying,
	}
	l.positions[pos.ID] = pos
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"position_id": pos.ID,
		"symbol":      symbol,
		"side":        side,
		"entry":       pos.EntryPrice,
		"qty":         pos.Quantity,
		"tp":          pos.TargetPrice,
		"sl":          pos.StopPrice,
	}).Info("position opened")

	return *pos, nil
}

// EvaluateTrigger reports whether price reached the position's target or stop.
// The target is checked first so the outcome is deterministic if both hold.
//
// Long:  target-hit when price >= target, stop-hit when price <= stop
// Short: target-hit when price <= target, stop-hit when price >= stop
func EvaluateTrigger(pos model.Position, price float64) (model.CloseReason, bool) {
	switch pos.Side {
	case model.SideLong:
		if price >= pos.TargetPrice {
			return model.CloseReasonTargetHit, true
		}
		if price <= pos.StopPrice {
			return model.CloseReasonStopHit, true
		}
	case model.SideShort:
		if price <= pos.TargetPrice {
			return model.CloseReasonTargetHit, true
		}
		if price >= pos.StopPrice {
			return model.CloseReasonStopHit, true
		}
	}
	return "", false
}

// TriggerPrice is the level a triggered position exits at when orders are simulated.
func TriggerPrice(pos model.Position, reason model.CloseReason) (float64, bool) {
	switch reason {
	case model.CloseReasonTargetHit:
		return pos.TargetPrice, true
	case model.CloseReasonStopHit:
		return pos.StopPrice, true
	default:
		return 0, false
	}
}

// Expired reports whether the position has been held for at least the configured maximum.
func (l *Ledger) Expired(pos model.Position, now time.Time) bool {
	if l.cfg.MaxHold <= 0 {
		return false
	}
	return now.Sub(pos.OpenedAt) >= l.cfg.MaxHold
}

// Close removes the position and returns its trade record.
//
// Long:  pnl% = (exit - entry) / entry * 100
// Short: pnl% = (entry - exit) / entry * 100
// pnl$ = notional * pnl% / 100, and the trade is a win only when pnl$ > 0.
func (l *Ledger) Close(id uint, exitPrice float64, reason model.CloseReason) (model.Trade, error) {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return model.Trade{}, &UnknownPositionError{ID: id}
	}
	if exitPrice <= 0 {
		l.mu.Unlock()
		return model.Trade{}, &InvalidPriceError{Symbol: pos.Symbol, Price: exitPrice}
	}
	delete(l.positions, id)
	l.mu.Unlock()

	entry := decimal.NewFromFloat(pos.EntryPrice)
	exit := decimal.NewFromFloat(exitPrice)

	move := exit.Sub(entry)
	if pos.Side == model.SideShort {
		move = entry.Sub(exit)
	}
	pnlPct := move.Div(entry).Mul(hundred)
	pnlUSD := decimal.NewFromFloat(l.cfg.TradeUSD).Mul(pnlPct).Div(hundred)

	result := model.TradeResultLoss
	if pnlUSD.IsPositive() {
		result = model.TradeResultWin
	}

	trade := model.Trade{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		PnlUSD:     pnlUSD.Round(2).InexactFloat64(),
		PnlPct:     pnlPct.Round(4).InexactFloat64(),
		Result:     result,
		Reason:     reason,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   l.now().UTC(),
		Details:    *pos,
	}

	l.logger.WithFields(logrus.Fields{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"side":        pos.Side,
		"exit":        exitPrice,
		"pnl_usd":     trade.PnlUSD,
		"pnl_pct":     trade.PnlPct,
		"result":      result,
		"reason":      reason,
	}).Info("position closed")

	return trade, nil
}

// Positions returns a copy of every open position ordered by id.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Notional is the quote-currency size of every position.
func (l *Ledger) Notional() float64 {
	return l.cfg.TradeUSD
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Exposed reports whether any open position exists for symbol.
func (l *Ledger) Exposed(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}
