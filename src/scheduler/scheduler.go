package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"consensusbot/src/aggregator"
	"consensusbot/src/ledger"
	"consensusbot/src/model"
	"consensusbot/src/weights"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const serviceName = "scheduler"

// Deps are the collaborators a Scheduler drives. Orders is optional: without it positions are
// simulated at the quoted price. Sink is optional too.
type Deps struct {
	Panel   Collector
	Ledger  *ledger.Ledger
	Weights *weights.Store
	Prices  PriceSource
	Orders  OrderExecutor
	Sink    Sink
}

// Scheduler runs the decision cycle: check open positions, collect votes, open positions, wait.
type Scheduler struct {
	logger *logrus.Entry
	cfg    Config
	deps   Deps
	tracer trace.Tracer

	interval time.Duration
	now      func() time.Time

	state  atomic.Value
	cycles atomic.Uint64
}

// Report summarises one cycle.
type Report struct {
	ID        string
	Closed    []model.Trade
	Opened    []model.Position
	Decisions map[string]model.Decision
	Skipped   int // positions or symbols left for the next cycle because a collaborator failed
}

// orderRequest is one market order. Quantity, when set, takes precedence over Notional.
type orderRequest struct {
	symbol     string
	posSide    model.Side
	action     model.Action
	notional   float64
	quantity   float64
	quoted     float64
	dir        string
	positionID *uint
}

type symbolDecision struct {
	symbol   string
	votes    []model.Vote
	decision model.Decision
}

func New(log *logrus.Entry, cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Panel == nil || deps.Ledger == nil || deps.Weights == nil || deps.Prices == nil {
		return nil, errors.New("scheduler needs a panel, a ledger, a weight store and a price source")
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("scheduler needs at least one symbol")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	s := &Scheduler{
		logger:   log.WithField("component", serviceName),
		cfg:      cfg,
		deps:     deps,
		tracer:   otel.Tracer("consensusbot/scheduler"),
		interval: cfg.Interval(),
		now:      time.Now,
	}
	s.state.Store(StateIdle)
	return s, nil
}

func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

func (s *Scheduler) setState(st State) {
	s.state.Store(st)
}

// Cycles returns the number of completed cycles.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

func (s *Scheduler) Live() bool {
	return s.deps.Orders != nil
}

// Run executes cycles until ctx is cancelled. A cycle that has started always completes.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"symbols":  s.cfg.Symbols,
		"interval": s.interval.String(),
		"live":     s.Live(),
	}).Info("scheduler started")
	defer s.setState(StateIdle)

	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}

		s.RunCycle(ctx)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle performs exactly one cycle. Each phase is joined before the next one starts.
func (s *Scheduler) RunCycle(ctx context.Context) Report {
	report := Report{ID: uuid.NewString(), Decisions: map[string]model.Decision{}}
	n := s.cycles.Load() + 1

	ctx, span := s.tracer.Start(ctx, "cycle", trace.WithAttributes(
		attribute.String("cycle.id", report.ID),
		attribute.Int64("cycle.number", int64(n)),
	))
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(logrus.Fields{"cycle_id": report.ID, "cycle": n})
	log.Debug("cycle started")

	s.setState(StateCheckingPositions)
	s.checkPositions(ctx, log, &report)

	s.setState(StateCollectingSignals)
	decisions := s.collectSignals(ctx, log)
	for _, d := range decisions {
		report.Decisions[d.symbol] = d.decision
	}

	s.setState(StateOpeningPositions)
	s.openPositions(ctx, log, decisions, &report)

	s.cycles.Store(n)
	span.SetAttributes(
		attribute.Int("cycle.closed", len(report.Closed)),
		attribute.Int("cycle.opened", len(report.Opened)),
		attribute.Int("cycle.skipped", report.Skipped),
	)

	if every := s.cfg.HousekeepingEvery; every > 0 && n%uint64(every) == 0 {
		s.housekeeping(ctx, log)
	}

	log.WithFields(logrus.Fields{
		"closed":  len(report.Closed),
		"opened":  len(report.Opened),
		"skipped": report.Skipped,
	}).Info("cycle finished")

	s.setState(StateWaiting)
	return report
}

// fetchPrices quotes every symbol concurrently. Symbols whose quote failed are missing from
// the result.
func (s *Scheduler) fetchPrices(ctx context.Context, log *logrus.Entry, symbols []string) map[string]float64 {
	var mu sync.Mutex
	prices := make(map[string]float64, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, sym := range symbols {
		g.Go(func() error {
			p, err := s.deps.Prices.Price(gctx, sym)
			if err == nil && p <= 0 {
				err = fmt.Errorf("non-positive price %v", p)
			}
			if err != nil {
				log.WithError(err).WithField("symbol", sym).Warn("price unavailable, skipping")
				s.recordException(ctx, "price_source", "Price", err, map[string]interface{}{"symbol": sym})
				return nil
			}
			mu.Lock()
			prices[sym] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return prices
}

func (s *Scheduler) checkPositions(ctx context.Context, log *logrus.Entry, report *Report) {
	positions := s.deps.Ledger.Positions()
	if len(positions) == 0 {
		return
	}

	ctx, span := s.tracer.Start(ctx, "check-positions", trace.WithAttributes(attribute.Int("positions", len(positions))))
	defer span.End()

	symbols := make([]string, 0, len(positions))
	seen := map[string]bool{}
	for _, p := range positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	prices := s.fetchPrices(ctx, log, symbols)

	now := s.now()
	for _, pos := range positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			report.Skipped++
			continue
		}

		reason, hit := ledger.EvaluateTrigger(pos, price)
		if !hit && s.deps.Ledger.Expired(pos, now) {
			reason, hit = model.CloseReasonTimeout, true
		}
		if !hit {
			continue
		}

		trade, err := s.closePosition(ctx, log, pos, reason, price)
		if err != nil {
			report.Skipped++
			continue
		}
		report.Closed = append(report.Closed, trade)
	}
}

func (s *Scheduler) closePosition(ctx context.Context, log *logrus.Entry, pos model.Position, reason model.CloseReason, price float64) (model.Trade, error) {
	log = log.WithFields(logrus.Fields{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"side":        pos.Side,
		"reason":      reason,
	})

	exit := price
	if reason != model.CloseReasonTimeout {
		if level, ok := ledger.TriggerPrice(pos, reason); ok {
			exit = level
		}
	}

	if s.Live() {
		side := model.ActionSell
		if pos.Side == model.SideShort {
			side = model.ActionBuy
		}
		posID := pos.ID
		fill, err := s.executeOrder(ctx, orderRequest{
			symbol:     pos.Symbol,
			posSide:    pos.Side,
			action:     side,
			notional:   pos.Quantity * price,
			quantity:   pos.Quantity,
			quoted:     price,
			dir:        model.OrderDirectionExit,
			positionID: &posID,
		})
		if err != nil {
			log.WithError(err).Warn("exit order failed, position stays open")
			return model.Trade{}, err
		}
		exit = fill.Price
	}

	trade, err := s.deps.Ledger.Close(pos.ID, exit, reason)
	if err != nil {
		log.WithError(err).Error("close failed")
		s.recordException(ctx, "ledger", "Close", err, map[string]interface{}{"position_id": pos.ID, "exit": exit})
		return model.Trade{}, err
	}

	if err := s.deps.Sink.SaveTrade(ctx, &trade); err != nil {
		log.WithError(err).Error("failed to persist trade")
		s.recordException(ctx, "sink", "SaveTrade", err, map[string]interface{}{"position_id": pos.ID})
	}

	changed, history := s.deps.Weights.Apply(trade, pos.Votes)
	if err := s.deps.Sink.SaveWeights(ctx, changed); err != nil {
		log.WithError(err).Error("failed to persist weights")
		s.recordException(ctx, "sink", "SaveWeights", err, nil)
	}
	if err := s.deps.Sink.SaveHistory(ctx, history); err != nil {
		log.WithError(err).Error("failed to persist engine history")
		s.recordException(ctx, "sink", "SaveHistory", err, nil)
	}

	log.WithFields(logrus.Fields{
		"pnl_usd":         trade.PnlUSD,
		"result":          trade.Result,
		"weights_updated": len(changed),
	}).Info("trade closed")

	return trade, nil
}

func (s *Scheduler) collectSignals(ctx context.Context, log *logrus.Entry) []symbolDecision {
	ctx, span := s.tracer.Start(ctx, "collect-signals", trace.WithAttributes(attribute.Int("symbols", len(s.cfg.Symbols))))
	defer span.End()

	out := make([]symbolDecision, len(s.cfg.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, sym := range s.cfg.Symbols {
		g.Go(func() error {
			votes := s.deps.Panel.Collect(gctx, sym)
			decision := aggregator.Decide(votes)
			out[i] = symbolDecision{symbol: sym, votes: votes, decision: decision}

			log.WithFields(logrus.Fields{
				"symbol":   sym,
				"votes":    len(votes),
				"decision": decision.Action,
				"buy":      decision.Counts[model.ActionBuy],
				"sell":     decision.Counts[model.ActionSell],
				"hold":     decision.Counts[model.ActionHold],
			}).Info("decision")
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *Scheduler) openPositions(ctx context.Context, log *logrus.Entry, decisions []symbolDecision, report *Report) {
	ctx, span := s.tracer.Start(ctx, "open-positions")
	defer span.End()

	var actionable []symbolDecision
	for _, d := range decisions {
		if _, ok := model.SideForAction(d.decision.Action); !ok {
			continue
		}
		if s.deps.Ledger.Exposed(d.symbol) {
			if s.cfg.SkipIfExposed {
				log.WithField("symbol", d.symbol).Info("already exposed, skipping")
				continue
			}
			log.WithField("symbol", d.symbol).Warn("already exposed, adding another position")
		}
		actionable = append(actionable, d)
	}
	if len(actionable) == 0 {
		return
	}

	var prices map[string]float64
	if !s.Live() {
		symbols := make([]string, 0, len(actionable))
		for _, d := range actionable {
			symbols = append(symbols, d.symbol)
		}
		prices = s.fetchPrices(ctx, log, symbols)
	}

	for _, d := range actionable {
		side, _ := model.SideForAction(d.decision.Action)
		symLog := log.WithFields(logrus.Fields{"symbol": d.symbol, "side": side})

		var (
			pos model.Position
			err error
		)
		if s.Live() {
			fill, oerr := s.executeOrder(ctx, orderRequest{
				symbol:   d.symbol,
				posSide:  side,
				action:   d.decision.Action,
				notional: s.deps.Ledger.Notional(),
				dir:      model.OrderDirectionEntry,
			})
			if oerr != nil {
				symLog.WithError(oerr).Warn("entry order failed, skipping symbol this cycle")
				report.Skipped++
				continue
			}
			pos, err = s.deps.Ledger.OpenFilled(d.symbol, side, fill, d.votes)
		} else {
			p, ok := prices[d.symbol]
			if !ok {
				report.Skipped++
				continue
			}
			pos, err = s.deps.Ledger.Open(d.symbol, side, p, d.votes)
		}
		if err != nil {
			symLog.WithError(err).Error("open failed")
			s.recordException(ctx, "ledger", "Open", err, map[string]interface{}{"symbol": d.symbol})
			report.Skipped++
			continue
		}

		voters := make(map[string]float64, len(pos.Votes))
		for _, v := range pos.Votes {
			voters[v.Source] = s.deps.Weights.Get(v.Source)
		}
		symLog.WithFields(logrus.Fields{
			"position_id": pos.ID,
			"weights":     voters,
		}).Debug("voter weights at open")

		report.Opened = append(report.Opened, pos)
	}
}

// executeOrder sends one market order and writes its audit row whatever the outcome.
func (s *Scheduler) executeOrder(ctx context.Context, req orderRequest) (model.Fill, error) {
	requestedAt := s.now().UTC()

	var (
		fill   model.Fill
		err    error
		method = "ExecuteMarketOrder"
	)
	if req.quantity > 0 {
		method = "ExecuteMarketQuantity"
		fill, err = s.deps.Orders.ExecuteMarketQuantity(ctx, req.symbol, req.action, req.quantity)
	} else {
		fill, err = s.deps.Orders.ExecuteMarketOrder(ctx, req.symbol, req.action, req.notional)
	}

	entry := &model.OrderExecutionLog{
		PositionID:     req.positionID,
		Symbol:         req.symbol,
		Side:           req.posSide,
		OrderDir:       req.dir,
		NotionalUSD:    req.notional,
		RequestedPrice: req.quoted,
		Status:         model.OrderExecutionStatusFilled,
		RequestedAt:    requestedAt,
	}
	if err == nil && (fill.Price <= 0 || fill.Quantity <= 0) {
		err = fmt.Errorf("order filled with non-positive price %v or quantity %v", fill.Price, fill.Quantity)
	}
	if err != nil {
		msg := err.Error()
		entry.Status = model.OrderExecutionStatusError
		entry.ErrorMessage = &msg
		s.recordException(ctx, "order_executor", method, err, map[string]interface{}{
			"symbol":    req.symbol,
			"order_dir": req.dir,
		})
	} else {
		entry.FillPrice = &fill.Price
		entry.FillQuantity = &fill.Quantity
	}

	if serr := s.deps.Sink.SaveOrderExecution(ctx, entry); serr != nil {
		s.logger.WithError(serr).WithField("symbol", req.symbol).Error("failed to persist order execution log")
	}

	if err != nil {
		return model.Fill{}, err
	}
	return fill, nil
}

func (s *Scheduler) housekeeping(ctx context.Context, log *logrus.Entry) {
	positions := s.deps.Ledger.Positions()
	bySymbol := map[string]int{}
	for _, p := range positions {
		bySymbol[p.Symbol]++
	}
	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	fields := logrus.Fields{
		"open_positions": len(positions),
		"open_symbols":   symbols,
	}
	if n, err := s.deps.Sink.CountTrades(ctx); err != nil {
		log.WithError(err).Warn("failed to count trades")
	} else {
		fields["trades"] = n
	}
	log.WithFields(fields).Info("housekeeping")
}

// recordException stores a swallowed failure. It never fails the caller.
func (s *Scheduler) recordException(ctx context.Context, module, method string, err error, extra map[string]interface{}) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, module+"."+method)
	}

	exc := &model.Exception{
		Service:   serviceName,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Level:     "warn",
		CreatedAt: s.now().UTC(),
	}
	if len(extra) > 0 {
		if raw, jerr := json.Marshal(extra); jerr == nil {
			exc.Context = string(raw)
		}
	}

	if serr := s.deps.Sink.SaveException(ctx, exc); serr != nil {
		s.logger.WithError(serr).WithFields(logrus.Fields{
			"module": module,
			"method": method,
		}).Error("failed to persist exception")
	}
}
