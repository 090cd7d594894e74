package scheduler

import (
	"context"

	"consensusbot/src/model"
)

// PriceSource returns the current price of a symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// OrderExecutor places market orders. Entries are sized in USD, exits by the base quantity the
// entry filled.
type OrderExecutor interface {
	ExecuteMarketOrder(ctx context.Context, symbol string, side model.Action, notionalUSD float64) (model.Fill, error)
	ExecuteMarketQuantity(ctx context.Context, symbol string, side model.Action, quantity float64) (model.Fill, error)
}

// Collector gathers the panel's votes for one symbol. Failing sources are already left out.
type Collector interface {
	Collect(ctx context.Context, symbol string) []model.Vote
}

// Sink receives everything the scheduler produces.
type Sink interface {
	SaveTrade(ctx context.Context, trade *model.Trade) error
	SaveWeights(ctx context.Context, weights map[string]float64) error
	SaveHistory(ctx context.Context, rows []model.EngineHistory) error
	SaveOrderExecution(ctx context.Context, entry *model.OrderExecutionLog) error
	SaveException(ctx context.Context, exc *model.Exception) error
	CountTrades(ctx context.Context) (int64, error)
}

type nopSink struct{}

func (nopSink) SaveTrade(context.Context, *model.Trade) error                      { return nil }
func (nopSink) SaveWeights(context.Context, map[string]float64) error              { return nil }
func (nopSink) SaveHistory(context.Context, []model.EngineHistory) error           { return nil }
func (nopSink) SaveOrderExecution(context.Context, *model.OrderExecutionLog) error { return nil }
func (nopSink) SaveException(context.Context, *model.Exception) error              { return nil }
func (nopSink) CountTrades(context.Context) (int64, error)                         { return 0, nil }
