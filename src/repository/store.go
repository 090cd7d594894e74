package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"consensusbot/src/model"
)

// Store bundles the repositories the scheduler writes to.
type Store struct {
	Trades     *TradeRepository
	Weights    *EngineWeightRepository
	History    *EngineHistoryRepository
	Orders     *OrderExecutionRepository
	Exceptions *ExceptionRepository
}

// NewMainStore builds the repositories on database.MainDB. InitMainDB must have run first.
func NewMainStore() *Store {
	return &Store{
		Trades:     NewTradeRepository(),
		Weights:    NewEngineWeightRepository(),
		History:    NewEngineHistoryRepository(),
		Orders:     NewOrderExecutionRepository(),
		Exceptions: NewExceptionRepository(),
	}
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		Trades:     NewTradeRepositoryWithDB(db),
		Weights:    NewEngineWeightRepositoryWithDB(db),
		History:    NewEngineHistoryRepositoryWithDB(db),
		Orders:     NewOrderExecutionRepositoryWithDB(db),
		Exceptions: NewExceptionRepositoryWithDB(db),
	}
}

func (s *Store) SaveTrade(ctx context.Context, trade *model.Trade) error {
	return s.Trades.Create(ctx, trade)
}

func (s *Store) SaveWeights(ctx context.Context, weights map[string]float64) error {
	return s.Weights.Upsert(ctx, weights)
}

func (s *Store) SaveHistory(ctx context.Context, rows []model.EngineHistory) error {
	return s.History.CreateBatch(ctx, rows)
}

func (s *Store) SaveOrderExecution(ctx context.Context, entry *model.OrderExecutionLog) error {
	return s.Orders.Create(ctx, entry)
}

func (s *Store) SaveException(ctx context.Context, exc *model.Exception) error {
	return s.Exceptions.Create(ctx, exc)
}

func (s *Store) CountTrades(ctx context.Context) (int64, error) {
	return s.Trades.Count(ctx)
}

// LoadWeights seeds missing sources with defaultWeight and returns every stored weight.
func (s *Store) LoadWeights(ctx context.Context, sources []string, defaultWeight float64) (map[string]float64, error) {
	if err := s.Weights.EnsureDefaults(ctx, sources, defaultWeight); err != nil {
		return nil, fmt.Errorf("seed engine weights: %w", err)
	}
	return s.Weights.LoadAll(ctx)
}
