package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"consensusbot/src/database"
	"consensusbot/src/model"
)

// TradeRepository reads and writes closed trades.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main database.
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

func NewTradeRepositoryWithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// TradeSummary aggregates the trade table for reporting.
type TradeSummary struct {
	Total  int64   `json:"total"`
	Wins   int64   `json:"wins"`
	Losses int64   `json:"losses"`
	PnlUSD float64 `json:"pnl_usd"`
}

// Create inserts a trade. The given trade is updated with the generated ID.
func (r *TradeRepository) Create(ctx context.Context, trade *model.Trade) error {
	err := r.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "TradeRepository",
			"op":          "Create",
			"position_id": trade.PositionID,
			"symbol":      trade.Symbol,
		}).WithError(err).Error("Failed to create trade")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "Create",
		"trade_id": trade.ID,
		"symbol":   trade.Symbol,
		"result":   trade.Result,
	}).Debug("Trade stored")

	return nil
}

// FindLatest returns the latest trades, newest first. An empty symbol matches every symbol.
func (r *TradeRepository) FindLatest(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 20
	}

	q := r.db.WithContext(ctx)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}

	var trades []model.Trade
	err := q.Order("closed_at DESC, id DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeRepository",
			"op":     "FindLatest",
			"symbol": symbol,
			"limit":  limit,
		}).WithError(err).Error("Failed to fetch latest trades")

		return nil, err
	}

	return trades, nil
}

func (r *TradeRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Trade{}).Count(&n).Error
	return n, err
}

func (r *TradeRepository) Summary(ctx context.Context) (TradeSummary, error) {
	var s TradeSummary
	err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0) AS wins, "+
				"COALESCE(SUM(CASE WHEN result = ? THEN 1 ELSE 0 END), 0) AS losses, "+
				"COALESCE(SUM(pnl_usd), 0) AS pnl_usd",
			model.TradeResultWin, model.TradeResultLoss,
		).
		Scan(&s).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "Summary",
		}).WithError(err).Error("Failed to summarize trades")

		return TradeSummary{}, err
	}
	return s, nil
}
