package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"consensusbot/src/database"
	"consensusbot/src/model"
)

// OrderExecutionRepository stores the audit trail of live market orders.
type OrderExecutionRepository struct {
	db *gorm.DB
}

func NewOrderExecutionRepository() *OrderExecutionRepository {
	return &OrderExecutionRepository{db: database.MainDB}
}

func NewOrderExecutionRepositoryWithDB(db *gorm.DB) *OrderExecutionRepository {
	return &OrderExecutionRepository{db: db}
}

func (r *OrderExecutionRepository) Create(ctx context.Context, logEntry *model.OrderExecutionLog) error {
	logger.WithFields(map[string]interface{}{
		"repo":      "OrderExecutionRepository",
		"op":        "Create",
		"symbol":    logEntry.Symbol,
		"order_dir": logEntry.OrderDir,
		"status":    logEntry.Status,
	}).Debug("Creating execution log")

	err := r.db.WithContext(ctx).Create(logEntry).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderExecutionRepository",
			"op":     "Create",
			"symbol": logEntry.Symbol,
		}).WithError(err).Error("Failed to create execution log")

		return err
	}
	return nil
}

func (r *OrderExecutionRepository) FindLatest(ctx context.Context, limit int) ([]model.OrderExecutionLog, error) {
	if limit <= 0 {
		limit = 20
	}

	var logs []model.OrderExecutionLog
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
