package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"consensusbot/src/database"
	"consensusbot/src/model"
)

type EngineHistoryRepository struct {
	db *gorm.DB
}

func NewEngineHistoryRepository() *EngineHistoryRepository {
	return &EngineHistoryRepository{db: database.MainDB}
}

func NewEngineHistoryRepositoryWithDB(db *gorm.DB) *EngineHistoryRepository {
	return &EngineHistoryRepository{db: db}
}

func (r *EngineHistoryRepository) CreateBatch(ctx context.Context, rows []model.EngineHistory) error {
	if len(rows) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "EngineHistoryRepository",
			"op":   "CreateBatch",
			"rows": len(rows),
		}).WithError(err).Error("Failed to store engine history")

		return err
	}
	return nil
}

// FindBySource returns the latest attribution rows of one source, newest first.
func (r *EngineHistoryRepository) FindBySource(ctx context.Context, source string, limit int) ([]model.EngineHistory, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []model.EngineHistory
	err := r.db.WithContext(ctx).
		Where("engine = ?", source).
		Order("time DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
