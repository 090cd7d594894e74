package repository

import (
	"context"
	"sort"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"consensusbot/src/database"
	"consensusbot/src/model"
)

// EngineWeightRepository persists the learned weight of each signal source.
type EngineWeightRepository struct {
	db *gorm.DB
}

func NewEngineWeightRepository() *EngineWeightRepository {
	return &EngineWeightRepository{db: database.MainDB}
}

func NewEngineWeightRepositoryWithDB(db *gorm.DB) *EngineWeightRepository {
	return &EngineWeightRepository{db: db}
}

// FindAll returns every stored weight, heaviest first.
func (r *EngineWeightRepository) FindAll(ctx context.Context) ([]model.EngineWeight, error) {
	var rows []model.EngineWeight
	if err := r.db.WithContext(ctx).Order("weight DESC, engine ASC").Find(&rows).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "EngineWeightRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to fetch engine weights")

		return nil, err
	}
	return rows, nil
}

// LoadAll returns the stored weights keyed by source.
func (r *EngineWeightRepository) LoadAll(ctx context.Context) (map[string]float64, error) {
	rows, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.Source] = row.Weight
	}
	return out, nil
}

// EnsureDefaults inserts weight for every source that has no row yet. Existing rows are left alone.
func (r *EngineWeightRepository) EnsureDefaults(ctx context.Context, sources []string, weight float64) error {
	if len(sources) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]model.EngineWeight, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, model.EngineWeight{Source: src, Weight: weight, UpdatedAt: now})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "engine"}},
			DoNothing: true,
		}).
		Create(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "EngineWeightRepository",
			"op":      "EnsureDefaults",
			"sources": len(sources),
		}).WithError(err).Error("Failed to seed engine weights")
	}
	return err
}

// Upsert writes the given weights, replacing existing values.
func (r *EngineWeightRepository) Upsert(ctx context.Context, weights map[string]float64) error {
	if len(weights) == 0 {
		return nil
	}

	sources := make([]string, 0, len(weights))
	for src := range weights {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	now := time.Now().UTC()
	rows := make([]model.EngineWeight, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, model.EngineWeight{Source: src, Weight: weights[src], UpdatedAt: now})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "engine"}},
			DoUpdates: clause.AssignmentColumns([]string{"weight", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "EngineWeightRepository",
			"op":      "Upsert",
			"sources": sources,
		}).WithError(err).Error("Failed to upsert engine weights")
	}
	return err
}
