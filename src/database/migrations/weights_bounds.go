package migrations

import (
	"consensusbot/src/model"
	"consensusbot/src/weights"

	"gorm.io/gorm"
)

// clampEngineWeights pulls rows written before the [0.1, 20] bounds existed back into range.
func clampEngineWeights(db *gorm.DB) error {
	if err := db.Model(&model.EngineWeight{}).
		Where("weight < ?", weights.MinWeight).
		Update("weight", weights.MinWeight).Error; err != nil {
		return err
	}

	return db.Model(&model.EngineWeight{}).
		Where("weight > ?", weights.MaxWeight).
		Update("weight", weights.MaxWeight).Error
}

// backfillTradeReason labels trades recorded without a close reason by comparing the exit with
// the stored target and stop levels.
func backfillTradeReason(db *gorm.DB) error {
	var trades []model.Trade
	if err := db.Where("reason IS NULL OR reason = ''").Find(&trades).Error; err != nil {
		return err
	}

	for _, t := range trades {
		reason := model.CloseReasonTimeout
		switch {
		case t.Details.TargetPrice > 0 && t.ExitPrice == t.Details.TargetPrice:
			reason = model.CloseReasonTargetHit
		case t.Details.StopPrice > 0 && t.ExitPrice == t.Details.StopPrice:
			reason = model.CloseReasonStopHit
		}

		if err := db.Model(&model.Trade{}).
			Where("id = ?", t.ID).
			Update("reason", reason).Error; err != nil {
			return err
		}
	}
	return nil
}
