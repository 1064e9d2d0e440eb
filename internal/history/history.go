// Package history persists finished session summaries.
package history

import (
	"errors"
	"fmt"

	"github.com/daryaKuto/glowrange/internal/models"
	"gorm.io/gorm"
)

// Save results.
const (
	ResultCreated = "created"
	ResultUpdated = "updated"
)

// Save upserts a session record by gameId and returns whether it was created
// or updated. On update the previous device stat rows are replaced.
func Save(db *gorm.DB, rec *models.SessionRecord) (string, error) {
	if rec == nil || rec.GameID == "" {
		return "", fmt.Errorf("history: record with gameId is required")
	}

	var existing models.SessionRecord
	err := db.Where("game_id = ?", rec.GameID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(rec).Error; err != nil {
			return "", fmt.Errorf("history: create %s: %w", rec.GameID, err)
		}
		return ResultCreated, nil
	case err != nil:
		return "", fmt.Errorf("history: lookup %s: %w", rec.GameID, err)
	}

	rec.ID = existing.ID
	txErr := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", existing.ID).Delete(&models.SessionDeviceStat{}).Error; err != nil {
			return err
		}
		for i := range rec.DeviceStats {
			rec.DeviceStats[i].ID = 0
			rec.DeviceStats[i].SessionID = existing.ID
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(rec).Error
	})
	if txErr != nil {
		return "", fmt.Errorf("history: update %s: %w", rec.GameID, txErr)
	}
	return ResultUpdated, nil
}

// Fetch returns session records newest-first, with device stats preloaded.
// limit <= 0 means no limit.
func Fetch(db *gorm.DB, limit int) ([]models.SessionRecord, error) {
	q := db.Preload("DeviceStats").Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []models.SessionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("history: fetch: %w", err)
	}
	return recs, nil
}

// Get returns one session by gameId.
func Get(db *gorm.DB, gameID string) (*models.SessionRecord, error) {
	if gameID == "" {
		return nil, fmt.Errorf("history: gameId is required")
	}
	var rec models.SessionRecord
	if err := db.Preload("DeviceStats").Where("game_id = ?", gameID).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("history: get %s: %w", gameID, err)
	}
	return &rec, nil
}
