package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-reconciler/feature/reconciliation/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WatermarkStore persists the per-check event cursor.
type WatermarkStore struct {
	db *gorm.DB
}

// NewWatermarkStore creates a watermark store backed by the given
// connection.
func NewWatermarkStore(db *gorm.DB) *WatermarkStore {
	return &WatermarkStore{db: db}
}

// GetWatermark returns the last successful event timestamp for a check,
// or nil when the check has never completed.
func (s *WatermarkStore) GetWatermark(ctx context.Context, checkName string) (*time.Time, error) {
	var wm models.CheckWatermark
	err := s.db.WithContext(ctx).First(&wm, "check_name = ?", checkName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark for %s: %w", checkName, err)
	}
	t := wm.LastEventAt
	return &t, nil
}

// PutWatermark upserts the cursor for a check.
func (s *WatermarkStore) PutWatermark(ctx context.Context, checkName string, lastEventAt time.Time) error {
	wm := models.CheckWatermark{
		CheckName:   checkName,
		LastEventAt: lastEventAt,
		UpdatedAt:   time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "check_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_event_at", "updated_at"}),
		}).
		Create(&wm).Error
	if err != nil {
		return fmt.Errorf("failed to put watermark for %s: %w", checkName, err)
	}
	return nil
}
