package store

import (
	"context"
	"fmt"

	"billing-reconciler/feature/reconciliation/models"

	"gorm.io/gorm"
)

// CheckStore provides CRUD over reconciliation check records.
type CheckStore struct {
	db *gorm.DB
}

// NewCheckStore creates a check store backed by the given connection.
func NewCheckStore(db *gorm.DB) *CheckStore {
	return &CheckStore{db: db}
}

// CreateCheck persists a new check record.
func (s *CheckStore) CreateCheck(ctx context.Context, check *models.ReconciliationCheck) error {
	if err := s.db.WithContext(ctx).Create(check).Error; err != nil {
		return fmt.Errorf("failed to create check: %w", err)
	}
	return nil
}

// FindChecksByJob returns all checks tagged with the given job, with
// their unresolved discrepancies preloaded.
func (s *CheckStore) FindChecksByJob(ctx context.Context, jobID string) ([]models.ReconciliationCheck, error) {
	var checks []models.ReconciliationCheck
	err := s.db.WithContext(ctx).
		Preload("Discrepancies", "resolved = ?", false).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&checks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find checks for job %s: %w", jobID, err)
	}
	return checks, nil
}

// CountChecksByOutcome returns the per-outcome aggregate for a job so
// match counts stay retrievable even when individual matches are noise.
func (s *CheckStore) CountChecksByOutcome(ctx context.Context, jobID string) (map[string]int64, error) {
	type row struct {
		Outcome string
		Total   int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&models.ReconciliationCheck{}).
		Select("outcome, COUNT(*) AS total").
		Where("job_id = ?", jobID).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count checks for job %s: %w", jobID, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.Total
	}
	return counts, nil
}
