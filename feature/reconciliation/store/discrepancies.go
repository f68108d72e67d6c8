package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"billing-reconciler/feature/reconciliation/models"

	"gorm.io/gorm"
)

// DiscrepancyStore provides CRUD over discrepancy records. It enforces
// the single-active invariant: at most one unresolved discrepancy per
// (resourceType, resourceID, field).
type DiscrepancyStore struct {
	db *gorm.DB
}

// NewDiscrepancyStore creates a discrepancy store backed by the given
// connection.
func NewDiscrepancyStore(db *gorm.DB) *DiscrepancyStore {
	return &DiscrepancyStore{db: db}
}

// CreateDiscrepancy persists a discrepancy unless an unresolved one
// already exists for the same (resourceType, resourceID, field). It
// returns the effective record and whether a new row was created.
func (s *DiscrepancyStore) CreateDiscrepancy(ctx context.Context, d *models.ReconciliationDiscrepancy) (*models.ReconciliationDiscrepancy, bool, error) {
	var existing models.ReconciliationDiscrepancy
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("resource_type = ? AND resource_id = ? AND field = ? AND resolved = ?",
				d.ResourceType, d.ResourceID, d.Field, false).
			First(&existing).Error
		if err == nil {
			// Prior unresolved discrepancy still stands; no duplicate.
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up existing discrepancy: %w", err)
		}

		if err := tx.Create(d).Error; err != nil {
			return fmt.Errorf("failed to create discrepancy: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		return d, true, nil
	}
	return &existing, false, nil
}

// GetDiscrepancy returns the discrepancy with the given id, or ErrNotFound.
func (s *DiscrepancyStore) GetDiscrepancy(ctx context.Context, id string) (*models.ReconciliationDiscrepancy, error) {
	var d models.ReconciliationDiscrepancy
	err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discrepancy %s: %w", id, err)
	}
	return &d, nil
}

// ResolveDiscrepancy marks a discrepancy resolved. The resolved check is
// authoritative at write time: the conditional UPDATE ensures two
// resolutions can never race on the same id.
func (s *DiscrepancyStore) ResolveDiscrepancy(ctx context.Context, id, resolvedBy, resolutionType string, details json.RawMessage) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.ReconciliationDiscrepancy{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{
			"resolved":           true,
			"resolved_at":        now,
			"resolved_by":        resolvedBy,
			"resolution_type":    resolutionType,
			"resolution_details": details,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to resolve discrepancy %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		// Either missing or already resolved; disambiguate for the caller.
		if _, err := s.GetDiscrepancy(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}
