package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"billing-reconciler/core/database"
	"billing-reconciler/feature/reconciliation/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no snapshot exists for an external id.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the locally persisted representation of a resource's
// current state, subject to drift from the authoritative source.
type Snapshot struct {
	ExternalID string
	AccountID  string
	Status     string
	Amount     decimal.Decimal
	Metadata   json.RawMessage
}

// Store is the resource snapshot adapter the engine reads local state
// through. It also serves the premium engine's aggregate queries.
type Store interface {
	// GetByExternalID returns the snapshot for an external resource id,
	// or ErrNotFound.
	GetByExternalID(ctx context.Context, externalID string) (*Snapshot, error)
	// SumCollected aggregates qualifying collected-premium transfers in
	// the window into a total and a distinct account count.
	SumCollected(ctx context.Context, from, to time.Time, includePending bool) (decimal.Decimal, int64, error)
}

// GormStore reads snapshots from the transfers table owned by the
// dashboard application.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a snapshot store backed by the given connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// GetByExternalID implements Store.
func (s *GormStore) GetByExternalID(ctx context.Context, externalID string) (*Snapshot, error) {
	var t models.Transfer
	err := s.db.WithContext(ctx).First(&t, "external_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", externalID, err)
	}

	return &Snapshot{
		ExternalID: t.ExternalID,
		AccountID:  t.AccountID,
		Status:     t.Status,
		Amount:     t.Amount,
		Metadata:   t.Metadata,
	}, nil
}

// SumCollected implements Store. Completed transfers always qualify;
// pending ones only when includePending is set.
func (s *GormStore) SumCollected(ctx context.Context, from, to time.Time, includePending bool) (decimal.Decimal, int64, error) {
	statuses := []string{"completed"}
	if includePending {
		statuses = append(statuses, "pending")
	}

	type aggregate struct {
		Total    decimal.Decimal
		Accounts int64
	}
	var agg aggregate
	err := s.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(DISTINCT account_id) AS accounts").
		Where("status IN ?", statuses).
		Where("created_at >= ? AND created_at < ?", from, to).
		Scan(&agg).Error
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to aggregate collected premium: %w", err)
	}
	return agg.Total, agg.Accounts, nil
}

// requiredColumns are the transfers columns the engine reads.
var requiredColumns = []string{"external_id", "account_id", "status", "amount"}

// VerifySchema checks that the externally owned transfers table carries
// the columns the engine depends on, so a run fails fast at setup
// instead of midway through.
func (s *GormStore) VerifySchema(ctx context.Context) error {
	columns, err := database.GetTableColumns(s.db.WithContext(ctx), models.Transfer{}.TableName())
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(columns))
	for _, col := range columns {
		present[col.Field] = true
	}
	for _, name := range requiredColumns {
		if !present[name] {
			return fmt.Errorf("transfers table is missing required column %s", name)
		}
	}
	return nil
}
