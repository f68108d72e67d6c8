package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-reconciler/feature/reconciliation/models"

	"gorm.io/gorm"
)

// JobStore provides CRUD over reconciliation job records.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a job store backed by the given connection.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// JobFilter narrows FindMany results. Zero values are ignored.
type JobFilter struct {
	Type          models.JobType
	Statuses      []models.JobStatus
	BillingPeriod string
	CreatedAfter  time.Time
}

// CreateJob persists a new job record.
func (s *JobStore) CreateJob(ctx context.Context, job *models.ReconciliationJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// UpdateJob applies a patch to the job with the given id.
func (s *JobStore) UpdateJob(ctx context.Context, id string, patch map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&models.ReconciliationJob{}).
		Where("id = ?", id).
		Updates(patch)
	if result.Error != nil {
		return fmt.Errorf("failed to update job %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindJobs returns jobs matching the filter, newest first.
func (s *JobStore) FindJobs(ctx context.Context, filter JobFilter) ([]models.ReconciliationJob, error) {
	q := s.db.WithContext(ctx).Model(&models.ReconciliationJob{})

	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.BillingPeriod != "" {
		q = q.Where("billing_period = ?", filter.BillingPeriod)
	}
	if !filter.CreatedAfter.IsZero() {
		q = q.Where("created_at >= ?", filter.CreatedAfter)
	}

	var jobs []models.ReconciliationJob
	if err := q.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to find jobs: %w", err)
	}
	return jobs, nil
}

// GetJob returns the job with the given id, or ErrNotFound.
func (s *JobStore) GetJob(ctx context.Context, id string) (*models.ReconciliationJob, error) {
	var job models.ReconciliationJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

// FindActiveJob returns the first pending or running job for the given
// type and billing period, or ErrNotFound. This backs the single-active
// invariant across process restarts.
func (s *JobStore) FindActiveJob(ctx context.Context, jobType models.JobType, billingPeriod string) (*models.ReconciliationJob, error) {
	q := s.db.WithContext(ctx).
		Where("type = ?", jobType).
		Where("status IN ?", []models.JobStatus{models.JobStatusPending, models.JobStatusRunning})
	if billingPeriod != "" {
		q = q.Where("billing_period = ?", billingPeriod)
	}

	var job models.ReconciliationJob
	err := q.First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	return &job, nil
}
