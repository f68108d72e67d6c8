package store

import (
	"context"
	"testing"
	"time"

	"billing-reconciler/feature/reconciliation/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobColumns() []string {
	return []string{"id", "type", "status", "billing_period", "created_by", "created_at"}
}

func TestFindActiveJobFound(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewJobStore(db)

	rows := sqlmock.NewRows(jobColumns()).
		AddRow("job-1", "premium_reconciliation", "running", "2026-07", "api", time.Now())

	mock.ExpectQuery("SELECT \\* FROM `reconciliation_jobs`").
		WillReturnRows(rows)

	job, err := s.FindActiveJob(context.Background(), models.JobTypePremium, "2026-07")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveJobNone(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewJobStore(db)

	mock.ExpectQuery("SELECT \\* FROM `reconciliation_jobs`").
		WillReturnRows(sqlmock.NewRows(jobColumns()))

	_, err := s.FindActiveJob(context.Background(), models.JobTypeTransferStatus, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateJobNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewJobStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `reconciliation_jobs` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.UpdateJob(context.Background(), "missing", map[string]any{"status": models.JobStatusRunning})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindJobsAppliesFilter(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewJobStore(db)

	after := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(jobColumns()).
		AddRow("job-2", "transfer_status_reconciliation", "completed", "", "scheduler", time.Now()).
		AddRow("job-1", "transfer_status_reconciliation", "failed", "", "api", after)

	mock.ExpectQuery("SELECT \\* FROM `reconciliation_jobs` WHERE type = .+ORDER BY created_at DESC").
		WithArgs("transfer_status_reconciliation", after).
		WillReturnRows(rows)

	jobs, err := s.FindJobs(context.Background(), JobFilter{
		Type:         models.JobTypeTransferStatus,
		CreatedAfter: after,
	})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
