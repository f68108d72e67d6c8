package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"billing-reconciler/feature/premium"
	"billing-reconciler/feature/reconciliation/engine"
	"billing-reconciler/feature/reconciliation/models"
	"billing-reconciler/feature/reconciliation/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlreadyInProgress is returned when a run is requested for a scope
// that already has one in flight.
var ErrAlreadyInProgress = errors.New("Reconciliation already in progress")

// ErrUnknownConfig is returned when a requested check name is not
// registered.
var ErrUnknownConfig = errors.New("unknown reconciliation config")

// CheckRunner executes reconciliation checks for a job.
type CheckRunner interface {
	Run(ctx context.Context, jobID string, cfgs []engine.CheckConfig) (*engine.Report, error)
}

// PremiumRunner builds and validates a premium report.
type PremiumRunner interface {
	Run(ctx context.Context, params premium.Params) (*premium.Result, error)
}

// JobAccess is the job persistence the manager needs.
type JobAccess interface {
	CreateJob(ctx context.Context, job *models.ReconciliationJob) error
	UpdateJob(ctx context.Context, id string, patch map[string]any) error
	FindJobs(ctx context.Context, filter store.JobFilter) ([]models.ReconciliationJob, error)
	GetJob(ctx context.Context, id string) (*models.ReconciliationJob, error)
	FindActiveJob(ctx context.Context, jobType models.JobType, billingPeriod string) (*models.ReconciliationJob, error)
}

// CheckAccess is the check persistence the manager needs.
type CheckAccess interface {
	FindChecksByJob(ctx context.Context, jobID string) ([]models.ReconciliationCheck, error)
	CountChecksByOutcome(ctx context.Context, jobID string) (map[string]int64, error)
}

// DiscrepancyAccess is the discrepancy persistence the manager needs.
type DiscrepancyAccess interface {
	GetDiscrepancy(ctx context.Context, id string) (*models.ReconciliationDiscrepancy, error)
	ResolveDiscrepancy(ctx context.Context, id, resolvedBy, resolutionType string, details json.RawMessage) error
}

// Manager owns the reconciliation job lifecycle: it enforces the
// per-scope single-flight guard, persists job state transitions and
// delegates the actual comparison work to the engines.
type Manager struct {
	jobs          JobAccess
	checks        CheckAccess
	discrepancies DiscrepancyAccess
	engine        CheckRunner
	premium       PremiumRunner
	engineCfg     engine.Config
	schedule      ScheduleConfig
	logger        *zap.Logger

	mu       sync.Mutex
	inflight map[string]int

	now func() time.Time
}

// New creates a job manager.
func New(jobs JobAccess, checks CheckAccess, discrepancies DiscrepancyAccess, checkRunner CheckRunner, premiumRunner PremiumRunner, engineCfg engine.Config, schedule ScheduleConfig, logger *zap.Logger) *Manager {
	return &Manager{
		jobs:          jobs,
		checks:        checks,
		discrepancies: discrepancies,
		engine:        checkRunner,
		premium:       premiumRunner,
		engineCfg:     engineCfg,
		schedule:      schedule,
		logger:        logger,
		inflight:      make(map[string]int),
		now:           time.Now,
	}
}

// acquire claims the in-process guard for a scope. Forced runs always
// claim; non-forced runs are rejected while the scope has work in
// flight. The returned release is safe to call exactly once from a
// defer, including on paths where the job was never created.
func (m *Manager) acquire(scope string, force bool) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force && m.inflight[scope] > 0 {
		return nil, ErrAlreadyInProgress
	}
	m.inflight[scope]++

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.inflight[scope]--
			if m.inflight[scope] <= 0 {
				delete(m.inflight, scope)
			}
		})
	}
	return release, nil
}

// resolveChecks maps requested config names to check configs. An empty
// request selects every registered check. The scope key is derived from
// the resolved set so "all" and an explicit full list coincide.
func (m *Manager) resolveChecks(configNames []string) ([]engine.CheckConfig, string, error) {
	registry := map[string]engine.CheckConfig{
		"transfer_status": engine.TransferStatusCheck(m.engineCfg),
	}

	names := configNames
	if len(names) == 0 {
		names = make([]string, 0, len(registry))
		for name := range registry {
			names = append(names, name)
		}
	}

	seen := make(map[string]bool, len(names))
	var cfgs []engine.CheckConfig
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		cfg, ok := registry[name]
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrUnknownConfig, name)
		}
		cfgs = append(cfgs, cfg)
	}

	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].Name < cfgs[j].Name })
	scopeNames := make([]string, len(cfgs))
	for i, cfg := range cfgs {
		scopeNames[i] = cfg.Name
	}
	return cfgs, strings.Join(scopeNames, ","), nil
}

// RunReconciliation runs the selected transfer checks synchronously and
// returns the finished job. Concurrent requests for the same scope are
// rejected with ErrAlreadyInProgress unless forced. An engine abort
// marks the job failed and returns the run error alongside it.
func (m *Manager) RunReconciliation(ctx context.Context, configNames []string, force bool, createdBy string) (*models.ReconciliationJob, error) {
	job, cfgs, release, err := m.beginTransferJob(ctx, configNames, force, createdBy)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.executeTransferJob(ctx, job, cfgs); err != nil {
		return job, err
	}
	return job, nil
}

// StartReconciliation claims the guard and creates the job, then runs
// the checks in the background. The returned job is in pending state.
func (m *Manager) StartReconciliation(ctx context.Context, configNames []string, force bool, createdBy string) (*models.ReconciliationJob, error) {
	job, cfgs, release, err := m.beginTransferJob(ctx, configNames, force, createdBy)
	if err != nil {
		return nil, err
	}

	accepted := *job
	go func() {
		defer release()
		runCtx, cancel := context.WithTimeout(context.Background(), m.runTimeout())
		defer cancel()
		m.executeTransferJob(runCtx, job, cfgs)
	}()
	return &accepted, nil
}

// beginTransferJob resolves the checks, claims the guard and creates
// the pending job record. On any failure after the claim the guard is
// released before returning, so callers only hold it on success.
func (m *Manager) beginTransferJob(ctx context.Context, configNames []string, force bool, createdBy string) (*models.ReconciliationJob, []engine.CheckConfig, func(), error) {
	cfgs, scope, err := m.resolveChecks(configNames)
	if err != nil {
		return nil, nil, nil, err
	}

	release, err := m.acquire(scope, force)
	if err != nil {
		return nil, nil, nil, err
	}

	if !force {
		// The in-process guard does not survive restarts; an active job
		// row left by another process still blocks the scope.
		if _, err := m.jobs.FindActiveJob(ctx, models.JobTypeTransferStatus, ""); err == nil {
			release()
			return nil, nil, nil, ErrAlreadyInProgress
		} else if !errors.Is(err, store.ErrNotFound) {
			release()
			return nil, nil, nil, err
		}
	}

	config, _ := json.Marshal(models.TransferJobConfig{ConfigNames: configNames, ForceRun: force})
	job := &models.ReconciliationJob{
		ID:        uuid.NewString(),
		Type:      models.JobTypeTransferStatus,
		Status:    models.JobStatusPending,
		Config:    config,
		CreatedBy: createdBy,
		CreatedAt: m.now().UTC(),
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		release()
		return nil, nil, nil, err
	}

	return job, cfgs, release, nil
}

// executeTransferJob drives a created job through running to a terminal
// state. Item-level failures inside checks do not fail the job; only an
// engine abort does, and the abort error is returned to the caller.
func (m *Manager) executeTransferJob(ctx context.Context, job *models.ReconciliationJob, cfgs []engine.CheckConfig) error {
	l := m.logger.With(zap.String("job_id", job.ID), zap.String("type", string(job.Type)))

	started := m.now().UTC()
	if err := m.jobs.UpdateJob(ctx, job.ID, map[string]any{
		"status":     models.JobStatusRunning,
		"started_at": started,
	}); err != nil {
		l.Error("Failed to mark job running", zap.Error(err))
		m.failJob(ctx, job, models.JobError{Message: "failed to start job", Details: []string{err.Error()}})
		return fmt.Errorf("failed to start job %s: %w", job.ID, err)
	}
	job.Status = models.JobStatusRunning
	job.StartedAt = &started

	report, err := m.engine.Run(ctx, job.ID, cfgs)
	if err != nil {
		l.Error("Reconciliation run aborted", zap.Error(err))
		m.failJob(ctx, job, models.JobError{Message: "reconciliation run aborted", Details: []string{err.Error()}})
		return err
	}

	results, _ := json.Marshal(report)
	m.completeJob(ctx, job, results)

	l.Info("Reconciliation job completed", zap.Int("checks", len(report.Checks)))
	return nil
}

// RunPremiumReconciliation runs premium reconciliation for a billing
// period synchronously. A report that fails validation still produces a
// job record, marked failed, with the full result attached.
func (m *Manager) RunPremiumReconciliation(ctx context.Context, params premium.Params, force bool, createdBy string) (*models.ReconciliationJob, error) {
	if _, err := time.Parse("2006-01", params.BillingPeriod); err != nil {
		return nil, fmt.Errorf("invalid billing period %q, expected YYYY-MM", params.BillingPeriod)
	}

	scope := "premium:" + params.BillingPeriod
	release, err := m.acquire(scope, force)
	if err != nil {
		return nil, err
	}
	defer release()

	if !force {
		if _, err := m.jobs.FindActiveJob(ctx, models.JobTypePremium, params.BillingPeriod); err == nil {
			return nil, ErrAlreadyInProgress
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	config, _ := json.Marshal(models.PremiumJobConfig{
		BillingPeriod:  params.BillingPeriod,
		DateRange:      params.DateRange,
		IncludePending: params.IncludePending,
		ForceRun:       force,
	})
	job := &models.ReconciliationJob{
		ID:            uuid.NewString(),
		Type:          models.JobTypePremium,
		Status:        models.JobStatusPending,
		BillingPeriod: params.BillingPeriod,
		Config:        config,
		CreatedBy:     createdBy,
		CreatedAt:     m.now().UTC(),
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	l := m.logger.With(zap.String("job_id", job.ID), zap.String("billing_period", params.BillingPeriod))

	started := m.now().UTC()
	if err := m.jobs.UpdateJob(ctx, job.ID, map[string]any{
		"status":     models.JobStatusRunning,
		"started_at": started,
	}); err != nil {
		m.failJob(ctx, job, models.JobError{Message: "failed to start job", Details: []string{err.Error()}})
		return job, nil
	}
	job.Status = models.JobStatusRunning
	job.StartedAt = &started

	if force {
		// A forced rerun must not reconcile against stale cached
		// remittance files.
		params.RefreshCarrierFiles = true
	}

	result, err := m.premium.Run(ctx, params)
	if err != nil {
		l.Error("Premium reconciliation aborted", zap.Error(err))
		m.failJob(ctx, job, models.JobError{Message: "premium reconciliation aborted", Details: []string{err.Error()}})
		return job, nil
	}

	results, _ := json.Marshal(result)
	if !result.Validation.IsValid {
		l.Warn("Premium reconciliation failed validation", zap.Strings("errors", result.Validation.Errors))
		m.failJobWithResults(ctx, job, results, models.JobError{
			Message: "premium report failed validation",
			Details: result.Validation.Errors,
		})
		return job, nil
	}

	m.completeJob(ctx, job, results)
	l.Info("Premium reconciliation job completed")
	return job, nil
}

// completeJob transitions a job to completed with its results payload.
func (m *Manager) completeJob(ctx context.Context, job *models.ReconciliationJob, results json.RawMessage) {
	completed := m.now().UTC()
	if err := m.jobs.UpdateJob(ctx, job.ID, map[string]any{
		"status":       models.JobStatusCompleted,
		"completed_at": completed,
		"results":      results,
	}); err != nil {
		m.logger.Error("Failed to mark job completed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &completed
	job.Results = results
}

// failJob transitions a job to failed with a structured error payload.
func (m *Manager) failJob(ctx context.Context, job *models.ReconciliationJob, jobErr models.JobError) {
	m.failJobWithResults(ctx, job, job.Results, jobErr)
}

func (m *Manager) failJobWithResults(ctx context.Context, job *models.ReconciliationJob, results json.RawMessage, jobErr models.JobError) {
	completed := m.now().UTC()
	patch := map[string]any{
		"status":       models.JobStatusFailed,
		"completed_at": completed,
		"errors":       jobErr.Marshal(),
	}
	if len(results) > 0 {
		patch["results"] = results
	}
	if err := m.jobs.UpdateJob(ctx, job.ID, patch); err != nil {
		m.logger.Error("Failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	job.Status = models.JobStatusFailed
	job.CompletedAt = &completed
	job.Results = results
	job.Errors = jobErr.Marshal()
}

// GetReconciliationHistory returns jobs created within the last N
// hours, newest first. Hours defaults to 24.
func (m *Manager) GetReconciliationHistory(ctx context.Context, hours int) ([]models.ReconciliationJob, error) {
	if hours <= 0 {
		hours = 24
	}
	return m.jobs.FindJobs(ctx, store.JobFilter{
		CreatedAfter: m.now().UTC().Add(-time.Duration(hours) * time.Hour),
	})
}

// FindPremiumJobs returns premium jobs for a billing period, newest
// first. An empty period returns every premium job.
func (m *Manager) FindPremiumJobs(ctx context.Context, billingPeriod string) ([]models.ReconciliationJob, error) {
	return m.jobs.FindJobs(ctx, store.JobFilter{
		Type:          models.JobTypePremium,
		BillingPeriod: billingPeriod,
	})
}

// GetJob returns one job by id.
func (m *Manager) GetJob(ctx context.Context, id string) (*models.ReconciliationJob, error) {
	return m.jobs.GetJob(ctx, id)
}

// JobSummary is a job with its per-outcome check counts.
type JobSummary struct {
	Job    models.ReconciliationJob `json:"job"`
	Counts map[string]int64         `json:"checkCounts"`
}

// GetJobSummary returns a job with its aggregate check outcomes.
func (m *Manager) GetJobSummary(ctx context.Context, id string) (*JobSummary, error) {
	job, err := m.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := m.checks.CountChecksByOutcome(ctx, id)
	if err != nil {
		return nil, err
	}
	return &JobSummary{Job: *job, Counts: counts}, nil
}

// GetJobDiscrepancies returns the unresolved discrepancies found by a
// job's checks. The job must exist.
func (m *Manager) GetJobDiscrepancies(ctx context.Context, jobID string) ([]models.ReconciliationDiscrepancy, error) {
	if _, err := m.jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	checks, err := m.checks.FindChecksByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	discrepancies := make([]models.ReconciliationDiscrepancy, 0)
	for _, check := range checks {
		discrepancies = append(discrepancies, check.Discrepancies...)
	}
	return discrepancies, nil
}

// ResolveDiscrepancy applies a manual resolution to an open
// discrepancy. Resolving an already-resolved or missing record returns
// the store's sentinel errors unchanged.
func (m *Manager) ResolveDiscrepancy(ctx context.Context, id, resolutionType string, details json.RawMessage) (*models.ReconciliationDiscrepancy, error) {
	if resolutionType == "" {
		resolutionType = models.ResolutionAcceptAuthoritative
	}
	if err := m.discrepancies.ResolveDiscrepancy(ctx, id, models.ResolvedByManual, resolutionType, details); err != nil {
		return nil, err
	}
	return m.discrepancies.GetDiscrepancy(ctx, id)
}

func (m *Manager) runTimeout() time.Duration {
	minutes := m.schedule.RunTimeoutMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}
