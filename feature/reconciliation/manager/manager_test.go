package manager

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"billing-reconciler/feature/premium"
	"billing-reconciler/feature/reconciliation/engine"
	"billing-reconciler/feature/reconciliation/models"
	"billing-reconciler/feature/reconciliation/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeJobs struct {
	mu         sync.Mutex
	jobs       map[string]*models.ReconciliationJob
	lastFilter store.JobFilter
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*models.ReconciliationJob)}
}

func (f *fakeJobs) CreateJob(ctx context.Context, job *models.ReconciliationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeJobs) UpdateJob(ctx context.Context, id string, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if v, ok := patch["status"]; ok {
		job.Status = v.(models.JobStatus)
	}
	if v, ok := patch["started_at"]; ok {
		t := v.(time.Time)
		job.StartedAt = &t
	}
	if v, ok := patch["completed_at"]; ok {
		t := v.(time.Time)
		job.CompletedAt = &t
	}
	if v, ok := patch["results"]; ok {
		job.Results = v.(json.RawMessage)
	}
	if v, ok := patch["errors"]; ok {
		job.Errors = v.(json.RawMessage)
	}
	return nil
}

func (f *fakeJobs) FindJobs(ctx context.Context, filter store.JobFilter) ([]models.ReconciliationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter

	var out []models.ReconciliationJob
	for _, job := range f.jobs {
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		if filter.BillingPeriod != "" && job.BillingPeriod != filter.BillingPeriod {
			continue
		}
		if !filter.CreatedAfter.IsZero() && job.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		out = append(out, *job)
	}
	return out, nil
}

func (f *fakeJobs) GetJob(ctx context.Context, id string) (*models.ReconciliationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobs) FindActiveJob(ctx context.Context, jobType models.JobType, billingPeriod string) (*models.ReconciliationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.Type != jobType || job.IsTerminal() {
			continue
		}
		if billingPeriod != "" && job.BillingPeriod != billingPeriod {
			continue
		}
		clone := *job
		return &clone, nil
	}
	return nil, store.ErrNotFound
}

type fakeChecks struct {
	byJob map[string][]models.ReconciliationCheck
}

func (f *fakeChecks) FindChecksByJob(ctx context.Context, jobID string) ([]models.ReconciliationCheck, error) {
	return f.byJob[jobID], nil
}

func (f *fakeChecks) CountChecksByOutcome(ctx context.Context, jobID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, c := range f.byJob[jobID] {
		counts[c.Outcome]++
	}
	return counts, nil
}

type fakeDiscrepancies struct {
	resolved map[string]bool
	byID     map[string]*models.ReconciliationDiscrepancy
}

func (f *fakeDiscrepancies) GetDiscrepancy(ctx context.Context, id string) (*models.ReconciliationDiscrepancy, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeDiscrepancies) ResolveDiscrepancy(ctx context.Context, id, resolvedBy, resolutionType string, details json.RawMessage) error {
	d, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	if d.Resolved {
		return store.ErrAlreadyResolved
	}
	d.Resolved = true
	d.ResolvedBy = resolvedBy
	d.ResolutionType = resolutionType
	f.resolved[id] = true
	return nil
}

// fakeRunner optionally blocks until released, to exercise the guard.
type fakeRunner struct {
	block chan struct{}
	err   error
	runs  int
	mu    sync.Mutex
}

func (f *fakeRunner) Run(ctx context.Context, jobID string, cfgs []engine.CheckConfig) (*engine.Report, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Report{Checks: []engine.CheckResult{{Name: "transfer_status"}}}, nil
}

type fakePremium struct {
	result *premium.Result
	err    error
	params premium.Params
}

func (f *fakePremium) Run(ctx context.Context, params premium.Params) (*premium.Result, error) {
	f.params = params
	return f.result, f.err
}

func newTestManager(jobs *fakeJobs, runner *fakeRunner, prem *fakePremium) *Manager {
	return New(
		jobs,
		&fakeChecks{byJob: make(map[string][]models.ReconciliationCheck)},
		&fakeDiscrepancies{resolved: map[string]bool{}, byID: map[string]*models.ReconciliationDiscrepancy{}},
		runner,
		prem,
		engine.Config{LookbackHours: 24, BatchSize: 50},
		ScheduleConfig{},
		zap.NewNop(),
	)
}

func TestRunReconciliationLifecycle(t *testing.T) {
	jobs := newFakeJobs()
	m := newTestManager(jobs, &fakeRunner{}, &fakePremium{})

	job, err := m.RunReconciliation(context.Background(), nil, false, "test")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.NotEmpty(t, job.Results)

	stored, err := jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
}

func TestRunReconciliationRejectsConcurrent(t *testing.T) {
	jobs := newFakeJobs()
	runner := &fakeRunner{block: make(chan struct{})}
	m := newTestManager(jobs, runner, &fakePremium{})

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		go func() {
			// Wait until the first run holds the guard.
			for {
				m.mu.Lock()
				held := len(m.inflight) > 0
				m.mu.Unlock()
				if held {
					close(started)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
		_, err := m.RunReconciliation(context.Background(), nil, false, "first")
		assert.NoError(t, err)
	}()

	<-started
	_, err := m.RunReconciliation(context.Background(), nil, false, "second")
	assert.ErrorIs(t, err, ErrAlreadyInProgress)

	close(runner.block)
	<-done

	// Guard released after completion, a new run is accepted.
	_, err = m.RunReconciliation(context.Background(), nil, false, "third")
	assert.NoError(t, err)
}

func TestForcedRunBypassesGuard(t *testing.T) {
	jobs := newFakeJobs()
	// Simulate a stale running job left by a crashed process.
	_ = jobs.CreateJob(context.Background(), &models.ReconciliationJob{
		ID:     "stale",
		Type:   models.JobTypeTransferStatus,
		Status: models.JobStatusRunning,
	})
	m := newTestManager(jobs, &fakeRunner{}, &fakePremium{})

	_, err := m.RunReconciliation(context.Background(), nil, false, "test")
	assert.ErrorIs(t, err, ErrAlreadyInProgress)

	job, err := m.RunReconciliation(context.Background(), nil, true, "test")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestGuardReleasedAfterFailedRun(t *testing.T) {
	jobs := newFakeJobs()
	runner := &fakeRunner{err: errors.New("source unavailable")}
	m := newTestManager(jobs, runner, &fakePremium{})

	// An engine abort fails the job and surfaces the run error.
	job, err := m.RunReconciliation(context.Background(), nil, false, "test")
	require.Error(t, err)
	assert.ErrorContains(t, err, "source unavailable")
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.Errors)

	m.mu.Lock()
	assert.Empty(t, m.inflight)
	m.mu.Unlock()
}

func TestRunReconciliationUnknownConfig(t *testing.T) {
	m := newTestManager(newFakeJobs(), &fakeRunner{}, &fakePremium{})

	_, err := m.RunReconciliation(context.Background(), []string{"bogus"}, false, "test")
	assert.ErrorIs(t, err, ErrUnknownConfig)
}

func TestPremiumValidationFailureFailsJob(t *testing.T) {
	jobs := newFakeJobs()
	prem := &fakePremium{result: &premium.Result{
		Report:     &premium.Report{ReportID: "r-1", BillingPeriod: "2026-07"},
		Validation: premium.Validation{IsValid: false, Errors: []string{"totals diverge"}},
	}}
	m := newTestManager(jobs, &fakeRunner{}, prem)

	job, err := m.RunPremiumReconciliation(context.Background(), premium.Params{BillingPeriod: "2026-07"}, false, "test")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	// The report is kept on the failed job so the numbers stay inspectable.
	assert.NotEmpty(t, job.Results)

	var jobErr models.JobError
	require.NoError(t, json.Unmarshal(job.Errors, &jobErr))
	assert.Contains(t, jobErr.Details, "totals diverge")
}

func TestPremiumValidPeriodCompletes(t *testing.T) {
	jobs := newFakeJobs()
	prem := &fakePremium{result: &premium.Result{
		Report:     &premium.Report{ReportID: "r-1", BillingPeriod: "2026-07"},
		Validation: premium.Validation{IsValid: true},
	}}
	m := newTestManager(jobs, &fakeRunner{}, prem)

	job, err := m.RunPremiumReconciliation(context.Background(), premium.Params{BillingPeriod: "2026-07"}, false, "test")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "2026-07", job.BillingPeriod)
}

func TestPremiumRejectsBadPeriod(t *testing.T) {
	m := newTestManager(newFakeJobs(), &fakeRunner{}, &fakePremium{})

	for _, period := range []string{"", "2026", "2026-13", "July 2026"} {
		_, err := m.RunPremiumReconciliation(context.Background(), premium.Params{BillingPeriod: period}, false, "test")
		assert.Error(t, err, "period %q", period)
	}
}

func TestPremiumGuardIsPerPeriod(t *testing.T) {
	jobs := newFakeJobs()
	prem := &fakePremium{result: &premium.Result{
		Report:     &premium.Report{ReportID: "r-1"},
		Validation: premium.Validation{IsValid: true},
	}}
	m := newTestManager(jobs, &fakeRunner{}, prem)

	// A finished run for one period never blocks another period.
	_, err := m.RunPremiumReconciliation(context.Background(), premium.Params{BillingPeriod: "2026-06"}, false, "test")
	require.NoError(t, err)
	_, err = m.RunPremiumReconciliation(context.Background(), premium.Params{BillingPeriod: "2026-07"}, false, "test")
	require.NoError(t, err)
}

func TestForcedPremiumRunRefreshesCarrierFiles(t *testing.T) {
	prem := &fakePremium{result: &premium.Result{
		Report:     &premium.Report{ReportID: "r-1"},
		Validation: premium.Validation{IsValid: true},
	}}
	m := newTestManager(newFakeJobs(), &fakeRunner{}, prem)

	_, err := m.RunPremiumReconciliation(context.Background(), premium.Params{BillingPeriod: "2026-07"}, false, "test")
	require.NoError(t, err)
	assert.False(t, prem.params.RefreshCarrierFiles)

	_, err = m.RunPremiumReconciliation(context.Background(), premium.Params{BillingPeriod: "2026-07"}, true, "test")
	require.NoError(t, err)
	assert.True(t, prem.params.RefreshCarrierFiles)
}

func TestGetReconciliationHistoryWindow(t *testing.T) {
	jobs := newFakeJobs()
	m := newTestManager(jobs, &fakeRunner{}, &fakePremium{})

	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	_, err := m.GetReconciliationHistory(context.Background(), 48)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(-48*time.Hour), jobs.lastFilter.CreatedAfter)

	// Zero falls back to the default 24 hour window.
	_, err = m.GetReconciliationHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(-24*time.Hour), jobs.lastFilter.CreatedAfter)
}

func TestResolveDiscrepancyManual(t *testing.T) {
	jobs := newFakeJobs()
	discs := &fakeDiscrepancies{
		resolved: map[string]bool{},
		byID: map[string]*models.ReconciliationDiscrepancy{
			"d-1": {ID: "d-1", Field: "status"},
		},
	}
	m := New(jobs, &fakeChecks{byJob: map[string][]models.ReconciliationCheck{}}, discs,
		&fakeRunner{}, &fakePremium{}, engine.Config{}, ScheduleConfig{}, zap.NewNop())

	resolved, err := m.ResolveDiscrepancy(context.Background(), "d-1", "", nil)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, models.ResolvedByManual, resolved.ResolvedBy)
	assert.Equal(t, models.ResolutionAcceptAuthoritative, resolved.ResolutionType)

	// Second resolution hits the already-resolved sentinel.
	_, err = m.ResolveDiscrepancy(context.Background(), "d-1", "", nil)
	assert.ErrorIs(t, err, store.ErrAlreadyResolved)
}

func TestGetJobDiscrepanciesRequiresJob(t *testing.T) {
	m := newTestManager(newFakeJobs(), &fakeRunner{}, &fakePremium{})

	_, err := m.GetJobDiscrepancies(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
