package manager

import (
	"context"
	"errors"
	"time"

	"billing-reconciler/feature/premium"

	"go.uber.org/zap"
)

// ScheduleConfig controls the background reconciliation loops.
type ScheduleConfig struct {
	// Enabled turns the background loops on.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// TransferIntervalMinutes is the period of the incremental transfer
	// status loop.
	TransferIntervalMinutes int `mapstructure:"transfer_interval_minutes" default:"60"`
	// FullIntervalHours is the period of the daily full pass, which also
	// reconciles premiums for the previous calendar month.
	FullIntervalHours int `mapstructure:"full_interval_hours" default:"24"`
	// RunTimeoutMinutes bounds a single background run.
	RunTimeoutMinutes int `mapstructure:"run_timeout_minutes" default:"30"`
}

// ScheduleReconciliations starts the background loops. They stop when
// the context is cancelled. A scope already being reconciled is skipped
// quietly; everything else is logged and retried on the next tick.
func (m *Manager) ScheduleReconciliations(ctx context.Context) {
	if !m.schedule.Enabled {
		m.logger.Info("Scheduled reconciliation disabled")
		return
	}

	transferInterval := time.Duration(m.schedule.TransferIntervalMinutes) * time.Minute
	if transferInterval <= 0 {
		transferInterval = time.Hour
	}
	fullInterval := time.Duration(m.schedule.FullIntervalHours) * time.Hour
	if fullInterval <= 0 {
		fullInterval = 24 * time.Hour
	}

	go m.loop(ctx, "transfer_status", transferInterval, m.scheduledTransferRun)
	go m.loop(ctx, "full", fullInterval, m.scheduledFullRun)

	m.logger.Info("Scheduled reconciliation started",
		zap.Duration("transfer_interval", transferInterval),
		zap.Duration("full_interval", fullInterval),
	)
}

// loop runs fn on every tick until the context is cancelled.
func (m *Manager) loop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Reconciliation loop stopped", zap.String("loop", name))
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, m.runTimeout())
			fn(runCtx)
			cancel()
		}
	}
}

// previousBillingPeriod returns the calendar month before now in
// YYYY-MM form. The time is truncated to the first of its month before
// subtracting, so month-end days never normalize past a shorter month.
func previousBillingPeriod(now time.Time) string {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return monthStart.AddDate(0, -1, 0).Format("2006-01")
}

func (m *Manager) scheduledTransferRun(ctx context.Context) {
	job, err := m.RunReconciliation(ctx, []string{"transfer_status"}, false, "scheduler")
	if errors.Is(err, ErrAlreadyInProgress) {
		m.logger.Info("Skipping scheduled transfer run, scope busy")
		return
	}
	if err != nil {
		m.logger.Error("Scheduled transfer run failed", zap.Error(err))
		return
	}
	m.logger.Info("Scheduled transfer run finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
	)
}

// scheduledFullRun does the daily pass: every transfer check plus a
// premium reconciliation of the previous calendar month.
func (m *Manager) scheduledFullRun(ctx context.Context) {
	job, err := m.RunReconciliation(ctx, nil, false, "scheduler")
	if errors.Is(err, ErrAlreadyInProgress) {
		m.logger.Info("Skipping scheduled full run, scope busy")
	} else if err != nil {
		m.logger.Error("Scheduled full run failed", zap.Error(err))
	} else {
		m.logger.Info("Scheduled full run finished",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
		)
	}

	period := previousBillingPeriod(m.now())
	premiumJob, err := m.RunPremiumReconciliation(ctx, premium.Params{BillingPeriod: period}, false, "scheduler")
	if errors.Is(err, ErrAlreadyInProgress) {
		m.logger.Info("Skipping scheduled premium run, scope busy", zap.String("billing_period", period))
		return
	}
	if err != nil {
		m.logger.Error("Scheduled premium run failed", zap.String("billing_period", period), zap.Error(err))
		return
	}
	m.logger.Info("Scheduled premium run finished",
		zap.String("job_id", premiumJob.ID),
		zap.String("billing_period", period),
		zap.String("status", string(premiumJob.Status)),
	)
}
