package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"billing-reconciler/feature/reconciliation/events"
	"billing-reconciler/feature/reconciliation/models"
	"billing-reconciler/feature/reconciliation/snapshot"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckRecorder persists check records.
type CheckRecorder interface {
	CreateCheck(ctx context.Context, check *models.ReconciliationCheck) error
}

// DiscrepancyRecorder persists and resolves discrepancy records.
type DiscrepancyRecorder interface {
	CreateDiscrepancy(ctx context.Context, d *models.ReconciliationDiscrepancy) (*models.ReconciliationDiscrepancy, bool, error)
	ResolveDiscrepancy(ctx context.Context, id, resolvedBy, resolutionType string, details json.RawMessage) error
}

// WatermarkAccess reads and advances the per-check event cursor.
type WatermarkAccess interface {
	GetWatermark(ctx context.Context, checkName string) (*time.Time, error)
	PutWatermark(ctx context.Context, checkName string, lastEventAt time.Time) error
}

// CheckResult aggregates one check's run.
type CheckResult struct {
	Name         string   `json:"name"`
	Events       int      `json:"events"`
	Matches      int      `json:"matches"`
	Mismatches   int      `json:"mismatches"`
	AutoResolved int      `json:"autoResolved"`
	Errors       int      `json:"errors"`
	ItemErrors   []string `json:"itemErrors,omitempty"`
}

// Report is the structured output of one engine run, stored as the
// job's results payload.
type Report struct {
	Checks     []CheckResult `json:"checks"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Engine walks authoritative events, compares monitored fields against
// local snapshots and emits discrepancies.
type Engine struct {
	source        events.Source
	snapshots     snapshot.Store
	checks        CheckRecorder
	discrepancies DiscrepancyRecorder
	watermarks    WatermarkAccess
	logger        *zap.Logger
}

// New creates a reconciliation engine.
func New(source events.Source, snapshots snapshot.Store, checks CheckRecorder, discrepancies DiscrepancyRecorder, watermarks WatermarkAccess, logger *zap.Logger) *Engine {
	return &Engine{
		source:        source,
		snapshots:     snapshots,
		checks:        checks,
		discrepancies: discrepancies,
		watermarks:    watermarks,
		logger:        logger,
	}
}

// Run executes the given checks sequentially and returns the aggregate
// report. A failing check is recorded and does not abort the run; only
// a cancelled context does.
func (e *Engine) Run(ctx context.Context, jobID string, cfgs []CheckConfig) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC()}

	for _, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := e.runCheck(ctx, jobID, cfg)
		report.Checks = append(report.Checks, result)
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// runCheck executes one named check. Per-resource failures are isolated
// into the result; the check keeps going.
func (e *Engine) runCheck(ctx context.Context, jobID string, cfg CheckConfig) CheckResult {
	result := CheckResult{Name: cfg.Name}
	l := e.logger.With(zap.String("check", cfg.Name), zap.String("job_id", jobID))

	since, err := e.sinceFor(ctx, cfg)
	if err != nil {
		l.Error("Failed to read watermark", zap.Error(err))
		result.Errors++
		result.ItemErrors = append(result.ItemErrors, err.Error())
		return result
	}

	evts, err := e.source.GetEvents(ctx, events.Filter{
		ResourceType: cfg.ResourceType,
		Since:        since,
		Limit:        0, // source default page limit
	})
	if err != nil {
		l.Error("Failed to fetch events", zap.Error(err))
		result.Errors++
		result.ItemErrors = append(result.ItemErrors, fmt.Sprintf("event fetch failed: %v", err))
		return result
	}

	result.Events = len(evts)
	var newest time.Time
	hadItemFailure := false

	for i, event := range evts {
		if cfg.BatchSize > 0 && i > 0 && i%cfg.BatchSize == 0 && cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				result.ItemErrors = append(result.ItemErrors, ctx.Err().Error())
				return result
			case <-time.After(cfg.BatchDelay):
			}
		}

		if err := e.processEvent(ctx, jobID, cfg, event, &result); err != nil {
			// Isolated failure: record and continue with the next event.
			hadItemFailure = true
			result.Errors++
			result.ItemErrors = append(result.ItemErrors, fmt.Sprintf("%s: %v", event.ResourceID, err))
			e.recordCheck(ctx, jobID, cfg, event, models.OutcomeError)
			l.Warn("Check item failed", zap.String("resource_id", event.ResourceID), zap.Error(err))
		}

		if event.Timestamp.After(newest) {
			newest = event.Timestamp
		}
	}

	// Advance the cursor only after a clean pass so failed items are
	// retried on the next run.
	if !newest.IsZero() && !hadItemFailure {
		if err := e.watermarks.PutWatermark(ctx, cfg.Name, newest); err != nil {
			l.Error("Failed to advance watermark", zap.Error(err))
			result.ItemErrors = append(result.ItemErrors, err.Error())
		}
	}

	l.Info("Check completed",
		zap.Int("events", result.Events),
		zap.Int("matches", result.Matches),
		zap.Int("mismatches", result.Mismatches),
		zap.Int("auto_resolved", result.AutoResolved),
		zap.Int("errors", result.Errors),
	)
	return result
}

// sinceFor resolves the event window start: persisted watermark first,
// bounded lookback otherwise.
func (e *Engine) sinceFor(ctx context.Context, cfg CheckConfig) (time.Time, error) {
	wm, err := e.watermarks.GetWatermark(ctx, cfg.Name)
	if err != nil {
		return time.Time{}, err
	}
	if wm != nil {
		return *wm, nil
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return time.Now().UTC().Add(-lookback), nil
}

// processEvent compares one event against its snapshot and persists the
// outcome.
func (e *Engine) processEvent(ctx context.Context, jobID string, cfg CheckConfig, event events.Event, result *CheckResult) error {
	snap, err := e.snapshots.GetByExternalID(ctx, event.ResourceID)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return fmt.Errorf("no local snapshot for %s", event.ResourceID)
		}
		return err
	}

	mismatches, err := compareFields(cfg.Fields, event, snap)
	if err != nil {
		return err
	}

	if len(mismatches) == 0 {
		result.Matches++
		e.recordCheck(ctx, jobID, cfg, event, models.OutcomeMatch)
		return nil
	}

	result.Mismatches++
	check := e.recordCheck(ctx, jobID, cfg, event, models.OutcomeMismatch)
	if check == nil {
		return fmt.Errorf("failed to record mismatch check for %s", event.ResourceID)
	}

	for _, mm := range mismatches {
		d := &models.ReconciliationDiscrepancy{
			ID:                 uuid.NewString(),
			CheckID:            check.ID,
			ResourceType:       event.ResourceType,
			ResourceID:         event.ResourceID,
			Field:              mm.Field,
			AuthoritativeValue: mm.AuthoritativeValue,
			LocalValue:         mm.LocalValue,
			CreatedAt:          time.Now().UTC(),
		}

		effective, created, err := e.discrepancies.CreateDiscrepancy(ctx, d)
		if err != nil {
			return err
		}
		if !created {
			// Prior unresolved discrepancy still stands; nothing new to do.
			continue
		}

		if cfg.AutoResolve {
			if err := e.autoResolve(ctx, cfg, event, effective); err != nil {
				return err
			}
			result.AutoResolved++
		}
	}

	return nil
}

// autoResolve applies the default policy (accept the authoritative
// value), then emits a reconciled follow-up event so downstream state
// propagates.
func (e *Engine) autoResolve(ctx context.Context, cfg CheckConfig, event events.Event, d *models.ReconciliationDiscrepancy) error {
	details, _ := json.Marshal(map[string]string{
		"field":         d.Field,
		"acceptedValue": d.AuthoritativeValue,
		"sourceEventId": event.ID,
	})

	if err := e.discrepancies.ResolveDiscrepancy(ctx, d.ID, models.ResolvedBySystem, models.ResolutionAcceptAuthoritative, details); err != nil {
		return fmt.Errorf("failed to auto-resolve discrepancy %s: %w", d.ID, err)
	}

	followUp := events.Event{
		ID:           uuid.NewString(),
		Type:         event.ResourceType + "_reconciled",
		ResourceID:   event.ResourceID,
		ResourceType: event.ResourceType,
		Payload:      event.Payload,
		Timestamp:    time.Now().UTC(),
	}
	if err := e.source.EmitEvent(ctx, followUp); err != nil {
		return fmt.Errorf("failed to emit reconciled event for %s: %w", event.ResourceID, err)
	}
	return nil
}

// recordCheck persists a check record; returns nil on storage failure
// (logged, the caller decides whether that is fatal for the item).
func (e *Engine) recordCheck(ctx context.Context, jobID string, cfg CheckConfig, event events.Event, outcome string) *models.ReconciliationCheck {
	metadata, _ := json.Marshal(map[string]string{
		"jobId":   jobID,
		"eventId": event.ID,
	})

	check := &models.ReconciliationCheck{
		ID:           uuid.NewString(),
		JobID:        jobID,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		CheckName:    cfg.Name,
		Metadata:     metadata,
		Outcome:      outcome,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.checks.CreateCheck(ctx, check); err != nil {
		e.logger.Error("Failed to record check",
			zap.String("check", cfg.Name),
			zap.String("resource_id", event.ResourceID),
			zap.Error(err),
		)
		return nil
	}
	return check
}
