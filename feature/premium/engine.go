package premium

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"billing-reconciler/core/money"
	"billing-reconciler/core/storage"
	"billing-reconciler/feature/premium/carrier"
	"billing-reconciler/feature/reconciliation/models"
	"billing-reconciler/feature/reconciliation/snapshot"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Params selects what a premium reconciliation run covers.
type Params struct {
	// BillingPeriod in YYYY-MM form; also the default collection window
	// when DateRange is not set.
	BillingPeriod string
	// DateRange overrides the collection window derived from the period.
	DateRange *models.DateRange
	// IncludePending counts pending transfers as collected.
	IncludePending bool
	// RefreshCarrierFiles drops any cached remittance listing for the
	// period before loading, so forced reruns see current bucket
	// contents.
	RefreshCarrierFiles bool
}

// CarrierBreakdown is the per-carrier slice of a premium report.
type CarrierBreakdown struct {
	Carrier     string          `json:"carrier"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	LineItems   int             `json:"lineItems"`
}

// Report summarizes collected premiums against carrier remittances for
// one billing period.
type Report struct {
	ReportID               string             `json:"reportId"`
	BillingPeriod          string             `json:"billingPeriod"`
	GeneratedAt            time.Time          `json:"generatedAt"`
	WindowFrom             time.Time          `json:"windowFrom"`
	WindowTo               time.Time          `json:"windowTo"`
	IncludePending         bool               `json:"includePending"`
	TotalCollected         decimal.Decimal    `json:"totalCollected"`
	TotalRemitted          decimal.Decimal    `json:"totalRemitted"`
	TotalAccountsProcessed int64              `json:"totalAccountsProcessed"`
	Carriers               []CarrierBreakdown `json:"carriers"`
}

// Validation is the outcome of checking a report's internal consistency.
// Errors make the run fail; warnings do not.
type Validation struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Result bundles a premium run's report with its validation and the
// carrier files the report was built from.
type Result struct {
	Report       *Report        `json:"report"`
	Validation   Validation     `json:"validation"`
	CarrierFiles []carrier.File `json:"carrierFiles"`
}

// Engine builds and validates premium reconciliation reports.
type Engine struct {
	snapshots snapshot.Store
	carriers  carrier.Source
	archive   storage.Client
	bucket    string
	logger    *zap.Logger
}

// New creates a premium reconciliation engine. archive may be nil to
// disable report archival.
func New(snapshots snapshot.Store, carriers carrier.Source, archive storage.Client, bucket string, logger *zap.Logger) *Engine {
	return &Engine{
		snapshots: snapshots,
		carriers:  carriers,
		archive:   archive,
		bucket:    bucket,
		logger:    logger,
	}
}

// Run builds the report for a billing period and validates it. A report
// is returned even when validation fails, so operators can inspect the
// numbers behind a failed run.
func (e *Engine) Run(ctx context.Context, params Params) (*Result, error) {
	from, to, err := e.window(params)
	if err != nil {
		return nil, err
	}

	collected, accounts, err := e.snapshots.SumCollected(ctx, from, to, params.IncludePending)
	if err != nil {
		return nil, fmt.Errorf("failed to sum collected premiums: %w", err)
	}

	if params.RefreshCarrierFiles {
		if inv, ok := e.carriers.(interface{ Invalidate(string) }); ok {
			inv.Invalidate(params.BillingPeriod)
		}
	}

	files, err := e.carriers.GetCarrierFiles(ctx, params.BillingPeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to load carrier files: %w", err)
	}

	report := &Report{
		ReportID:               uuid.NewString(),
		BillingPeriod:          params.BillingPeriod,
		GeneratedAt:            time.Now().UTC(),
		WindowFrom:             from,
		WindowTo:               to,
		IncludePending:         params.IncludePending,
		TotalCollected:         collected,
		TotalRemitted:          decimal.Zero,
		TotalAccountsProcessed: accounts,
	}
	for _, f := range files {
		report.Carriers = append(report.Carriers, CarrierBreakdown{
			Carrier:     f.Carrier,
			TotalAmount: f.TotalAmount,
			LineItems:   len(f.LineItems),
		})
		report.TotalRemitted = report.TotalRemitted.Add(f.TotalAmount)
	}

	validation := e.validate(report, files)
	result := &Result{Report: report, Validation: validation, CarrierFiles: files}

	e.archiveReport(ctx, result)

	e.logger.Info("Premium reconciliation report built",
		zap.String("report_id", report.ReportID),
		zap.String("billing_period", report.BillingPeriod),
		zap.String("total_collected", report.TotalCollected.String()),
		zap.String("total_remitted", report.TotalRemitted.String()),
		zap.Bool("is_valid", validation.IsValid),
	)
	return result, nil
}

// window resolves the collection window: explicit range if given, the
// calendar month of the billing period otherwise. The window is
// half-open [from, to).
func (e *Engine) window(params Params) (time.Time, time.Time, error) {
	if params.DateRange != nil {
		if !params.DateRange.To.After(params.DateRange.From) {
			return time.Time{}, time.Time{}, fmt.Errorf("date range end %s is not after start %s",
				params.DateRange.To.Format(time.RFC3339), params.DateRange.From.Format(time.RFC3339))
		}
		return params.DateRange.From.UTC(), params.DateRange.To.UTC(), nil
	}

	start, err := time.Parse("2006-01", params.BillingPeriod)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid billing period %q, expected YYYY-MM: %w", params.BillingPeriod, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// validate checks the report's internal consistency. The remitted total
// must match the collected total within the standard amount tolerance.
func (e *Engine) validate(report *Report, files []carrier.File) Validation {
	v := Validation{IsValid: true}

	if !money.Equal(report.TotalRemitted, report.TotalCollected) {
		v.IsValid = false
		v.Errors = append(v.Errors, fmt.Sprintf(
			"carrier remittance total %s does not match collected total %s (difference %s)",
			report.TotalRemitted.StringFixed(2),
			report.TotalCollected.StringFixed(2),
			money.Delta(report.TotalRemitted, report.TotalCollected).StringFixed(2),
		))
	}

	if len(files) == 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("no carrier remittance files found for period %s", report.BillingPeriod))
	}
	for _, f := range files {
		if f.TotalAmount.IsNegative() {
			v.Warnings = append(v.Warnings, fmt.Sprintf("carrier %s reported a negative total %s", f.Carrier, f.TotalAmount.StringFixed(2)))
		}
		for _, item := range f.LineItems {
			if item.Amount.IsNegative() {
				v.Warnings = append(v.Warnings, fmt.Sprintf("carrier %s has a negative line item for account %s: %s",
					f.Carrier, item.AccountID, item.Amount.StringFixed(2)))
			}
		}
	}

	return v
}

// archiveReport stores the result JSON under reports/<period>/<id>.json.
// Archival is best effort; a storage failure never fails the run.
func (e *Engine) archiveReport(ctx context.Context, result *Result) {
	if e.archive == nil {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		e.logger.Warn("Failed to serialize premium report for archive", zap.Error(err))
		return
	}

	key := fmt.Sprintf("reports/%s/%s.json", result.Report.BillingPeriod, result.Report.ReportID)
	_, err = e.archive.PutObject(ctx, e.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		e.logger.Warn("Failed to archive premium report",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	e.logger.Debug("Archived premium report", zap.String("key", key))
}
