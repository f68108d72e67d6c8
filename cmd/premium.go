package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"billing-reconciler/core/config"
	"billing-reconciler/core/logger"
	"billing-reconciler/feature/premium"
	"billing-reconciler/feature/reconciliation/manager"
	"billing-reconciler/feature/reconciliation/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	premiumPeriod         string
	premiumIncludePending bool
	premiumForce          bool
)

// premiumCmd runs a one-shot premium reconciliation.
var premiumCmd = &cobra.Command{
	Use:   "premium",
	Short: "Run premium reconciliation for a billing period and exit",
	Long: `Reconcile collected premiums against carrier remittance files for one
billing period, print the report and exit.

Examples:
  # Reconcile July 2026
  billing-reconciler premium --period 2026-07

  # Count pending transfers as collected
  billing-reconciler premium --period 2026-07 --include-pending`,
	RunE: runPremium,
}

func init() {
	premiumCmd.Flags().StringVar(&premiumPeriod, "period", "", "Billing period in YYYY-MM form (required)")
	premiumCmd.Flags().BoolVar(&premiumIncludePending, "include-pending", false, "Count pending transfers as collected")
	premiumCmd.Flags().BoolVar(&premiumForce, "force", false, "Run even when a job for the period is active")
	_ = premiumCmd.MarkFlagRequired("period")

	RootCmd.AddCommand(premiumCmd)
}

func runPremium(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	l.Info("Starting premium reconciliation", zap.String("billing_period", premiumPeriod))

	rt, err := buildRuntime(ctx, cfg, l)
	if err != nil {
		return err
	}

	params := premium.Params{
		BillingPeriod:  premiumPeriod,
		IncludePending: premiumIncludePending,
	}
	job, err := rt.manager.RunPremiumReconciliation(ctx, params, premiumForce, "cli")
	if errors.Is(err, manager.ErrAlreadyInProgress) {
		l.Warn("Premium reconciliation already in progress, use --force to run anyway")
		return err
	}
	if err != nil {
		return err
	}

	printPremiumReport(l, job)
	if job.Status == models.JobStatusFailed {
		return fmt.Errorf("premium reconciliation job %s failed", job.ID)
	}
	return nil
}

// printPremiumReport logs a finished premium job's totals and validation.
func printPremiumReport(l *zap.Logger, job *models.ReconciliationJob) {
	l.Info("Premium reconciliation job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
	)

	var result premium.Result
	if err := json.Unmarshal(job.Results, &result); err != nil || result.Report == nil {
		return
	}

	l.Info("Premium report",
		zap.String("report_id", result.Report.ReportID),
		zap.String("total_collected", result.Report.TotalCollected.StringFixed(2)),
		zap.String("total_remitted", result.Report.TotalRemitted.StringFixed(2)),
		zap.Int64("accounts", result.Report.TotalAccountsProcessed),
		zap.Int("carriers", len(result.Report.Carriers)),
	)
	for _, c := range result.Report.Carriers {
		l.Info("Carrier total",
			zap.String("carrier", c.Carrier),
			zap.String("amount", c.TotalAmount.StringFixed(2)),
			zap.Int("line_items", c.LineItems),
		)
	}
	for _, e := range result.Validation.Errors {
		l.Error("Validation error", zap.String("error", e))
	}
	for _, w := range result.Validation.Warnings {
		l.Warn("Validation warning", zap.String("warning", w))
	}
}
