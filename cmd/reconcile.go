package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"billing-reconciler/core/config"
	"billing-reconciler/core/logger"
	"billing-reconciler/feature/reconciliation/engine"
	"billing-reconciler/feature/reconciliation/manager"
	"billing-reconciler/feature/reconciliation/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reconcileConfigs []string
	reconcileForce   bool
)

// reconcileCmd runs a one-shot transfer reconciliation.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run transfer reconciliation once and exit",
	Long: `Run the transfer status reconciliation checks once, print the report
and exit. The run is recorded as a job like any scheduled or API run.

Examples:
  # Run every registered check
  billing-reconciler reconcile

  # Run a single check
  billing-reconciler reconcile --config transfer_status

  # Rerun even if a job appears active
  billing-reconciler reconcile --force`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringSliceVar(&reconcileConfigs, "config", nil, "Check names to run (default: all)")
	reconcileCmd.Flags().BoolVar(&reconcileForce, "force", false, "Run even when a job for the scope is active")

	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	l.Info("Starting transfer reconciliation")

	rt, err := buildRuntime(ctx, cfg, l)
	if err != nil {
		return err
	}

	job, err := rt.manager.RunReconciliation(ctx, reconcileConfigs, reconcileForce, "cli")
	if errors.Is(err, manager.ErrAlreadyInProgress) {
		l.Warn("Reconciliation already in progress, use --force to run anyway")
		return err
	}
	if err != nil {
		if job != nil {
			printJobReport(l, job)
		}
		return err
	}

	printJobReport(l, job)
	if job.Status == models.JobStatusFailed {
		return fmt.Errorf("reconciliation job %s failed", job.ID)
	}
	return nil
}

// printJobReport logs a finished job's per-check numbers.
func printJobReport(l *zap.Logger, job *models.ReconciliationJob) {
	l.Info("Reconciliation job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
	)

	var report engine.Report
	if err := json.Unmarshal(job.Results, &report); err != nil {
		return
	}
	for _, check := range report.Checks {
		l.Info("Check result",
			zap.String("check", check.Name),
			zap.Int("events", check.Events),
			zap.Int("matches", check.Matches),
			zap.Int("mismatches", check.Mismatches),
			zap.Int("auto_resolved", check.AutoResolved),
			zap.Int("errors", check.Errors),
		)
		for _, item := range check.ItemErrors {
			l.Warn("Item error", zap.String("check", check.Name), zap.String("error", item))
		}
	}
}
