package cmd

import (
	"context"
	"fmt"

	"billing-reconciler/core/config"
	"billing-reconciler/core/database"
	"billing-reconciler/core/storage"
	"billing-reconciler/feature/premium"
	"billing-reconciler/feature/premium/carrier"
	"billing-reconciler/feature/reconciliation/engine"
	"billing-reconciler/feature/reconciliation/events"
	"billing-reconciler/feature/reconciliation/manager"
	"billing-reconciler/feature/reconciliation/models"
	"billing-reconciler/feature/reconciliation/snapshot"
	"billing-reconciler/feature/reconciliation/store"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime bundles everything a command needs after wiring.
type runtime struct {
	cfg     *config.Config
	db      *gorm.DB
	storage storage.Client
	manager *manager.Manager
}

// buildRuntime connects the database and storage, migrates the service's
// own tables, verifies the externally owned transfers table and
// assembles the job manager. Shared by the server and the one-shot
// commands.
func buildRuntime(ctx context.Context, cfg *config.Config, l *zap.Logger) (*runtime, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Migrate only the tables this service owns. The transfers table
	// belongs to the dashboard application and is verified, not migrated.
	if err := db.AutoMigrate(
		&models.ReconciliationJob{},
		&models.ReconciliationCheck{},
		&models.ReconciliationDiscrepancy{},
		&models.CheckWatermark{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	snapshots := snapshot.NewGormStore(db)
	if err := snapshots.VerifySchema(ctx); err != nil {
		return nil, fmt.Errorf("transfers schema verification failed: %w", err)
	}

	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Storage.Bucket); err != nil {
		return nil, err
	}

	jobs := store.NewJobStore(db)
	checks := store.NewCheckStore(db)
	discrepancies := store.NewDiscrepancyStore(db)
	watermarks := store.NewWatermarkStore(db)

	source := events.NewHTTPSource(cfg.Events)
	checkEngine := engine.New(source, snapshots, checks, discrepancies, watermarks, l)

	carriers := carrier.NewStorageSource(client, cfg.Storage.Bucket, cfg.Carrier, l)
	premiumEngine := premium.New(snapshots, carriers, client, cfg.Storage.Bucket, l)

	mgr := manager.New(jobs, checks, discrepancies, checkEngine, premiumEngine, cfg.Engine, cfg.Scheduler, l)

	return &runtime{cfg: cfg, db: db, storage: client, manager: mgr}, nil
}

func ensureBucket(ctx context.Context, client storage.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}
