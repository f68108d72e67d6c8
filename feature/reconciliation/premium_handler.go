package reconciliation

import (
	"errors"

	"billing-reconciler/core/logger"
	"billing-reconciler/feature/premium"
	"billing-reconciler/feature/reconciliation/manager"
	"billing-reconciler/feature/reconciliation/models"
	"billing-reconciler/feature/reconciliation/store"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PremiumHandler handles HTTP requests for premium reconciliation.
type PremiumHandler struct {
	manager *manager.Manager
	logger  *zap.Logger
}

// NewPremiumHandler creates a new HTTP handler.
func NewPremiumHandler(m *manager.Manager, logger *zap.Logger) *PremiumHandler {
	return &PremiumHandler{manager: m, logger: logger}
}

// RegisterRoutes registers the premium reconciliation routes.
func (h *PremiumHandler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/reconciliation/premium")
	group.Post("/", h.HandleRunPremium)
	group.Get("/", h.HandleGetPremium)
}

type premiumRunRequest struct {
	BillingPeriod  string            `json:"billingPeriod"`
	DateRange      *models.DateRange `json:"dateRange"`
	IncludePending bool              `json:"includePending"`
	ForceRun       bool              `json:"forceRun"`
}

// HandleRunPremium runs premium reconciliation for a billing period.
// @Summary Run Premium Reconciliation
// @Description Reconcile collected premiums against carrier remittance files for a billing period.
// @Tags premium
// @Accept json
// @Produce json
// @Param request body premiumRunRequest true "Run parameters"
// @Success 201 {object} models.ReconciliationJob "Finished job"
// @Failure 400 {object} map[string]string "Invalid billing period"
// @Failure 409 {object} map[string]string "A run for this period is already in progress"
// @Router /reconciliation/premium [post]
func (h *PremiumHandler) HandleRunPremium(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var req premiumRunRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.BillingPeriod == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "billingPeriod is required"})
	}

	params := premium.Params{
		BillingPeriod:  req.BillingPeriod,
		DateRange:      req.DateRange,
		IncludePending: req.IncludePending,
	}
	job, err := h.manager.RunPremiumReconciliation(c.Context(), params, req.ForceRun, "api")
	if errors.Is(err, manager.ErrAlreadyInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("Premium reconciliation request failed", zap.String("billing_period", req.BillingPeriod), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Premium reconciliation job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
	)
	return c.Status(fiber.StatusCreated).JSON(job)
}

// HandleGetPremium returns premium jobs by id or billing period.
// @Summary Get Premium Jobs
// @Description Return one premium job by id, or the premium jobs for a billing period.
// @Tags premium
// @Produce json
// @Param jobId query string false "Job id"
// @Param billingPeriod query string false "Billing period (YYYY-MM)"
// @Success 200 {array} models.ReconciliationJob "Jobs"
// @Failure 404 {object} map[string]string "Job not found"
// @Router /reconciliation/premium [get]
func (h *PremiumHandler) HandleGetPremium(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	if jobID := c.Query("jobId"); jobID != "" {
		job, err := h.manager.GetJob(c.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
		}
		if err != nil {
			l.Error("Failed to get premium job", zap.String("job_id", jobID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(job)
	}

	jobs, err := h.manager.FindPremiumJobs(c.Context(), c.Query("billingPeriod"))
	if err != nil {
		l.Error("Failed to list premium jobs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(jobs)
}

// PremiumFeature implements the loader.Feature interface for the
// premium reconciliation surface.
type PremiumFeature struct {
	handler *PremiumHandler
}

// NewPremiumFeature creates the premium reconciliation feature.
func NewPremiumFeature(m *manager.Manager, logger *zap.Logger) *PremiumFeature {
	return &PremiumFeature{handler: NewPremiumHandler(m, logger)}
}

// Name returns the name of the feature.
func (f *PremiumFeature) Name() string {
	return "premium"
}

// IsEnabled checks if the feature is enabled.
func (f *PremiumFeature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *PremiumFeature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
