package reconciliation

import (
	"encoding/json"
	"errors"
	"strconv"

	"billing-reconciler/core/logger"
	"billing-reconciler/feature/reconciliation/manager"
	"billing-reconciler/feature/reconciliation/store"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for transfer reconciliation.
type Handler struct {
	manager *manager.Manager
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(m *manager.Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: m, logger: logger}
}

// RegisterRoutes registers the reconciliation routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/reconciliation")
	group.Post("/", h.HandleStartReconciliation)
	group.Get("/", h.HandleGetReconciliation)
	group.Get("/:id/discrepancies", h.HandleGetDiscrepancies)
	group.Post("/:id/discrepancies/:discrepancyId/resolve", h.HandleResolveDiscrepancy)
}

type startRequest struct {
	ConfigName  string   `json:"configName"`
	ConfigNames []string `json:"configNames"`
	ForceRun    bool     `json:"forceRun"`
}

func (r startRequest) names() []string {
	if len(r.ConfigNames) > 0 {
		return r.ConfigNames
	}
	if r.ConfigName != "" {
		return []string{r.ConfigName}
	}
	return nil
}

type resolveRequest struct {
	ResolutionType string         `json:"resolutionType"`
	Details        map[string]any `json:"details"`
}

// HandleStartReconciliation kicks off a transfer reconciliation run.
// @Summary Start Reconciliation
// @Description Start a transfer status reconciliation run. The run executes in the background.
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param request body startRequest false "Run options"
// @Success 201 {object} models.ReconciliationJob "Accepted job"
// @Failure 400 {object} map[string]string "Unknown config name"
// @Failure 409 {object} map[string]string "A run is already in progress"
// @Router /reconciliation [post]
func (h *Handler) HandleStartReconciliation(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var req startRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	job, err := h.manager.StartReconciliation(c.Context(), req.names(), req.ForceRun, "api")
	if errors.Is(err, manager.ErrAlreadyInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if errors.Is(err, manager.ErrUnknownConfig) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("Failed to start reconciliation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Reconciliation run accepted", zap.String("job_id", job.ID))
	return c.Status(fiber.StatusCreated).JSON(job)
}

// HandleGetReconciliation returns recent jobs, or one job by run id.
// @Summary Get Reconciliation Jobs
// @Description List recent reconciliation jobs, or return one job with its check counts when runId is given.
// @Tags reconciliation
// @Produce json
// @Param hours query int false "History window in hours (default 24)"
// @Param runId query string false "Job id"
// @Success 200 {array} models.ReconciliationJob "Jobs"
// @Failure 404 {object} map[string]string "Job not found"
// @Router /reconciliation [get]
func (h *Handler) HandleGetReconciliation(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	if runID := c.Query("runId"); runID != "" {
		summary, err := h.manager.GetJobSummary(c.Context(), runID)
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
		}
		if err != nil {
			l.Error("Failed to get job", zap.String("job_id", runID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(summary)
	}

	hours, _ := strconv.Atoi(c.Query("hours"))
	jobs, err := h.manager.GetReconciliationHistory(c.Context(), hours)
	if err != nil {
		l.Error("Failed to list jobs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(jobs)
}

// HandleGetDiscrepancies lists a job's unresolved discrepancies.
// @Summary Get Job Discrepancies
// @Description List the unresolved discrepancies detected by a job's checks.
// @Tags reconciliation
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {array} models.ReconciliationDiscrepancy "Unresolved discrepancies"
// @Failure 404 {object} map[string]string "Job not found"
// @Router /reconciliation/{id}/discrepancies [get]
func (h *Handler) HandleGetDiscrepancies(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	jobID := c.Params("id")

	discrepancies, err := h.manager.GetJobDiscrepancies(c.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	if err != nil {
		l.Error("Failed to list discrepancies", zap.String("job_id", jobID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(discrepancies)
}

// HandleResolveDiscrepancy applies a manual resolution.
// @Summary Resolve Discrepancy
// @Description Mark a discrepancy as manually resolved.
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param id path string true "Job id"
// @Param discrepancyId path string true "Discrepancy id"
// @Param request body resolveRequest false "Resolution"
// @Success 200 {object} models.ReconciliationDiscrepancy "Resolved discrepancy"
// @Failure 400 {object} map[string]string "Already resolved"
// @Failure 404 {object} map[string]string "Discrepancy not found"
// @Router /reconciliation/{id}/discrepancies/{discrepancyId}/resolve [post]
func (h *Handler) HandleResolveDiscrepancy(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	discrepancyID := c.Params("discrepancyId")

	var req resolveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	var details json.RawMessage
	if len(req.Details) > 0 {
		details, _ = json.Marshal(req.Details)
	}

	resolved, err := h.manager.ResolveDiscrepancy(c.Context(), discrepancyID, req.ResolutionType, details)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "discrepancy not found"})
	}
	if errors.Is(err, store.ErrAlreadyResolved) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("Failed to resolve discrepancy", zap.String("discrepancy_id", discrepancyID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Discrepancy resolved", zap.String("discrepancy_id", discrepancyID))
	return c.JSON(resolved)
}
