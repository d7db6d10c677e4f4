package integrity

import (
	"errors"

	"receipt-ledger/core/logger"
	"receipt-ledger/core/utils"
	"receipt-ledger/feature/integrity/checks"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	// Force import for Swagger
	var _ = checks.SchemaReport{}
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleIntegrityCheck)
	group.Get("/schema", h.HandleSchemaCheck)
	group.Get("/ledger", h.HandleLedgerCheck)
	group.Get("/storage", h.HandleStorageCheck)
}

// HandleIntegrityCheck triggers all integrity checks.
// @Summary Run All Integrity Checks
// @Description Performs all available integrity checks (Schema, Ledger, Storage). The ledger check reads every receipt and may take a long time.
// @Tags integrity
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Success 200 {object} Report "Combined Report"
// @Router /integrity [get]
func (h *Handler) HandleIntegrityCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Triggering all integrity checks")

	return c.JSON(h.service.RunAll(c.UserContext()))
}

// HandleSchemaCheck checks the database schema.
// @Summary Check Schema
// @Description Checks that the ledger tables exist with every expected column.
// @Tags integrity
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Success 200 {object} checks.SchemaReport "Schema Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/schema [get]
func (h *Handler) HandleSchemaCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Starting schema check")

	report, err := h.service.CheckSchema()
	if err != nil {
		l.Error("Schema check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !report.Matched {
		l.Warn("Schema mismatch detected", zap.Strings("errors", report.Errors))
	}
	return c.JSON(report)
}

// HandleLedgerCheck checks version histories and audit trails.
// @Summary Check Ledger
// @Description Verifies that every receipt has gapless versions, a correct current pointer and an audit trail matching its changes.
// @Tags integrity
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Success 200 {object} checks.LedgerReport "Ledger Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/ledger [get]
func (h *Handler) HandleLedgerCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Starting ledger check")

	report, err := h.service.CheckLedger(c.UserContext())
	if err != nil {
		l.Error("Ledger check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Ledger check completed",
		zap.Int("receipts", report.Receipts),
		zap.Int("versions", report.Versions),
		zap.Int("issues", len(report.Issues)))
	return c.JSON(report)
}

// HandleStorageCheck checks and optionally fixes the upload archive.
// @Summary Check Storage
// @Description Compares archived uploads with the batch history. Optionally removes orphaned uploads.
// @Tags integrity
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param fix query boolean false "Remove orphaned uploads"
// @Success 200 {object} map[string]interface{} "Storage Report"
// @Failure 404 {object} map[string]string "Archive Disabled"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/storage [get]
func (h *Handler) HandleStorageCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	fix := utils.ToBool(c.Query("fix"))

	report, err := h.service.CheckStorage(c.UserContext())
	if errors.Is(err, ErrStorageDisabled) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("Storage check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if len(report.Orphans) > 0 {
		l.Warn("Orphaned uploads detected", zap.Strings("orphans", report.Orphans))

		if fix {
			l.Info("Attempting to remove orphaned uploads")
			if err := h.service.FixStorage(c.UserContext(), report.Orphans); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error":   "Failed to remove orphaned uploads",
					"details": err.Error(),
					"orphans": report.Orphans,
				})
			}
			return c.JSON(fiber.Map{
				"status": "fixed",
				"fixed":  report.Orphans,
				"report": report,
			})
		}
	}
	if len(report.MissingSources) > 0 {
		l.Warn("Batches with missing uploads", zap.Strings("batches", report.MissingSources))
	}

	return c.JSON(fiber.Map{
		"status": "checked",
		"report": report,
	})
}
