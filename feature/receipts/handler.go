package receipts

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/logger"
	"receipt-ledger/core/reconcile"
	"receipt-ledger/core/storage"
	"receipt-ledger/core/utils"
)

// ActorHeader names the person behind a request when the body does not.
const ActorHeader = "X-Actor"

// Handler handles HTTP requests for receipts and batches.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// RegisterRoutes registers the receipt and batch routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/receipts")
	group.Post("/upload", h.HandleUpload)
	group.Get("/", h.HandleList)
	group.Get("/stats", h.HandleStats)
	group.Get("/:number", h.HandleGet)
	group.Put("/:number", h.HandleAmend)
	group.Delete("/:number", h.HandleVoid)
	group.Post("/:number/restore", h.HandleRestore)
	group.Get("/:number/versions", h.HandleVersions)
	group.Get("/:number/as-of", h.HandleVersionAt)
	group.Get("/:number/audit", h.HandleAudit)

	batches := app.Group("/batches")
	batches.Get("/", h.HandleListBatches)
	batches.Get("/:id", h.HandleGetBatch)
	batches.Get("/:id/source", h.HandleBatchSource)
}

// AmendBody is the body of a manual correction.
type AmendBody struct {
	// Fields maps tracked field names to their new values.
	Fields map[string]any `json:"fields" validate:"required,min=1,dive,keys,oneof=student_name class_name payment_mode date annual_fee tuition_fee kit_books_fee activity_fee uniform_fee,endkeys,required"`
	Reason string         `json:"reason" validate:"max=500"`
	Actor  string         `json:"actor" validate:"max=100"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ErrArchiveDisabled):
		return fiber.StatusNotFound
	case reconcile.IsValidation(err), errors.As(err, &verrs),
		errors.Is(err, ErrInvalidFile), errors.Is(err, ErrFileTooLarge):
		return fiber.StatusBadRequest
	case errors.Is(err, reconcile.ErrVoided), errors.Is(err, reconcile.ErrInvalidTransition),
		errors.Is(err, ledger.ErrConcurrentModification), errors.Is(err, ledger.ErrTxAborted):
		return fiber.StatusConflict
	case errors.Is(err, ledger.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, l *zap.Logger, msg string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		l.Error(msg, zap.Error(err))
	} else {
		l.Warn(msg, zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func actorOf(c *fiber.Ctx, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.Get(ActorHeader)
}

// HandleUpload reconciles an uploaded workbook.
// @Summary Upload Receipts
// @Description Reconciles an .xlsx workbook against the ledger as one atomic batch. With dry_run=true the batch is rolled back and only the tally is returned.
// @Tags receipts
// @Security ApiKeyAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Workbook (.xlsx)"
// @Param actor formData string false "Uploader"
// @Param dry_run query boolean false "Preview without saving"
// @Success 200 {object} reconcile.BatchResult "Batch Result"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 503 {object} map[string]interface{} "Batch Rolled Back"
// @Router /receipts/upload [post]
func (h *Handler) HandleUpload(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no file provided"})
	}
	f, err := fh.Open()
	if err != nil {
		return h.fail(c, l, "Failed to open upload", err)
	}
	defer f.Close()

	in := UploadInput{
		Filename: fh.Filename,
		Size:     fh.Size,
		Body:     f,
		Actor:    actorOf(c, c.FormValue("actor")),
		DryRun:   utils.ToBool(c.Query("dry_run")) || utils.ToBool(c.FormValue("dry_run")),
	}
	l.Info("Upload received", zap.String("file", in.Filename), zap.Int64("size", in.Size), zap.Bool("dry_run", in.DryRun))

	result, err := h.service.Upload(c.UserContext(), in)
	if err != nil {
		if result == nil {
			return h.fail(c, l, "Upload rejected", err)
		}
		l.Error("Batch rolled back", zap.String("batch_id", result.BatchID), zap.Error(err))
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error(), "batch": result})
	}
	return c.JSON(result)
}

// HandleList searches receipts.
// @Summary List Receipts
// @Description Searches receipts by their current version, newest first.
// @Tags receipts
// @Security ApiKeyAuth
// @Produce json
// @Param query query string false "Receipt number or student name"
// @Param student_name query string false "Student name"
// @Param class_name query string false "Class"
// @Param payment_mode query string false "Payment mode"
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Param status query string false "active or voided"
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} map[string]interface{} "Page of receipts"
// @Failure 400 {object} map[string]string "Bad Request"
// @Router /receipts [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	filter, err := parseFilter(c)
	if err != nil {
		return h.fail(c, l, "Invalid search", err)
	}
	page, err := h.service.Search(c.UserContext(), filter)
	if err != nil {
		return h.fail(c, l, "Search failed", err)
	}
	return c.JSON(fiber.Map{
		"results":     page.Items,
		"total_count": page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages(),
	})
}

func parseFilter(c *fiber.Ctx) (ledger.Filter, error) {
	f := ledger.Filter{
		Query:       c.Query("query"),
		StudentName: c.Query("student_name"),
		ClassName:   c.Query("class_name"),
		Page:        c.QueryInt("page", 1),
		PageSize:    c.QueryInt("page_size", 50),
	}
	if mode := c.Query("payment_mode"); mode != "" {
		m, err := reconcile.ParsePaymentMode(mode)
		if err != nil {
			return f, err
		}
		f.PaymentMode = m
	}
	if status := c.Query("status"); status != "" {
		f.Status = ledger.Status(status)
		if !f.Status.IsValid() {
			return f, &reconcile.ValidationError{Field: "status", Reason: fmt.Sprintf("%q is not one of active, voided", status)}
		}
	}
	for param, dst := range map[string]**time.Time{"date_from": &f.DateFrom, "date_to": &f.DateTo} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := ledger.ParseDate(raw)
		if err != nil {
			return f, &reconcile.ValidationError{Field: param, Reason: "use YYYY-MM-DD"}
		}
		*dst = &t
	}
	return f, nil
}

// HandleStats summarizes the ledger.
// @Summary Receipt Statistics
// @Tags receipts
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} Stats "Stats"
// @Router /receipts/stats [get]
func (h *Handler) HandleStats(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return h.fail(c, l, "Stats failed", err)
	}
	return c.JSON(stats)
}

// HandleGet returns one receipt with its current version.
// @Summary Get Receipt
// @Tags receipts
// @Security ApiKeyAuth
// @Produce json
// @Param number path string true "Receipt number"
// @Success 200 {object} ledger.EntitySummary "Receipt"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /receipts/{number} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	summary, err := h.service.Get(c.UserContext(), c.Params("number"))
	if err != nil {
		return h.fail(c, l, "Receipt lookup failed", err)
	}
	return c.JSON(summary)
}

// HandleAmend applies a manual correction.
// @Summary Correct Receipt
// @Description Merges the given fields over the current version. Creates a new version only if something changed.
// @Tags receipts
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param number path string true "Receipt number"
// @Param body body AmendBody true "Correction"
// @Success 200 {object} reconcile.AmendResult "Result"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 409 {object} map[string]string "Receipt Voided"
// @Router /receipts/{number} [put]
func (h *Handler) HandleAmend(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var body AmendBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := h.validate.Struct(body); err != nil {
		return h.fail(c, l, "Invalid correction", err)
	}

	res, err := h.service.Amend(c.UserContext(), c.Params("number"), body.Fields, actorOf(c, body.Actor), body.Reason)
	if err != nil {
		return h.fail(c, l, "Correction failed", err)
	}
	return c.JSON(res)
}

// HandleVoid voids a receipt.
// @Summary Void Receipt
// @Description Marks the receipt as voided. Versions and audit entries are kept.
// @Tags receipts
// @Security ApiKeyAuth
// @Produce json
// @Param number path string true "Receipt number"
// @Success 200 {object} ledger.Entity "Receipt"
// @Failure 409 {object} map[string]string "Already Voided"
// @Router /receipts/{number} [delete]
func (h *Handler) HandleVoid(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	entity, err := h.service.Void(c.UserContext(), c.Params("number"), actorOf(c, ""))
	if err != nil {
		return h.fail(c, l, "Void failed", err)
	}
	return c.JSON(entity)
}

// HandleRestore restores a voided receipt.
// @Summary Restore Receipt
// @Tags receipts
// @Security ApiKeyAuth
// @Produce json
// @Param number path string true "Receipt number"
// @Success 200 {object} ledger.Entity "Receipt"
// @Failure 409 {object} map[string]string "Not Voided"
// @Router /receipts/{number}/restore [post]
func (h *Handler) HandleRestore(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	entity, err := h.service.Restore(c.UserContext(), c.Params("number"), actorOf(c, ""))
	if err != nil {
		return h.fail(c, l, "Restore failed", err)
	}
	return c.JSON(entity)
}

// HandleVersions lists every version of a receipt.
// @Summary Receipt Versions
// @Tags receipts
// @Security ApiKeyAuth
// @Produce json
// @Param number path string true "Receipt number"
// @Success 200 {array} ledger.Version "Versions"
// @Router /receipts/{number}/versions [get]
func (h *Handler) HandleVersions(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	versions, err := h.service.Versions(c.UserContext(), c.Params("number"))
	if err != nil {
		return h.fail(c, l, "Version listing failed", err)
	}
	return c.JSON(versions)
}

// HandleVersionAt returns the version of a receipt that was current at an instant.
// @Summary Receipt Version At
// @Description A plain date (YYYY-MM-DD) means the end of that day, UTC.
// @Tags receipts
// @Security ApiKeyAuth
// @Produce json
// @Param number path string true "Receipt number"
// @Param at query string true "RFC 3339 timestamp or YYYY-MM-DD"
// @Success 200 {object} ledger.Version "Version"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 404 {object} map[string]string "No Version Yet"
// @Router /receipts/{number}/as-of [get]
func (h *Handler) HandleVersionAt(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	at, err := parseInstant(c.Query("at"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	version, err := h.service.VersionAt(c.UserContext(), c.Params("number"), at)
	if err != nil {
		return h.fail(c, l, "Version lookup failed", err)
	}
	return c.JSON(version)
}

func parseInstant(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("at is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := ledger.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("at: %q is neither an RFC 3339 timestamp nor YYYY-MM-DD", raw)
	}
	return day.Add(24*time.Hour - time.Nanosecond), nil
}

// HandleAudit lists the audit trail of a receipt.
// @Summary Receipt Audit Trail
// @Tags receipts
// @Security ApiKeyAuth
// @Produce json
// @Param number path string true "Receipt number"
// @Success 200 {array} ledger.AuditEntry "Audit entries"
// @Router /receipts/{number}/audit [get]
func (h *Handler) HandleAudit(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	entries, err := h.service.Audit(c.UserContext(), c.Params("number"))
	if err != nil {
		return h.fail(c, l, "Audit listing failed", err)
	}
	return c.JSON(entries)
}

// HandleListBatches lists upload batches.
// @Summary List Batches
// @Tags batches
// @Security ApiKeyAuth
// @Produce json
// @Param page query int false "Page" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} map[string]interface{} "Page of batches"
// @Router /batches [get]
func (h *Handler) HandleListBatches(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	page, err := h.service.Batches(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("page_size", 20))
	if err != nil {
		return h.fail(c, l, "Batch listing failed", err)
	}
	return c.JSON(fiber.Map{
		"results":     page.Items,
		"total_count": page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages(),
	})
}

// HandleGetBatch returns one batch with its failures.
// @Summary Get Batch
// @Tags batches
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} ledger.Batch "Batch"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /batches/{id} [get]
func (h *Handler) HandleGetBatch(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	batch, err := h.service.Batch(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, l, "Batch lookup failed", err)
	}
	return c.JSON(batch)
}

// HandleBatchSource streams the archived workbook of a batch.
// @Summary Download Batch Source
// @Tags batches
// @Security ApiKeyAuth
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Batch ID"
// @Success 200 {file} file "Workbook"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /batches/{id}/source [get]
func (h *Handler) HandleBatchSource(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	rc, batch, err := h.service.BatchSource(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, l, "Batch source unavailable", err)
	}
	c.Set(fiber.HeaderContentType, storage.SpreadsheetContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", batch.Label))
	return c.SendStream(rc)
}
