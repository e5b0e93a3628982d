package api

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"batchtrack/internal/domain"
	"batchtrack/internal/service"
)

type Handler struct {
	batches     BatchService
	syncer      Syncer
	initializer Initializer
	health      HealthChecker
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewHandler(batches BatchService, syncer Syncer, initializer Initializer, health HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{
		batches:     batches,
		syncer:      syncer,
		initializer: initializer,
		health:      health,
		validate:    newValidator(),
		logger:      logger,
	}
}

func (h *Handler) ListBatches(c *fiber.Ctx) error {
	batches, err := h.batches.List(c.UserContext())
	if err != nil {
		h.logger.Error("failed to fetch batches", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to fetch batches")
	}
	return c.JSON(batches)
}

func (h *Handler) GetBatch(c *fiber.Ctx) error {
	batchID := c.Params("batchId")

	batch, err := h.batches.Get(c.UserContext(), batchID)
	if errors.Is(err, domain.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Batch not found")
	}
	if err != nil {
		h.logger.Error("failed to fetch batch", "batch_id", batchID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to fetch batch")
	}
	return c.JSON(batch)
}

func (h *Handler) GetBatchItems(c *fiber.Ctx) error {
	batchID := c.Params("batchId")

	items, err := h.batches.Items(c.UserContext(), batchID)
	if err != nil {
		h.logger.Error("failed to fetch batch items", "batch_id", batchID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to fetch batch items")
	}
	if items == nil {
		items = []domain.BatchItem{}
	}
	return c.JSON(items)
}

func (h *Handler) GetLatestResponse(c *fiber.Ctx) error {
	batchID := c.Params("batchId")

	resp, err := h.batches.LatestResponse(c.UserContext(), batchID)
	if errors.Is(err, domain.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "No API response recorded for batch")
	}
	if err != nil {
		h.logger.Error("failed to fetch latest api response", "batch_id", batchID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to fetch latest API response")
	}
	return c.JSON(resp)
}

func (h *Handler) SyncBatch(c *fiber.Ctx) error {
	batchID := c.Params("batchId")

	result, err := h.syncer.SyncBatch(c.UserContext(), batchID)
	if err != nil {
		h.logger.Error("failed to sync batch", "batch_id", batchID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to sync batch data",
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"message":        "Batch data synced successfully",
		"itemsProcessed": result.ItemsProcessed,
		"responseTime":   result.ResponseTime.Milliseconds(),
	})
}

func (h *Handler) UpsertBatch(c *fiber.Ctx) error {
	var req BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	req.BatchID = strings.TrimSpace(req.BatchID)
	if err := h.validate.Struct(&req); err != nil {
		details, ok := fieldErrors(err)
		if !ok {
			return errorJSON(c, fiber.StatusBadRequest, "Validation failed")
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": details,
		})
	}

	batch, err := h.batches.Upsert(c.UserContext(), req.toInput())
	if err != nil {
		h.logger.Error("failed to create/update batch", "batch_id", req.BatchID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to create/update batch")
	}
	return c.JSON(batch)
}

func (h *Handler) Initialize(c *fiber.Ctx) error {
	processed, err := h.initializer.Initialize(c.UserContext())
	switch {
	case errors.Is(err, service.ErrSeedNotFound):
		return errorJSON(c, fiber.StatusNotFound, "Batch data file not found")
	case errors.Is(err, service.ErrSeedMalformed):
		return errorJSON(c, fiber.StatusBadRequest, "Invalid batch data format")
	case err != nil:
		h.logger.Error("failed to initialize data", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to initialize data")
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"message":   fmt.Sprintf("Initialized %d batches successfully", processed),
		"processed": processed,
	})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.health.PingContext(c.UserContext()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
