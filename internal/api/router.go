package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type RouterConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRouter builds the fiber app with every route registered.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				logger.Error("unhandled request error", "path", c.Path(), "error", err)
				return errorJSON(c, code, "Internal Server Error")
			}
			return errorJSON(c, code, err.Error())
		},
	})

	app.Use(recover.New())
	app.Use(accessLog(logger))

	app.Get("/healthz", h.Health)

	api := app.Group("/api")
	api.Get("/batches", h.ListBatches)
	api.Post("/batches", h.UpsertBatch)
	api.Get("/batches/:batchId", h.GetBatch)
	api.Get("/batches/:batchId/items", h.GetBatchItems)
	api.Get("/batches/:batchId/responses/latest", h.GetLatestResponse)
	api.Post("/batches/:batchId/sync", h.SyncBatch)
	api.Post("/initialize", h.Initialize)

	return app
}

func accessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler write the status before it is logged.
			if hErr := c.App().ErrorHandler(c, err); hErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		if c.Path() == "/healthz" {
			return nil
		}

		logger.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return nil
	}
}
