package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports on a dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RegisterRoutes mounts the service endpoints. checks are the dependencies
// /health reports on, keyed by name; nil entries are skipped.
func RegisterRoutes(app *fiber.App, h *Handler, checks map[string]HealthChecker) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		results := map[string]string{}
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for name, hc := range checks {
			if hc == nil {
				continue
			}
			results[name] = "ok"
			if err := hc.HealthCheck(healthCtx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/commands", h.ListCommands)
	v1.Post("/commands/:name", h.RunCommand)
	v1.Post("/incidents/fetch", h.FetchIncidents)
	v1.Get("/incidents", h.ListIncidents)
}
