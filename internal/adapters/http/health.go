package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": version,
		})
	}
}

// ReadyHandler checks the database, NATS, and the cache. The service is
// ready when the database answers; NATS and the cache degrade features
// but do not take the API down.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ready := true

		switch {
		case deps.DB == nil:
			checks["database"] = "not configured"
			ready = false
		default:
			if err := deps.DB.Ping(ctx); err != nil {
				checks["database"] = "error: " + err.Error()
				ready = false
			} else {
				checks["database"] = "ok"
			}
		}

		switch {
		case deps.NATS == nil:
			checks["nats"] = "not configured"
		case deps.NATS.IsConnected():
			checks["nats"] = "ok"
		default:
			checks["nats"] = "disconnected"
		}

		switch {
		case deps.Cache == nil:
			checks["cache"] = "not configured"
		default:
			if err := deps.Cache.Ping(ctx); err != nil {
				checks["cache"] = "error: " + err.Error()
			} else {
				checks["cache"] = "ok"
			}
		}

		if deps.Geocoding != nil {
			checks["geocoding_default"] = deps.Geocoding.DefaultProvider()
		}

		status, code := "ready", fiber.StatusOK
		if !ready {
			status, code = "not ready", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
