package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses that the handler
// left without one.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return err
		}
		if c.GetRespHeader(fiber.HeaderCacheControl) != "" {
			return err
		}
		if ttl := cacheControlFor(c.Path()); ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}

func cacheControlFor(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready":
		return "public, max-age=10"
	case path == "/metrics":
		return "no-cache"
	case path == "/v1/providers":
		return "public, max-age=3600"
	case strings.HasPrefix(path, "/v1/geocode/"):
		return "public, max-age=3600"
	case path == "/v1/routes/straight":
		return "public, max-age=300"
	case path == "/v1/clusters", strings.HasPrefix(path, "/v1/markers"):
		return "public, max-age=15"
	case strings.HasPrefix(path, "/v1/"):
		return "public, max-age=60"
	}
	return ""
}
