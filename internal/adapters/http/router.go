package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/mapcore/internal/pkg/metrics"
)

const (
	requestTimeout   = 15 * time.Second
	requestsPerMin   = 120
	apiVersionHeader = "1.0.0"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(
		compress.New(compress.Config{Level: compress.LevelBestSpeed}),
		requestid.New(),
		RequestIDLogMiddleware(),
		AccessLogMiddleware(),
		rateLimiter(requestsPerMin),
		securityHeaders,
		ETagMiddleware(),
		CachingMiddleware(),
	)

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/providers", ProvidersHandler(deps))

	v1.Get("/geocode/search", timed(GeocodeSearchHandler(deps)))
	v1.Get("/geocode/reverse", timed(GeocodeReverseHandler(deps)))

	v1.Post("/routes", timed(CalculateRouteHandler(deps)))
	v1.Get("/routes/straight", StraightRouteHandler(deps))

	v1.Get("/clusters", timed(ClustersHandler(deps)))

	markers := v1.Group("/markers")
	markers.Get("/", timed(ListMarkersHandler(deps)))
	markers.Post("/", timed(UpsertMarkerHandler(deps)))
	markers.Post("/batch", timed(UpsertMarkersHandler(deps)))
	markers.Get("/:id", timed(GetMarkerHandler(deps)))
	markers.Delete("/:id", timed(DeleteMarkerHandler(deps)))

	app.Post("/graphql", timed(GraphQLHandler(deps)))

	SetupDocs(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}

func timed(h fiber.Handler) fiber.Handler {
	return timeout.NewWithContext(h, requestTimeout)
}

// rateLimiter allows max requests per minute per client IP.
func rateLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	})
}

func securityHeaders(c *fiber.Ctx) error {
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set(fiber.HeaderReferrerPolicy, "strict-origin-when-cross-origin")
	c.Set("X-API-Version", apiVersionHeader)
	return c.Next()
}
