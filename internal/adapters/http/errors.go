package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, upstream_error, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUpstream returns a 502 error for failed provider calls.
func errUpstream(c *fiber.Ctx, msg string) error {
	return newError(c, 502, "upstream_error", msg)
}

// errTimeout returns a 504 error.
func errTimeout(c *fiber.Ctx, msg string) error {
	return newError(c, 504, "timeout", msg)
}

// errFromDomain maps a service error onto the matching response.
func errFromDomain(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrProviderNotFound),
		errors.Is(err, domain.ErrAddressNotFound),
		errors.Is(err, domain.ErrMarkerNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return errTimeout(c, err.Error())
	case errors.Is(err, domain.ErrGeocodingFailed),
		errors.Is(err, domain.ErrRoutingFailed):
		return errUpstream(c, err.Error())
	default:
		LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
		return errInternal(c, "internal error")
	}
}
