package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, unparseable_track, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	if reqID == "" {
		reqID = RequestIDFromCtx(c.UserContext())
	}
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

func errTooLarge(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusRequestEntityTooLarge, "payload_too_large", msg)
}

// Messages shown to viewers and uploaders.
const (
	msgUnparseable  = "track file could not be parsed"
	msgHasErrors    = "track file contains unreadable points"
	msgFileNotFound = "track file not found or is not readable"
	msgPartial      = "track could not be fully read"
)

// trackError maps a track service error onto the API error envelope.
func trackError(c *fiber.Ctx, err error) error {
	var (
		trackErrs *domain.TrackErrorsError
		domainErr *domain.DomainError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidTrackID):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrEmptyUpload), errors.Is(err, domain.ErrEmptyTrack):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrTrackNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrTrackFileNotFound):
		return errNotFound(c, msgFileNotFound)
	case domain.IsMalformed(err):
		return newError(c, fiber.StatusUnprocessableEntity, "unparseable_track", msgUnparseable)
	case errors.As(err, &trackErrs):
		return newError(c, fiber.StatusUnprocessableEntity, "track_has_errors", msgHasErrors)
	case errors.As(err, &domainErr):
		return errBadRequest(c, domainErr.Error())
	}
	LoggerFromCtx(c.UserContext()).Error("track request failed", "path", c.Path(), "error", err)
	return errInternal(c, err.Error())
}
