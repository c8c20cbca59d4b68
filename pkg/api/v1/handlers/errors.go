// Package handlers provides HTTP request handling
package handlers

import (
	"errors"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/ucext/citizenconnect/internal/logger"
	"github.com/ucext/citizenconnect/internal/oauth"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/platform"
	"github.com/ucext/citizenconnect/internal/services"
	"github.com/ucext/citizenconnect/internal/types"
)

// Common error messages
const (
	ErrMsgInvalidReqFormat   = "Invalid request format"
	ErrMsgInvalidPlatform    = "Invalid platform"
	ErrMsgJobIDRequired      = "Job id is required"
	ErrMsgFileRequired       = "A media file is required in the file field"
	ErrMsgFileTooLarge       = "Media file is too large"
	ErrMsgFileRead           = "Failed to read media file"
	ErrMsgInvalidJobState    = "Invalid job state"
	ErrMsgNegativePagination = "Page must be a positive number from 1"
)

// respondError maps a service error to its status code and slug
func respondError(c *fiber.Ctx, err error) error {
	var (
		validation *pipeline.ValidationError
		apiErr     *platform.APIError
		respErr    *platform.ResponseError
	)
	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(validation.Error()))
	case errors.Is(err, services.ErrJobNotFound), errors.Is(err, services.ErrAccountNotFound):
		return c.Status(fiber.StatusNotFound).JSON(types.ErrNotFound(err.Error()))
	case errors.Is(err, services.ErrJobNotCancelable):
		return c.Status(fiber.StatusConflict).JSON(types.ErrConflict(err.Error()))
	case errors.Is(err, oauth.ErrTicketNotFound),
		errors.Is(err, oauth.ErrMissingCode),
		errors.Is(err, oauth.ErrPlatformMismatch),
		errors.Is(err, oauth.ErrUnsupportedPlatform):
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(err.Error()))
	case errors.Is(err, oauth.ErrProviderDisabled):
		return c.Status(fiber.StatusNotFound).JSON(types.ErrNotFound(err.Error()))
	case errors.As(err, &apiErr), errors.As(err, &respErr):
		return c.Status(fiber.StatusBadGateway).JSON(types.ErrUpstream(err.Error()))
	case errors.Is(err, services.ErrPoolStopped):
		return c.Status(fiber.StatusServiceUnavailable).JSON(types.ErrServer(err.Error()))
	default:
		logger.WithFields(logger.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"error":  err.Error(),
		}).Error("Request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrServer(err.Error()))
	}
}
