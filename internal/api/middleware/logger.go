// Package middleware provides the fiber middleware of the API server
package middleware

import (
	"time"

	fiber "github.com/gofiber/fiber/v2"

	log "github.com/ucext/citizenconnect/internal/logger"
)

// Logger returns a middleware that logs HTTP requests with the owner that
// made them
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := map[string]interface{}{
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
			"ip":      c.IP(),
			"method":  c.Method(),
			"path":    c.Path(),
			"handler": c.Route().Name,
		}
		if owner, ok := c.Locals(OwnerIDKey).(uint); ok {
			fields["owner_id"] = owner
		}
		if err != nil || c.Response().StatusCode() >= fiber.StatusInternalServerError {
			fields["error"] = err
			log.WarnWithFields("Request", fields)
		} else {
			log.InfoWithFields("Request", fields)
		}

		return err
	}
}
