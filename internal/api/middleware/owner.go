package middleware

import (
	"strconv"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/ucext/citizenconnect/internal/types"
)

const (
	// UserIDHeader carries the id of the calling user. Session
	// authentication in front of the API sets it.
	UserIDHeader = "X-User-ID"
	// OwnerIDKey is the fiber local holding the parsed owner id
	OwnerIDKey = "owner_id"
)

// Owner rejects requests without a valid user id and stores it in the
// request locals
func Owner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(UserIDHeader)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).
				JSON(types.ErrInvalidInput(UserIDHeader + " header is required"))
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusUnauthorized).
				JSON(types.ErrInvalidInput(UserIDHeader + " must be a positive integer"))
		}
		c.Locals(OwnerIDKey, uint(id))
		return c.Next()
	}
}

// OwnerID returns the owner stored by Owner, or 0 outside of it
func OwnerID(c *fiber.Ctx) uint {
	id, _ := c.Locals(OwnerIDKey).(uint)
	return id
}
