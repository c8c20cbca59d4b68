package handlers

import (
	fiber "github.com/gofiber/fiber/v2"

	"github.com/ucext/citizenconnect/internal/api/middleware"
	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/services"
	"github.com/ucext/citizenconnect/internal/types"
)

// OAuthHandler handles the platform OAuth redirects
type OAuthHandler struct {
	service *services.Connection
}

// NewOAuthHandler creates a new OAuth handler instance
func NewOAuthHandler(service *services.Connection) *OAuthHandler {
	return &OAuthHandler{
		service: service,
	}
}

// ConnectResponse carries the consent URL when redirects are disabled
type ConnectResponse struct {
	URL string `json:"url"`
}

// Connect redirects to the platform consent page. With redirect=false the
// URL is returned as JSON instead.
func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	p, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidPlatform))
	}

	consentURL, err := h.service.Start(c.UserContext(), middleware.OwnerID(c), p)
	if err != nil {
		return respondError(c, err)
	}
	if !c.QueryBool("redirect", true) {
		return c.JSON(types.Success(ConnectResponse{URL: consentURL}))
	}
	return c.Redirect(consentURL, fiber.StatusFound)
}

// Callback finishes the flow the platform redirected back from. The state
// identifies the owner, so no user header is needed.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	p, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidPlatform))
	}
	if reason := c.Query("error"); reason != "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(types.ErrInvalidInput("authorization was denied: " + c.Query("error_description", reason)))
	}

	resp, err := h.service.Callback(c.UserContext(), p, c.Query("state"), c.Query("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(types.Success(resp))
}
