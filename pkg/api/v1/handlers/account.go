package handlers

import (
	fiber "github.com/gofiber/fiber/v2"

	"github.com/ucext/citizenconnect/internal/api/middleware"
	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/services"
	"github.com/ucext/citizenconnect/internal/types"
)

// AccountHandler handles HTTP requests for connected accounts and text posts
type AccountHandler struct {
	service *services.Account
}

// NewAccountHandler creates a new account handler instance
func NewAccountHandler(service *services.Account) *AccountHandler {
	return &AccountHandler{
		service: service,
	}
}

// CreatePostRequest is the body of a text post
type CreatePostRequest struct {
	Platform  string `json:"platform" form:"platform"`
	AccountID string `json:"account_id" form:"account_id"`
	Message   string `json:"message" form:"message"`
}

// ListAccounts returns the caller's accounts, pages and Instagram accounts
func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	var p models.Platform
	if platformStr := c.Query("platform"); platformStr != "" {
		parsed, err := models.ParsePlatform(platformStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidPlatform))
		}
		p = parsed
	}

	accounts, err := h.service.List(c.UserContext(), middleware.OwnerID(c), p, c.Query("type"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(types.Success(accounts))
}

// GetStatus reports whether a platform is connected
func (h *AccountHandler) GetStatus(c *fiber.Ctx) error {
	p, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidPlatform))
	}

	status, err := h.service.Status(c.UserContext(), middleware.OwnerID(c), p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// Disconnect removes the stored tokens of a platform
func (h *AccountHandler) Disconnect(c *fiber.Ctx) error {
	p, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidPlatform))
	}

	resp, err := h.service.Disconnect(c.UserContext(), middleware.OwnerID(c), p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(types.Success(resp))
}

// CreatePost publishes a text post on a page, a LinkedIn profile or X
func (h *AccountHandler) CreatePost(c *fiber.Ctx) error {
	var req CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidReqFormat))
	}
	p, err := models.ParsePlatform(req.Platform)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidPlatform))
	}

	resp, err := h.service.PostText(c.UserContext(), middleware.OwnerID(c), p, req.AccountID, req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(types.Success(resp))
}
