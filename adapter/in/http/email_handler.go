package http

import (
	"digest_server/core/service/digest"
	"digest_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// EmailHandler serves the stored classified-email views.
type EmailHandler struct {
	service *digest.Service
}

// NewEmailHandler creates a new email handler.
func NewEmailHandler(service *digest.Service) *EmailHandler {
	return &EmailHandler{service: service}
}

// Register registers email routes.
func (h *EmailHandler) Register(router fiber.Router) {
	grp := router.Group("/emails")

	grp.Get("/", h.List)
	grp.Get("/stats", h.Stats)
}

// List returns stored records, optionally filtered by category.
// GET /api/v1/emails?category=work&limit=50
func (h *EmailHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, apperr.Unauthorized(""))
	}

	category := c.Query("category")
	limit := c.QueryInt("limit", 50)

	records, err := h.service.GetStoredEmails(c.Context(), userID, category, limit)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{
		"emails": records,
		"total":  len(records),
	})
}

// Stats returns per-category counts over the stored records.
// GET /api/v1/emails/stats
func (h *EmailHandler) Stats(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, apperr.Unauthorized(""))
	}

	stats, err := h.service.GetEmailStats(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, stats)
}
