package http

import (
	"digest_server/core/domain"
	"digest_server/core/service/digest"
	"digest_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// DigestHandler handles digest generation and retrieval requests.
type DigestHandler struct {
	service *digest.Service
	log     zerolog.Logger
}

// NewDigestHandler creates a new digest handler.
func NewDigestHandler(service *digest.Service, log zerolog.Logger) *DigestHandler {
	return &DigestHandler{
		service: service,
		log:     log.With().Str("component", "digest_handler").Logger(),
	}
}

// Register registers digest routes.
func (h *DigestHandler) Register(router fiber.Router) {
	grp := router.Group("/digest")

	grp.Post("/generate", h.Generate)
	grp.Get("/latest", h.Latest)
	grp.Get("/history", h.History)
}

type generateRequest struct {
	Frequency string `json:"frequency"`
}

// Generate runs a digest generation cycle for the authenticated user.
// POST /api/v1/digest/generate
func (h *DigestHandler) Generate(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, apperr.Unauthorized(""))
	}

	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return AppErrorResponse(c, apperr.BadRequest("invalid request body"))
	}
	if req.Frequency == "" {
		req.Frequency = string(domain.FrequencyDaily)
	}

	frequency, err := domain.ParseFrequency(req.Frequency)
	if err != nil {
		return AppErrorResponse(c, apperr.BadRequest("unknown frequency: "+req.Frequency))
	}

	summary, err := h.service.GenerateDigest(c.Context(), userID, frequency)
	if err != nil {
		h.log.Error().Err(err).Stringer("user_id", userID).Msg("digest generation failed")
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, summary)
}

// Latest returns the most recent digest for the authenticated user.
// GET /api/v1/digest/latest
func (h *DigestHandler) Latest(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, apperr.Unauthorized(""))
	}

	summary, err := h.service.GetLatestDigest(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if summary == nil {
		return AppErrorResponse(c, apperr.NotFound("digest"))
	}

	return SuccessResponse(c, summary)
}

// History returns recent digests, newest first.
// GET /api/v1/digest/history?limit=10
func (h *DigestHandler) History(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, apperr.Unauthorized(""))
	}

	limit := c.QueryInt("limit", 10)
	history, err := h.service.GetDigestHistory(c.Context(), userID, limit)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, history)
}
