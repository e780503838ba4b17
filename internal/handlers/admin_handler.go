package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hourglass-app/kotonoiro-backend/internal/dto"
	"github.com/hourglass-app/kotonoiro-backend/internal/services"
)

type AdminHandler struct {
	quotaService        *services.QuotaService
	subscriptionService *services.SubscriptionService
}

func NewAdminHandler(quotaService *services.QuotaService, subscriptionService *services.SubscriptionService) *AdminHandler {
	return &AdminHandler{
		quotaService:        quotaService,
		subscriptionService: subscriptionService,
	}
}

// UserQuotaHistory returns every ledger month for a user, unfiltered by plan
// window. Support needs the full audit trail.
func (h *AdminHandler) UserQuotaHistory(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user id",
		})
	}

	entries, err := h.quotaService.History(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read quota history",
		})
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func (h *AdminHandler) UserSubscription(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user id",
		})
	}

	status, err := h.subscriptionService.Status(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read subscription",
		})
	}

	return c.JSON(status)
}
