package handlers

import (
	"crypto/subtle"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/hourglass-app/kotonoiro-backend/internal/dto"
	"github.com/hourglass-app/kotonoiro-backend/internal/services"
)

type WebhookHandler struct {
	subscriptionService *services.SubscriptionService
	webhookToken        string
}

func NewWebhookHandler(subscriptionService *services.SubscriptionService, webhookToken string) *WebhookHandler {
	return &WebhookHandler{
		subscriptionService: subscriptionService,
		webhookToken:        webhookToken,
	}
}

// HandlePlayNotification consumes Google Play RTDN pushes delivered via a
// Pub/Sub push subscription. Pub/Sub retries on non-2xx, so processing
// failures for well-formed payloads still return 200: a notification the
// handler cannot act on today will not become actionable by redelivery, and
// receipt verification remains the source of truth.
func (h *WebhookHandler) HandlePlayNotification(c *fiber.Ctx) error {
	if h.webhookToken == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Webhooks not configured",
		})
	}

	token := c.Query("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.webhookToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var push dto.PubSubPush
	if err := c.BodyParser(&push); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid push envelope",
		})
	}

	notification, err := push.Message.Decode()
	if err != nil {
		slog.Warn("undecodable play notification", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid notification payload",
		})
	}

	if err := h.subscriptionService.HandleNotification(c.Context(), notification); err != nil {
		slog.Error("play notification processing failed",
			"package", notification.PackageName, "error", err)
		return c.JSON(fiber.Map{"received": true, "processed": false})
	}

	return c.JSON(fiber.Map{"received": true})
}
