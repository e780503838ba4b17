package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hourglass-app/kotonoiro-backend/internal/dto"
	"github.com/hourglass-app/kotonoiro-backend/internal/middleware"
	"github.com/hourglass-app/kotonoiro-backend/internal/services"
)

type SubscriptionHandler struct {
	subscriptionService *services.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

func (h *SubscriptionHandler) VerifyReceipt(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.VerifyReceiptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	p, err := h.subscriptionService.VerifyReceipt(c.Context(), userID, req.Receipt, req.Platform, req.ProductID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnsupportedPlatform):
			return c.Status(fiber.StatusBadRequest).JSON(dto.VerifyReceiptResponse{
				Success: false, Message: "unsupported platform",
			})
		case errors.Is(err, services.ErrInvalidReceipt):
			return c.Status(fiber.StatusBadRequest).JSON(dto.VerifyReceiptResponse{
				Success: false, Message: "malformed receipt",
			})
		case errors.Is(err, services.ErrReceiptRejected), errors.Is(err, services.ErrUnknownProduct):
			return c.Status(fiber.StatusOK).JSON(dto.VerifyReceiptResponse{
				Success: false, Message: "receipt rejected",
			})
		}
		// Verification transport errors fail closed. The client keeps its
		// previous entitlement rather than gaining one.
		return c.Status(fiber.StatusBadGateway).JSON(dto.VerifyReceiptResponse{
			Success: false, Message: "verification unavailable",
		})
	}

	return c.JSON(dto.VerifyReceiptResponse{Success: true, Plan: string(p)})
}

// Status reports the caller's subscription state. The uid field, when
// present, must match the authenticated user; a mismatch is rejected rather
// than silently answered for the wrong account.
func (h *SubscriptionHandler) Status(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.SubscriptionStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if req.UID != "" && req.UID != userID.String() {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "uid does not match authenticated user",
		})
	}

	resp, err := h.subscriptionService.CheckStatus(c.Context(), userID, req.Receipt, req.ProductID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to check subscription status",
		})
	}

	return c.JSON(resp)
}

func (h *SubscriptionHandler) Downgrade(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.DowngradePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.subscriptionService.Downgrade(c.Context(), userID, req.NewPlan); err != nil {
		if errors.Is(err, services.ErrDowngradeNotAllowed) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "only downgrades to Free are accepted",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to downgrade plan",
		})
	}

	return c.JSON(dto.DowngradePlanResponse{Success: true, Plan: "Free"})
}

func (h *SubscriptionHandler) Entitlements(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	resp, err := h.subscriptionService.Entitlements(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read entitlements",
		})
	}

	return c.JSON(resp)
}

// AuthorizeAnalysis gates app-key sentiment analysis. Paid plans pass
// through; Free users consume one of their lifetime trial slots.
func (h *SubscriptionHandler) AuthorizeAnalysis(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	resp, err := h.subscriptionService.AuthorizeAnalysis(c.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrFreeTrialExhausted) {
			return c.Status(fiber.StatusPaymentRequired).JSON(resp)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to authorize analysis",
		})
	}

	return c.JSON(resp)
}
