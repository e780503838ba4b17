package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hourglass-app/kotonoiro-backend/internal/dto"
	"github.com/hourglass-app/kotonoiro-backend/internal/middleware"
	"github.com/hourglass-app/kotonoiro-backend/internal/plan"
	"github.com/hourglass-app/kotonoiro-backend/internal/services"
)

type QuotaHandler struct {
	quotaService *services.QuotaService
}

func NewQuotaHandler(quotaService *services.QuotaService) *QuotaHandler {
	return &QuotaHandler{quotaService: quotaService}
}

// Reserve grants up to the requested seconds against the caller's monthly
// quota. A grant smaller than the request is still a success; the client
// records for the granted duration only.
func (h *QuotaHandler) Reserve(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.ReserveQuotaRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if req.YearMonth == "" {
		req.YearMonth = plan.YearMonth(time.Now().UTC())
	}

	result, err := h.quotaService.Reserve(c.Context(), userID, req.YearMonth, req.RequestedSeconds)
	if err != nil {
		if errors.Is(err, services.ErrInvalidMonthKey) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to reserve quota",
		})
	}

	return c.JSON(dto.ReserveQuotaResponse{
		Success:   result.Granted,
		Reserved:  result.Reserved,
		Remaining: result.Remaining,
		Message:   result.Reason,
	})
}

func (h *QuotaHandler) Consume(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.ConsumeQuotaRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if req.YearMonth == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "yearMonth is required",
		})
	}

	if err := h.quotaService.Consume(c.Context(), userID, req.YearMonth, req.ActualSeconds, req.ReleasedSeconds); err != nil {
		if errors.Is(err, services.ErrInvalidMonthKey) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to record usage",
		})
	}

	return c.JSON(dto.ConsumeQuotaResponse{Success: true})
}

func (h *QuotaHandler) Status(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	yearMonth := c.Query("yearMonth")
	if yearMonth == "" {
		yearMonth = plan.YearMonth(time.Now().UTC())
	}

	entry, p, err := h.quotaService.Status(c.Context(), userID, yearMonth)
	if err != nil {
		if errors.Is(err, services.ErrInvalidMonthKey) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read quota status",
		})
	}

	ceiling := p.QuotaCeiling()
	remaining := ceiling - entry.UsedSeconds - entry.ReservedSeconds
	if remaining < 0 {
		remaining = 0
	}

	return c.JSON(dto.QuotaStatusResponse{
		YearMonth:       yearMonth,
		Plan:            string(p),
		Ceiling:         ceiling,
		UsedSeconds:     entry.UsedSeconds,
		ReservedSeconds: entry.ReservedSeconds,
		Remaining:       remaining,
	})
}

// History returns the caller's per-month ledger rows, newest first. Rows
// older than the plan's history window are filtered out.
func (h *QuotaHandler) History(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	entries, err := h.quotaService.History(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read quota history",
		})
	}

	currentKey := plan.YearMonth(time.Now().UTC())
	_, p, err := h.quotaService.Status(c.Context(), userID, currentKey)
	if err != nil {
		p = plan.Free
	}

	visible := entries[:0]
	for _, e := range entries {
		if p.CanAccessMonth(e.YearMonth, currentKey) {
			visible = append(visible, e)
		}
	}

	return c.JSON(fiber.Map{"plan": string(p), "entries": visible})
}
