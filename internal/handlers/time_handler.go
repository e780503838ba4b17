package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hourglass-app/kotonoiro-backend/internal/dto"
)

type TimeHandler struct{}

func NewTimeHandler() *TimeHandler {
	return &TimeHandler{}
}

// Now serves the trusted wall clock. Clients compute a monotonic offset from
// it so month boundaries cannot be moved by adjusting the device clock.
func (h *TimeHandler) Now(c *fiber.Ctx) error {
	now := time.Now().UTC()
	return c.JSON(dto.TimeResponse{
		UnixMilli: now.UnixMilli(),
		UTC:       now.Format(time.RFC3339),
	})
}
