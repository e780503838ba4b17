package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/hourglass-app/kotonoiro-backend/internal/config"
	"github.com/hourglass-app/kotonoiro-backend/internal/handlers"
	"github.com/hourglass-app/kotonoiro-backend/internal/middleware"
	"gorm.io/gorm"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	timeHandler *handlers.TimeHandler,
	quotaHandler *handlers.QuotaHandler,
	subscriptionHandler *handlers.SubscriptionHandler,
	webhookHandler *handlers.WebhookHandler,
	adminHandler *handlers.AdminHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Public
	api.Get("/health", healthHandler.Check)
	api.Get("/time", timeHandler.Now)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)

	// Protected routes (JWT required) - apply middleware to individual routes
	// so it never affects public routes
	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)

	api.Post("/quota/reserve", middleware.JWTProtected(cfg), quotaHandler.Reserve)
	api.Post("/quota/consume", middleware.JWTProtected(cfg), quotaHandler.Consume)
	api.Get("/quota/status", middleware.JWTProtected(cfg), quotaHandler.Status)
	api.Get("/quota/history", middleware.JWTProtected(cfg), quotaHandler.History)

	api.Post("/subscription/verify", middleware.JWTProtected(cfg), subscriptionHandler.VerifyReceipt)
	api.Post("/subscription/status", middleware.JWTProtected(cfg), subscriptionHandler.Status)
	api.Post("/subscription/downgrade", middleware.JWTProtected(cfg), subscriptionHandler.Downgrade)
	api.Get("/subscription/entitlements", middleware.JWTProtected(cfg), subscriptionHandler.Entitlements)
	api.Post("/analysis/authorize", middleware.JWTProtected(cfg), subscriptionHandler.AuthorizeAnalysis)

	// Admin (protected + admin required)
	admin := api.Group("/admin", middleware.JWTProtected(cfg), middleware.AdminRequired(db, cfg))
	admin.Get("/quota/:user_id", adminHandler.UserQuotaHistory)
	admin.Get("/subscription/:user_id", adminHandler.UserSubscription)

	// Webhooks use shared-secret auth via query token, not JWT.
	webhooks := api.Group("/webhooks")
	webhooks.Post("/play", webhookHandler.HandlePlayNotification)
}
