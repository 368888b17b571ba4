package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/loomperapp-jpg/loomper-backend/internal/middleware"
)

type RouteConfig struct {
	JWTSecret      string
	InternalAPIKey string
}

func (h *Handler) Register(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", h.Health)

	// Provider callbacks (no auth, payment is re-fetched from the provider)
	app.Post("/webhook/mercadopago", h.MercadoPagoWebhook)

	api := app.Group("/api", middleware.JWTAuth(cfg.JWTSecret))
	api.Get("/packages", h.ListPackages)
	api.Post("/checkout/preference", h.CreatePreference)
	api.Get("/wallet", h.GetWallet)
	api.Get("/wallet/transactions", h.GetTransactions)

	internal := app.Group("/internal", middleware.InternalKey(cfg.InternalAPIKey))
	internal.Post("/users", h.CreateUser)
	internal.Get("/users/:id", h.GetUser)
	internal.Put("/users/:id/active-referrals", h.SetActiveReferrals)
	internal.Put("/users/:id/campaign", h.EnrollCampaign)
	internal.Post("/users/:id/usage", h.RecordUsage)

	internal.Post("/cron/expire", h.RunExpirySweep)
	internal.Post("/cron/renew", h.RunRenewalSweep)
	internal.Post("/cron/commissions", h.RunCommissionRetries)
}
