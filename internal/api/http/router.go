package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/license-service/internal/api/http/handlers"
	"github.com/spec-kit/license-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Sellers        *handlers.SellersHandler
	Licenses       *handlers.LicensesHandler
	Redemptions    *handlers.RedemptionsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/sellers/register", cfg.Sellers.Register)
	authGroup.Post("/sellers/login", cfg.Sellers.Login)

	// Public: end users redeem without a seller token.
	app.Post("/redeem", cfg.Redemptions.Redeem)

	licenses := app.Group("/licenses", cfg.AuthMiddleware.Handle)
	licenses.Get("/", cfg.Licenses.ListLicenses)
	licenses.Post("/", cfg.Licenses.CreateLicense)
	licenses.Get("/aggregates", cfg.Licenses.Aggregates)
	licenses.Get("/:id", cfg.Licenses.GetLicense)
	licenses.Patch("/:id", cfg.Licenses.UpdateLicense)
	licenses.Patch("/:id/status", cfg.Licenses.SetStatus)
	licenses.Delete("/:id", cfg.Licenses.DeleteLicense)
}
