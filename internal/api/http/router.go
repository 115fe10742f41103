package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bridge/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bridge/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Connectwise    *handlers.ConnectwiseHandler
	Slack          *handlers.SlackHandler
	Tenants        *handlers.TenantHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	hooks := app.Group("/webhooks")
	hooks.Post("/connectwise/:tenantId", cfg.Connectwise.Callback)
	hooks.Post("/slack/:tenantId", cfg.Slack.Events)

	guard := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireTenantAccess("tenantId")}
	protected := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, guard...), h)
	}

	admin := app.Group("/api/tenants")
	admin.Get("/:tenantId", protected(cfg.Tenants.GetConfig)...)
	admin.Put("/:tenantId", protected(cfg.Tenants.PutConfig)...)
	admin.Get("/:tenantId/rules", protected(cfg.Tenants.ListRules)...)
	admin.Post("/:tenantId/rules", protected(cfg.Tenants.CreateRule)...)
	admin.Put("/:tenantId/rules/:ruleId", protected(cfg.Tenants.UpdateRule)...)
	admin.Delete("/:tenantId/rules/:ruleId", protected(cfg.Tenants.DeleteRule)...)
	admin.Post("/:tenantId/sync/:companyId", protected(cfg.Tenants.SyncOpenTickets)...)
}
