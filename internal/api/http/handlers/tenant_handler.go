package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bridge/internal/api/dto"
	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/service"
	apperrors "github.com/spec-kit/ticket-bridge/pkg/util/errorutil"
)

// TenantHandler serves the tenant admin API.
type TenantHandler struct {
	service *service.TenantService
	syncer  OpenTicketSyncer
}

// NewTenantHandler constructs handler.
func NewTenantHandler(tenantService *service.TenantService, syncer OpenTicketSyncer) *TenantHandler {
	return &TenantHandler{service: tenantService, syncer: syncer}
}

// GetConfig GET /api/tenants/:tenantId.
func (h *TenantHandler) GetConfig(c *fiber.Ctx) error {
	cfg, err := h.service.GetConfig(c.UserContext(), param(c, "tenantId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTenantConfigResponse(cfg)})
}

// PutConfig PUT /api/tenants/:tenantId.
func (h *TenantHandler) PutConfig(c *fiber.Ctx) error {
	var req domain.TenantConfig
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	// Echoed placeholders from a previous GET keep the stored secret.
	for _, secret := range []*string{&req.SlackBotToken, &req.SlackSigningSecret, &req.ConnectwisePrivateKey} {
		if dto.IsRedacted(*secret) {
			*secret = ""
		}
	}
	cfg, err := h.service.PutConfig(c.UserContext(), param(c, "tenantId"), &req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTenantConfigResponse(cfg)})
}

// ListRules GET /api/tenants/:tenantId/rules.
func (h *TenantHandler) ListRules(c *fiber.Ctx) error {
	rules, err := h.service.ListRules(c.UserContext(), param(c, "tenantId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rules})
}

// CreateRule POST /api/tenants/:tenantId/rules.
func (h *TenantHandler) CreateRule(c *fiber.Ctx) error {
	var rule domain.RoutingRule
	if err := c.BodyParser(&rule); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	saved, err := h.service.SaveRule(c.UserContext(), param(c, "tenantId"), &rule)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": saved})
}

// UpdateRule PUT /api/tenants/:tenantId/rules/:ruleId.
func (h *TenantHandler) UpdateRule(c *fiber.Ctx) error {
	var rule domain.RoutingRule
	if err := c.BodyParser(&rule); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ruleID := param(c, "ruleId")
	if rule.RuleID != "" && rule.RuleID != ruleID {
		return apperrors.NewValidationError("rule id cannot change", map[string]any{"rule_id": ruleID})
	}
	rule.RuleID = ruleID
	saved, err := h.service.SaveRule(c.UserContext(), param(c, "tenantId"), &rule)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": saved})
}

// DeleteRule DELETE /api/tenants/:tenantId/rules/:ruleId.
func (h *TenantHandler) DeleteRule(c *fiber.Ctx) error {
	if err := h.service.DeleteRule(c.UserContext(), param(c, "tenantId"), param(c, "ruleId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// SyncOpenTickets POST /api/tenants/:tenantId/sync/:companyId.
func (h *TenantHandler) SyncOpenTickets(c *fiber.Ctx) error {
	tenantID := param(c, "tenantId")
	summary, err := h.syncer.SyncOpenTickets(c.UserContext(), tenantID, param(c, "companyId"))
	if errors.Is(err, service.ErrTenantNotFound) {
		return apperrors.NewNotFound("tenant", map[string]any{"tenant_id": tenantID})
	}
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": summary})
}
