package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/api/dto"
	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/service"
	apperrors "github.com/spec-kit/ticket-bridge/pkg/util/errorutil"
)

// ConnectwiseHandler receives ticket callbacks.
type ConnectwiseHandler struct {
	events TicketEventHandler
	logger *zap.Logger
}

// NewConnectwiseHandler constructs handler.
func NewConnectwiseHandler(events TicketEventHandler, logger *zap.Logger) *ConnectwiseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectwiseHandler{events: events, logger: logger}
}

// Callback POST /webhooks/connectwise/:tenantId.
func (h *ConnectwiseHandler) Callback(c *fiber.Ctx) error {
	tenantID := param(c, "tenantId")
	var req dto.ConnectwiseCallback
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticketID := req.RecordID()
	if ticketID == "" {
		ticketID = strings.TrimSpace(query(c, "recordId"))
	}
	if ticketID == "" {
		return apperrors.NewValidationError("ID is required", nil)
	}

	entity, err := req.ParseEntity()
	if err != nil {
		return apperrors.NewValidationError("invalid Entity", map[string]any{"reason": err.Error()})
	}

	action := domain.TicketAction(strings.ToLower(strings.TrimSpace(req.Action)))
	companyID := req.Company()
	if entity == nil {
		action = domain.TicketActionDeleted
	} else if id := entity.CompanyID(); id != "" {
		companyID = id
	}

	result, err := h.events.OnTicketEvent(c.UserContext(), service.TicketEvent{
		TenantID:  tenantID,
		TicketID:  ticketID,
		Action:    action,
		CompanyID: companyID,
	})
	if err != nil {
		h.logger.Error("ticket callback failed",
			zap.String("tenant_id", tenantID),
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": ticketEventResponse(result)})
}

func ticketEventResponse(r service.EventResult) dto.TicketEventResponse {
	resp := dto.TicketEventResponse{
		Outcome:  string(r.Outcome),
		Reason:   r.Reason,
		Thread:   string(r.Thread.Outcome),
		ThreadTS: r.Thread.ThreadTS,
		Channel:  r.Thread.Channel,
		Assigned: r.Assigned,
	}
	for _, m := range r.Mirrored {
		if !m.Duplicate {
			resp.Mirrored = append(resp.Mirrored, m.EntryID)
		}
	}
	return resp
}
