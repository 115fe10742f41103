package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/api/dto"
	"github.com/spec-kit/ticket-bridge/internal/auth"
	"github.com/spec-kit/ticket-bridge/internal/repository"
	"github.com/spec-kit/ticket-bridge/internal/service"
	apperrors "github.com/spec-kit/ticket-bridge/pkg/util/errorutil"
)

const (
	slackURLVerification = "url_verification"
	slackEventCallback   = "event_callback"
	slackMessageEvent    = "message"
	slackFileShare       = "file_share"
)

// SlackHandler receives Slack Events API deliveries. Replies are relayed in
// the background so Slack gets its acknowledgement within its retry window.
type SlackHandler struct {
	tenants TenantLookup
	replies ChatReplyHandler
	runner  BackgroundRunner
	logger  *zap.Logger
	now     func() time.Time
}

// NewSlackHandler constructs handler.
func NewSlackHandler(tenants TenantLookup, replies ChatReplyHandler, runner BackgroundRunner, logger *zap.Logger) *SlackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackHandler{tenants: tenants, replies: replies, runner: runner, logger: logger, now: time.Now}
}

// Events POST /webhooks/slack/:tenantId.
func (h *SlackHandler) Events(c *fiber.Ctx) error {
	tenantID := param(c, "tenantId")
	tenant, err := h.tenants.GetConfig(c.UserContext(), tenantID)
	if repository.IsNotFound(err) {
		return apperrors.NewNotFound("tenant", map[string]any{"tenant_id": tenantID})
	}
	if err != nil {
		return apperrors.MapError(err)
	}

	if tenant.SlackSigningSecret != "" {
		err := auth.VerifySlackSignature(tenant.SlackSigningSecret,
			c.Get(auth.SlackTimestampHeader), c.Get(auth.SlackSignatureHeader), c.Body(), h.now())
		if err != nil {
			h.logger.Warn("slack signature rejected", zap.String("tenant_id", tenantID), zap.Error(err))
			return apperrors.NewUnauthorized("invalid request signature")
		}
	}

	var envelope dto.SlackEnvelope
	if err := json.Unmarshal(c.Body(), &envelope); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	switch envelope.Type {
	case slackURLVerification:
		return c.JSON(fiber.Map{"challenge": envelope.Challenge})
	case slackEventCallback:
	default:
		return h.ack(c, tenantID, "unsupported envelope "+envelope.Type)
	}

	ev := envelope.Event
	switch {
	case ev == nil || ev.Type != slackMessageEvent:
		return h.ack(c, tenantID, "not a message event")
	case ev.Subtype != "" && ev.Subtype != slackFileShare:
		return h.ack(c, tenantID, "message subtype "+ev.Subtype)
	case ev.BotID != "":
		return h.ack(c, tenantID, "bot message")
	case ev.ThreadTS == "" || ev.ThreadTS == ev.TS:
		return h.ack(c, tenantID, "not a thread reply")
	}

	reply := service.ChatReply{
		MessageTS: ev.TS,
		ThreadTS:  ev.ThreadTS,
		AuthorID:  ev.User,
		Text:      ev.Text,
	}
	err = h.runner.Go("slack-reply", func(ctx context.Context) error {
		res, err := h.replies.OnChatReply(ctx, tenantID, reply)
		if err != nil {
			return err
		}
		h.logger.Debug("slack reply handled",
			zap.String("tenant_id", tenantID),
			zap.String("message_ts", reply.MessageTS),
			zap.String("outcome", string(res.Outcome)),
			zap.String("reason", res.Reason),
		)
		return nil
	})
	if err != nil {
		h.logger.Warn("slack reply not queued", zap.String("tenant_id", tenantID), zap.Error(err))
		return apperrors.NewDomainError("SHUTTING_DOWN", "not accepting events", http.StatusServiceUnavailable, nil)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *SlackHandler) ack(c *fiber.Ctx, tenantID, reason string) error {
	h.logger.Debug("slack event dropped", zap.String("tenant_id", tenantID), zap.String("reason", reason))
	return c.JSON(fiber.Map{"ok": true})
}
