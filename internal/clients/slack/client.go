// Package slack implements the chat side of the bridge with the Slack Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/clients/restclient"
	"github.com/spec-kit/ticket-bridge/internal/config"
	"github.com/spec-kit/ticket-bridge/internal/domain"
	apperrors "github.com/spec-kit/ticket-bridge/pkg/util/errorutil"
)

const systemName = "slack"

// APIError is an `ok: false` answer from the Web API.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

// Client posts and deletes messages with each tenant's bot token.
type Client struct {
	rest    *restclient.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a client. httpClient may be nil.
func NewClient(cfg config.SlackConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		rest: restclient.New(restclient.Options{
			Name:       systemName,
			HTTPClient: httpClient,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			UserAgent:  "ticket-bridge",
			Logger:     logger,
		}),
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		logger:  logger,
	}
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Mrkdwn   bool   `json:"mrkdwn"`
}

type deleteRequest struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
}

// PostMessage posts text to channel, inside threadTS when it is set.
func (c *Client) PostMessage(ctx context.Context, tenant *domain.TenantConfig, channel, text, threadTS string) (domain.ChatMessage, error) {
	var resp apiResponse
	err := c.call(ctx, tenant, "chat.postMessage", postMessageRequest{
		Channel:  channel,
		Text:     text,
		ThreadTS: threadTS,
		Mrkdwn:   true,
	}, &resp)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg := domain.ChatMessage{Channel: resp.Channel, TS: resp.TS}
	if msg.Channel == "" {
		msg.Channel = channel
	}
	return msg, nil
}

// DeleteMessage removes a message posted by the bot. An already deleted
// message is not an error.
func (c *Client) DeleteMessage(ctx context.Context, tenant *domain.TenantConfig, channel, ts string) error {
	var resp apiResponse
	err := c.call(ctx, tenant, "chat.delete", deleteRequest{Channel: channel, TS: ts}, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "message_not_found" {
		c.logger.Debug("message already deleted", zap.String("channel", channel), zap.String("ts", ts))
		return nil
	}
	return err
}

func (c *Client) call(ctx context.Context, tenant *domain.TenantConfig, method string, body any, resp *apiResponse) error {
	token := strings.TrimSpace(tenant.SlackBotToken)
	if token == "" {
		return apperrors.NewValidationError("tenant has no slack bot token", map[string]any{"tenant_id": tenant.TenantID})
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/" + method,
		Header: header,
		Body:   body,
	}, resp)
	if err != nil {
		return apperrors.NewUpstreamError(systemName, err)
	}
	if !resp.OK {
		return apperrors.NewUpstreamError(systemName, &APIError{Method: method, Code: resp.Error})
	}
	return nil
}
