package handlers

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/auth"
	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/repository"
	"github.com/spec-kit/ticket-bridge/internal/syncstate"
)

var slackNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type slackFixture struct {
	handler *SlackHandler
	replies *recordingReplies
	runner  *inlineRunner
}

func newSlackFixture(t *testing.T, signingSecret string) slackFixture {
	t.Helper()
	tenants := repository.NewTenantRepository(syncstate.NewMemoryStore())
	require.NoError(t, tenants.SaveConfig(context.Background(), &domain.TenantConfig{
		TenantID:           "T1",
		SlackBotToken:      "xoxb-1",
		SlackSigningSecret: signingSecret,
	}))
	replies := &recordingReplies{}
	runner := &inlineRunner{}
	h := NewSlackHandler(tenants, replies, runner, zap.NewNop())
	h.now = func() time.Time { return slackNow }
	return slackFixture{handler: h, replies: replies, runner: runner}
}

func signed(secret, body string, at time.Time) map[string]string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return map[string]string{
		auth.SlackTimestampHeader: ts,
		auth.SlackSignatureHeader: auth.SignSlackRequest(secret, ts, []byte(body)),
	}
}

const threadReply = `{"type":"event_callback","team_id":"TEAM","event":{"type":"message","user":"U1","text":"rebooted $hours=1","ts":"1700000100.000001","thread_ts":"1700000000.000100","channel":"C-NET"}}`

func TestSlackEventsRelaysThreadReply(t *testing.T) {
	fx := newSlackFixture(t, "")
	app := newTestApp()
	app.Post("/webhooks/slack/:tenantId", fx.handler.Events)

	status, resp := doJSON(t, app, http.MethodPost, "/webhooks/slack/T1", threadReply, nil)
	require.Equal(t, http.StatusOK, status, resp)

	require.Len(t, fx.replies.replies, 1)
	assert.Equal(t, "T1", fx.replies.tenants[0])
	got := fx.replies.replies[0]
	assert.Equal(t, "1700000100.000001", got.MessageTS)
	assert.Equal(t, "1700000000.000100", got.ThreadTS)
	assert.Equal(t, "U1", got.AuthorID)
	assert.Equal(t, "rebooted $hours=1", got.Text)
}

func TestSlackEventsURLVerification(t *testing.T) {
	fx := newSlackFixture(t, "")
	app := newTestApp()
	app.Post("/webhooks/slack/:tenantId", fx.handler.Events)

	status, resp := doJSON(t, app, http.MethodPost, "/webhooks/slack/T1",
		`{"type":"url_verification","challenge":"abc123"}`, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"challenge":"abc123"}`, resp)
}

func TestSlackEventsDropsNonReplies(t *testing.T) {
	fx := newSlackFixture(t, "")
	app := newTestApp()
	app.Post("/webhooks/slack/:tenantId", fx.handler.Events)

	for name, body := range map[string]string{
		"edit subtype": `{"type":"event_callback","event":{"type":"message","subtype":"message_changed","ts":"2","thread_ts":"1"}}`,
		"bot message":  `{"type":"event_callback","event":{"type":"message","bot_id":"B1","ts":"2","thread_ts":"1"}}`,
		"top level":    `{"type":"event_callback","event":{"type":"message","user":"U1","ts":"2"}}`,
		"thread root":  `{"type":"event_callback","event":{"type":"message","user":"U1","ts":"1","thread_ts":"1"}}`,
		"reaction":     `{"type":"event_callback","event":{"type":"reaction_added","user":"U1"}}`,
		"app limited":  `{"type":"app_rate_limited"}`,
	} {
		status, resp := doJSON(t, app, http.MethodPost, "/webhooks/slack/T1", body, nil)
		assert.Equal(t, http.StatusOK, status, name+": "+resp)
	}
	assert.Empty(t, fx.replies.replies)

	fileShare := `{"type":"event_callback","event":{"type":"message","subtype":"file_share","user":"U1","text":"log","ts":"2","thread_ts":"1"}}`
	status, _ := doJSON(t, app, http.MethodPost, "/webhooks/slack/T1", fileShare, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, fx.replies.replies, 1)
}

func TestSlackEventsSignature(t *testing.T) {
	fx := newSlackFixture(t, "shh")
	app := newTestApp()
	app.Post("/webhooks/slack/:tenantId", fx.handler.Events)

	status, _ := doJSON(t, app, http.MethodPost, "/webhooks/slack/T1", threadReply, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, app, http.MethodPost, "/webhooks/slack/T1", threadReply, signed("wrong", threadReply, slackNow))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, app, http.MethodPost, "/webhooks/slack/T1", threadReply, signed("shh", threadReply, slackNow.Add(-10*time.Minute)))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Empty(t, fx.replies.replies)

	status, resp := doJSON(t, app, http.MethodPost, "/webhooks/slack/T1", threadReply, signed("shh", threadReply, slackNow))
	assert.Equal(t, http.StatusOK, status, resp)
	assert.Len(t, fx.replies.replies, 1)
}

func TestSlackEventsUnknownTenantAndShutdown(t *testing.T) {
	fx := newSlackFixture(t, "")
	app := newTestApp()
	app.Post("/webhooks/slack/:tenantId", fx.handler.Events)

	status, _ := doJSON(t, app, http.MethodPost, "/webhooks/slack/T9", threadReply, nil)
	assert.Equal(t, http.StatusNotFound, status)

	fx.runner.stopped = true
	status, resp := doJSON(t, app, http.MethodPost, "/webhooks/slack/T1", threadReply, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, resp, "SHUTTING_DOWN")
}

func TestSlackEventsQueuedRelayKeepsTenant(t *testing.T) {
	ctx := context.Background()
	tenants := repository.NewTenantRepository(syncstate.NewMemoryStore())
	for _, id := range []string{"T1", "ZZ"} {
		require.NoError(t, tenants.SaveConfig(ctx, &domain.TenantConfig{TenantID: id, SlackBotToken: "xoxb-" + id}))
	}
	replies := &recordingReplies{}
	runner := &queuedRunner{}
	h := NewSlackHandler(tenants, replies, runner, zap.NewNop())

	app := newMutableTestApp()
	app.Post("/webhooks/slack/:tenantId", h.Events)
	for _, path := range []string{"/webhooks/slack/T1", "/webhooks/slack/ZZ"} {
		status, resp := doJSON(t, app, http.MethodPost, path, threadReply, nil)
		require.Equal(t, http.StatusOK, status, resp)
	}
	assert.Empty(t, replies.tenants, "relays run after the handler returns")

	runner.runAll()
	assert.Equal(t, []string{"T1", "ZZ"}, replies.tenants)
}
