package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-bridge/internal/service"
	"github.com/spec-kit/ticket-bridge/internal/worker"
	apperrors "github.com/spec-kit/ticket-bridge/pkg/util/errorutil"
)

// newTestApp matches the production fiber config.
func newTestApp() *fiber.App {
	return newApp(true)
}

// newMutableTestApp keeps fiber's default of request strings that alias the
// reused request buffer.
func newMutableTestApp() *fiber.App {
	return newApp(false)
}

func newApp(immutable bool) *fiber.App {
	return fiber.New(fiber.Config{
		Immutable: immutable,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": domainErr.Code}})
		},
	})
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, header map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []service.TicketEvent
	result service.EventResult
	err    error
}

func (r *recordingEvents) OnTicketEvent(_ context.Context, ev service.TicketEvent) (service.EventResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.result, r.err
}

type recordingReplies struct {
	mu      sync.Mutex
	tenants []string
	replies []service.ChatReply
}

func (r *recordingReplies) OnChatReply(_ context.Context, tenantID string, reply service.ChatReply) (service.RelayResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, tenantID)
	r.replies = append(r.replies, reply)
	return service.RelayResult{Outcome: service.RelayWritten}, nil
}

// inlineRunner runs tasks before returning so assertions see their effects.
type inlineRunner struct {
	stopped bool
	pending int
}

func (r *inlineRunner) Go(_ string, task worker.Task) error {
	if r.stopped {
		return worker.ErrStopped
	}
	_ = task(context.Background())
	return nil
}

func (r *inlineRunner) Pending() int { return r.pending }

// queuedRunner holds tasks until runAll, like a busy worker pool.
type queuedRunner struct {
	mu    sync.Mutex
	tasks []worker.Task
}

func (r *queuedRunner) Go(_ string, task worker.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *queuedRunner) runAll() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()
	for _, task := range tasks {
		_ = task(context.Background())
	}
}
