package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"creditflow/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = NewLogger(&buf, "production", "debug")
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestContextHandlerAddsRequestFields(t *testing.T) {
	buf := captureLogs(t)
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, ActorKey, "Jane")
	Logger.With("component", "test").InfoContext(ctx, "hello")

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "Jane", lines[0]["actor"])
	assert.Equal(t, "test", lines[0]["component"])
}

func TestStructuredLogger(t *testing.T) {
	buf := captureLogs(t)

	app := fiber.New()
	app.Use(StructuredLogger())
	app.Get("/api/credit/requests/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "0" {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/api/ws/credit", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for _, path := range []string{"/api/credit/requests/7", "/api/credit/requests/0", "/health/live", "/api/ws/credit?token=secret"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	lines := logLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "/api/credit/requests/:id", lines[0]["route"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.NotContains(t, buf.String(), "secret")
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "development", "chatty")
	l.Debug("hidden")
	l.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestContextMiddlewareSetsCorrelationID(t *testing.T) {
	buf := captureLogs(t)
	prev := observability.GlobalLogger
	observability.SetLogger(Logger)
	t.Cleanup(func() { observability.GlobalLogger = prev })

	app := fiber.New()
	app.Use(requestid.New())
	app.Get("/with-id", ContextMiddleware(), func(c *fiber.Ctx) error {
		observability.NewStructuredLogger().LogServiceCall(c.UserContext(), "CreditService", "List", nil)
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/without-id", func(c *fiber.Ctx) error {
		c.Locals("requestid", nil)
		return c.Next()
	}, ContextMiddleware(), func(c *fiber.Ctx) error {
		observability.NewStructuredLogger().LogServiceCall(c.UserContext(), "CreditService", "List", nil)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/with-id", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	rid := resp.Header.Get(fiber.HeaderXRequestID)
	require.NotEmpty(t, rid)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/without-id", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()

	lines := logLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, rid, lines[0]["correlation_id"])
	assert.Equal(t, rid, lines[0]["request_id"])
	assert.NotEmpty(t, lines[1]["correlation_id"])
	assert.NotEqual(t, rid, lines[1]["correlation_id"])
}
