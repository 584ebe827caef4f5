package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"testing"

	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/usecase"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"app error", NewAppError(fiber.StatusBadRequest, "limit must be an integer", nil, nil), 400, "limit must be an integer"},
		{"app error hides 5xx", NewAppError(fiber.StatusBadGateway, "upstream said x", nil, nil), 500, "internal server error"},
		{"validation", &job.ValidationError{Stage: job.StageMetadata, Field: "work_mode", Reason: "bad"}, 422, ""},
		{"invalid input", fmt.Errorf("%w: status %q", usecase.ErrInvalidInput, "x"), 400, ""},
		{"not found", usecase.ErrNotFound, 404, "not found"},
		{"conflict", job.ErrPersistenceConflict, 409, "conflict"},
		{"fiber", fiber.NewError(fiber.StatusMethodNotAllowed, "nope"), 405, "nope"},
		{"unknown", errors.New("dial tcp: secret"), 500, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg, _ := normalizeError(tc.err)
			assert.Equal(t, tc.status, status)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, msg)
			}
		})
	}
}

func TestErrorMiddleware_RecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(NewErrorMiddleware(log.New(&buf, "", 0)).Middleware())
	app.Get("/boom", func(c fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 500, resp.StatusCode)
	assert.NotContains(t, string(body), "kaboom")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(NewAccessLogMiddleware(log.New(&buf, "", 0), "/health").Middleware())
	app.Use(NewErrorMiddleware(log.New(io.Discard, "", 0)).Middleware())
	app.Get("/health", func(c fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/jobs", func(c fiber.Ctx) error { return NewAppError(fiber.StatusBadRequest, "bad", nil, nil) })

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Empty(t, buf.String())

	req := httptest.NewRequest("GET", "/jobs", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "rid-1", resp.Header.Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "rid=rid-1")
	assert.Contains(t, buf.String(), "status=400")
}
