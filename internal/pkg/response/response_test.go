package response

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, app *fiber.App, path string) (int, SemanticResponse) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out SemanticResponse
	require.NoError(t, json.Unmarshal(b, &out))
	return resp.StatusCode, out
}

func TestWriters(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", func(c fiber.Ctx) error { return Success(c, fiber.StatusOK, "", []int{1}) })
	app.Get("/page", func(c fiber.Ctx) error { return Paginated(c, []int{1, 2}, 5, 2, 2) })
	app.Get("/bad", func(c fiber.Ctx) error { return Error(c, 42, "", nil) })

	status, body := decode(t, app, "/ok")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, MessageOK, body.Message)
	assert.Nil(t, body.Meta)

	_, body = decode(t, app, "/page")
	require.NotNil(t, body.Meta)
	assert.Equal(t, PageMeta{Total: 5, Limit: 2, Offset: 2, HasMore: true}, *body.Meta)

	status, body = decode(t, app, "/bad")
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, MessageInternalServerError, body.Message)
}
