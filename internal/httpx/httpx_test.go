package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name   string  `json:"name" validate:"required"`
	Amount float64 `json:"amount" validate:"gt=0"`
	Kind   string  `json:"kind" validate:"omitempty,oneof=a b"`
}

func TestValidateReportsJSONFieldName(t *testing.T) {
	err := Validate(&sampleRequest{Amount: 1})
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fiber.StatusBadRequest, fe.Code)
	assert.Equal(t, "name is required", fe.Message)

	err = Validate(&sampleRequest{Name: "x", Amount: 0})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "amount must be greater than 0", fe.Message)

	err = Validate(&sampleRequest{Name: "x", Amount: 2, Kind: "c"})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "kind must be one of: a b", fe.Message)

	require.NoError(t, Validate(&sampleRequest{Name: "x", Amount: 2, Kind: "b"}))
}

func decodeError(t *testing.T, body io.Reader) string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out["error"]
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/client", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusConflict, "already exists")
	})
	app.Get("/server", func(c *fiber.Ctx) error {
		return errors.New("db exploded")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/client", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already exists", decodeError(t, resp.Body))

	resp, err = app.Test(httptest.NewRequest("GET", "/server", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "unexpected server error", decodeError(t, resp.Body))
}

func TestDateRange(t *testing.T) {
	now := time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/r", func(c *fiber.Ctx) error {
		from, to, err := DateRange(c, now, 31)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"from": from.Format(DateLayout), "to": to.Format(DateLayout)})
	})

	cases := []struct {
		query    string
		status   int
		from, to string
	}{
		{"", 200, "2025-02-01", "2025-02-28"},
		{"?from=2025-03-05", 200, "2025-03-05", "2025-03-31"},
		{"?to=2025-03-20", 200, "2025-03-01", "2025-03-20"},
		{"?to=2025-01-31", 200, "2025-01-01", "2025-01-31"},
		{"?from=2025-01-10&to=2025-01-20", 200, "2025-01-10", "2025-01-20"},
		{"?from=2025-01-20&to=2025-01-10", 400, "", ""},
		{"?from=2025-01-01&to=2025-03-01", 400, "", ""},
		{"?from=01/01/2025", 400, "", ""},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", "/r"+tc.query, nil))
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, tc.query)
		if tc.status != 200 {
			continue
		}
		var out map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, tc.from, out["from"], tc.query)
		assert.Equal(t, tc.to, out["to"], tc.query)
	}
}

func TestRateLimitByIP(t *testing.T) {
	app := fiber.New()
	app.Post("/login", RateLimitByIP(2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestSecureHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(SecureHeaders(false))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
