package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(token string) *fiber.App {
	app := fiber.New()
	app.Get("/guarded", Middleware(token), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		query  string
		want   int
	}{
		{name: "disabled", token: "", want: fiber.StatusOK},
		{name: "missing", token: "s3cret", want: fiber.StatusUnauthorized},
		{name: "wrong header", token: "s3cret", header: "nope", want: fiber.StatusUnauthorized},
		{name: "header", token: "s3cret", header: "s3cret", want: fiber.StatusOK},
		{name: "query", token: "s3cret", query: "s3cret", want: fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/guarded"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(fiber.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(HeaderName, tt.header)
			}

			resp, err := newApp(tt.token).Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
