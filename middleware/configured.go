package middleware

import (
	"net/http"

	"github.com/aitector/aitector/config"
	"github.com/labstack/echo/v4"
)

// RequireConfigured answers 500 on every route when the backend credentials
// are missing. It runs before authentication so no input is inspected.
func RequireConfigured(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg == nil || cfg.Misconfigured() {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server misconfigured"})
			}
			return next(c)
		}
	}
}
