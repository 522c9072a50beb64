package handlers

import (
	"net/http"

	"github.com/aitector/aitector/middleware"
	"github.com/labstack/echo/v4"
)

// GetMe returns the caller as resolved from the session token.
func (h *Handler) GetMe(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": user})
}
