package handlers

import (
	"net/http"
	"strings"

	"github.com/aitector/aitector/middleware"
	"github.com/aitector/aitector/models"
	"github.com/labstack/echo/v4"
)

type AuthCallbackRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// AuthCallback records the signed-in user after the magic link round trip.
func (h *Handler) AuthCallback(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	var req AuthCallbackRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Email = strings.TrimSpace(req.Email)
	if req.UserID == "" || req.Email == "" {
		return jsonError(c, http.StatusBadRequest, "Missing user_id or email")
	}
	if req.UserID != user.ID {
		return jsonError(c, http.StatusForbidden, "Not allowed")
	}

	row, err := h.Store.UpsertUser(c.Request().Context(), models.User{ID: req.UserID, Email: req.Email})
	if err != nil {
		h.Logger.Error("failed to upsert user", "user_id", req.UserID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to create user record")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"data": row})
}
