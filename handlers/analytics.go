package handlers

import (
	"net/http"

	"github.com/aitector/aitector/services"
	"github.com/labstack/echo/v4"
)

func (h *Handler) Analytics(c echo.Context) error {
	key, resp := h.ownedKey(c)
	if key == nil {
		return resp
	}

	ctx := c.Request().Context()
	count, err := h.Store.CountUsage(ctx, key.ID)
	if err != nil {
		h.Logger.Error("failed to count usage", "key_id", key.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "failed to fetch usage data")
	}
	if count == 0 {
		return c.JSON(http.StatusOK, services.EmptyAnalytics())
	}

	rows, err := h.Store.ListUsage(ctx, key.ID)
	if err != nil {
		h.Logger.Error("failed to list usage", "key_id", key.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "failed to fetch usage data")
	}

	return c.JSON(http.StatusOK, services.AggregateUsage(rows))
}
