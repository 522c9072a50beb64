package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aitector/aitector/config"
	"github.com/aitector/aitector/middleware"
	"github.com/aitector/aitector/models"
	"github.com/aitector/aitector/services"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	Store  services.Store
	Config *config.Config
	Logger *slog.Logger
}

func NewHandler(store services.Store, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:  store,
		Config: cfg,
		Logger: logger,
	}
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// ownedKey loads the key named by the :id path parameter and checks that it
// belongs to the caller. When it returns a nil key the response is written.
func (h *Handler) ownedKey(c echo.Context) (*models.APIKey, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return nil, jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	id := c.Param("id")
	if id == "" {
		return nil, jsonError(c, http.StatusBadRequest, "Missing key id")
	}

	key, err := h.Store.GetAPIKey(c.Request().Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		return nil, jsonError(c, http.StatusNotFound, "Key not found")
	}
	if err != nil {
		h.Logger.Error("failed to fetch key", "key_id", id, "error", err)
		return nil, jsonError(c, http.StatusInternalServerError, "Failed to fetch key: "+err.Error())
	}
	if key.UserID != user.ID {
		return nil, jsonError(c, http.StatusForbidden, "Not allowed")
	}
	return key, nil
}
