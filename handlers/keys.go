package handlers

import (
	"errors"
	"net/http"

	"github.com/aitector/aitector/middleware"
	"github.com/aitector/aitector/models"
	"github.com/aitector/aitector/services"
	"github.com/labstack/echo/v4"
)

// CreateKeyRequest exists to reject key material sent by older clients.
// Keys are always generated here.
type CreateKeyRequest struct {
	HashedKey string `json:"hashed_key"`
	Key       string `json:"key"`
}

type CreateKeyResponse struct {
	Key string           `json:"key"`
	Row models.APIKeyRow `json:"row"`
}

func (h *Handler) CreateKey(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	var req CreateKeyRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request")
	}
	if req.HashedKey != "" || req.Key != "" {
		return jsonError(c, http.StatusBadRequest, "Key material is generated by the server")
	}

	ctx := c.Request().Context()

	if _, err := h.Store.UpsertUser(ctx, models.User{ID: user.ID, Email: user.Email}); err != nil {
		h.Logger.Error("failed to ensure user", "user_id", user.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to ensure user record exists: "+err.Error())
	}

	if limit := h.Config.MaxKeysPerUser; limit > 0 {
		count, err := h.Store.CountAPIKeys(ctx, user.ID)
		if err != nil {
			h.Logger.Error("failed to count keys", "user_id", user.ID, "error", err)
			return jsonError(c, http.StatusInternalServerError, "Failed to fetch key count: "+err.Error())
		}
		if count >= int64(limit) {
			return jsonError(c, http.StatusBadRequest, "Max active keys limit reached")
		}
	}

	plain, err := services.GenerateKey()
	if err != nil {
		h.Logger.Error("failed to generate key", "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to generate key")
	}
	hash, err := services.HashKey(plain)
	if err != nil {
		h.Logger.Error("failed to hash key", "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to generate key")
	}

	row, err := h.Store.InsertAPIKey(ctx, user.ID, hash)
	if errors.Is(err, services.ErrForeignKey) {
		h.Logger.Error("key insert violated user foreign key", "user_id", user.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to create key: user record missing")
	}
	if err != nil {
		h.Logger.Error("failed to insert key", "user_id", user.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to create key: "+err.Error())
	}

	h.Logger.Info("api key created", "user_id", user.ID, "key_id", row.ID)
	return c.JSON(http.StatusOK, CreateKeyResponse{Key: plain, Row: *row})
}

func (h *Handler) ListKeys(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	rows, err := h.Store.ListAPIKeys(c.Request().Context(), user.ID)
	if err != nil {
		h.Logger.Error("failed to list keys", "user_id", user.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to fetch keys: "+err.Error())
	}
	if rows == nil {
		rows = []models.APIKeyRow{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"data": rows})
}

func (h *Handler) DeleteKey(c echo.Context) error {
	key, resp := h.ownedKey(c)
	if key == nil {
		return resp
	}

	err := h.Store.DeleteAPIKey(c.Request().Context(), key.ID)
	if errors.Is(err, services.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "Key not found")
	}
	if err != nil {
		h.Logger.Error("failed to delete key", "key_id", key.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to delete key: "+err.Error())
	}

	h.Logger.Info("api key revoked", "user_id", key.UserID, "key_id", key.ID)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) KeyStats(c echo.Context) error {
	key, resp := h.ownedKey(c)
	if key == nil {
		return resp
	}

	ctx := c.Request().Context()
	count, err := h.Store.CountUsage(ctx, key.ID)
	if err != nil {
		h.Logger.Error("failed to count usage", "key_id", key.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to fetch usage: "+err.Error())
	}
	last, err := h.Store.LastUsedAt(ctx, key.ID)
	if err != nil {
		h.Logger.Error("failed to fetch last usage", "key_id", key.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to fetch usage: "+err.Error())
	}

	return c.JSON(http.StatusOK, models.KeyStats{UsageCount: count, LastUsedAt: last})
}
