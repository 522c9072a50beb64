package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aitector/aitector/services"
	"github.com/labstack/echo/v4"
)

const userContextKey = "user"

type AuthMiddleware struct {
	Resolver services.TokenResolver
	Logger   *slog.Logger
}

func NewAuthMiddleware(resolver services.TokenResolver, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		Resolver: resolver,
		Logger:   logger,
	}
}

func (m *AuthMiddleware) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := BearerToken(c.Request())
		if token == "" {
			return unauthorized(c)
		}

		user, err := m.Resolver.ResolveUser(c.Request().Context(), token)
		if err != nil {
			// Upstream failure is indistinguishable from a bad token for the caller.
			m.Logger.Warn("token resolution failed", "error", err)
			return unauthorized(c)
		}
		if user == nil || user.ID == "" {
			return unauthorized(c)
		}

		c.Set(userContextKey, user)
		return next(c)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get(echo.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CurrentUser returns the user stored by AuthMiddleware, or nil.
func CurrentUser(c echo.Context) *services.AuthUser {
	user, _ := c.Get(userContextKey).(*services.AuthUser)
	return user
}

// SetUser is used by tests and callers that authenticate by other means.
func SetUser(c echo.Context, user *services.AuthUser) {
	c.Set(userContextKey, user)
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}
