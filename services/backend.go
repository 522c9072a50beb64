package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aitector/aitector/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrForeignKey      = errors.New("foreign key violation")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// AuthUser is the caller as resolved by the auth service.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// TokenResolver resolves a session access token to its user. A rejected
// token yields (nil, nil); errors are reserved for upstream failures.
type TokenResolver interface {
	ResolveUser(ctx context.Context, token string) (*AuthUser, error)
}

// Store is the set of table operations the handlers need.
type Store interface {
	UpsertUser(ctx context.Context, user models.User) (*models.User, error)
	InsertAPIKey(ctx context.Context, userID, keyHash string) (*models.APIKeyRow, error)
	ListAPIKeys(ctx context.Context, userID string) ([]models.APIKeyRow, error)
	CountAPIKeys(ctx context.Context, userID string) (int64, error)
	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	CountUsage(ctx context.Context, keyID string) (int64, error)
	LastUsedAt(ctx context.Context, keyID string) (*time.Time, error)
	ListUsage(ctx context.Context, keyID string) ([]models.APIUsage, error)
}

// APIError is a non-2xx answer from the hosted service.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code %s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Is lets callers match postgres error classes with errors.Is. An id that
// is not a valid uuid (22P02) can never match a row, so it is reported as
// not found.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrForeignKey:
		return e.Code == "23503"
	case ErrNotFound:
		return e.Code == "PGRST116" || e.Code == "22P02"
	}
	return false
}
