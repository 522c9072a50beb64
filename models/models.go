package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionDetect  = "detect"
	ActionRewrite = "rewrite"
)

// User mirrors the public users table. ID is the auth service's user id.
type User struct {
	ID    string `gorm:"primaryKey" json:"id"`
	Email string `json:"email"`
}

func (User) TableName() string { return "users" }

type APIKey struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"index;not null" json:"user_id"`
	User       User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	KeyHash    string    `gorm:"uniqueIndex;not null" json:"-"`
	UsageCount int64     `gorm:"not null;default:0" json:"usage_count"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (APIKey) TableName() string { return "api_keys" }

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// Row returns the externally visible columns of the key.
func (k *APIKey) Row() APIKeyRow {
	return APIKeyRow{ID: k.ID, UsageCount: k.UsageCount, CreatedAt: k.CreatedAt}
}

// APIKeyRow is the column set returned to dashboard clients.
type APIKeyRow struct {
	ID         string    `json:"id"`
	UsageCount int64     `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// APIUsage is one call to the detection service. Rows are written by the
// detector; this service only reads them. Nullable columns depend on Action.
type APIUsage struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	APIKeyID    string    `gorm:"index;not null" json:"api_key_id"`
	Action      string    `gorm:"index" json:"action"`
	ElapsedTime float64   `json:"elapsed_time"`
	Flagged     *bool     `json:"flagged"`
	Success     *bool     `json:"success"`
	Risk        *float64  `json:"risk"`
	Iterations  *float64  `json:"iterations"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (APIUsage) TableName() string { return "api_usage" }

func (u *APIUsage) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type DetectStats struct {
	Total   int64   `json:"total"`
	Flagged int64   `json:"flagged"`
	Latency float64 `json:"latency"`
	Risk    float64 `json:"risk"`
}

type RewriteStats struct {
	Total      int64   `json:"total"`
	Success    int64   `json:"success"`
	Latency    float64 `json:"latency"`
	Iterations float64 `json:"iterations"`
}

// Analytics is the per-key aggregation. The rewrite block is published
// under "replace", the name dashboard clients already read.
type Analytics struct {
	Detect  DetectStats  `json:"detect"`
	Replace RewriteStats `json:"replace"`
}

type KeyStats struct {
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
