package models

import (
	"time"

	"github.com/google/uuid"
)

type TokenPurpose string

const (
	TokenPurposeVerifyEmail   TokenPurpose = "verify_email"
	TokenPurposeResetPassword TokenPurpose = "reset_password"
)

// AuthToken is a one-shot token backing the email-verification and
// password-reset flows. A token is spent by setting UsedAt.
type AuthToken struct {
	BaseModel
	UserID    uuid.UUID    `json:"userId" gorm:"type:uuid;not null;index"`
	Token     string       `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	Purpose   TokenPurpose `json:"purpose" gorm:"type:varchar(20);not null"`
	ExpiresAt time.Time    `json:"expiresAt" gorm:"not null"`
	UsedAt    *time.Time   `json:"usedAt,omitempty"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

func (t *AuthToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
