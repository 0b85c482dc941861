package models

import "github.com/google/uuid"

// UserMeta holds per-user dashboard state: the latest notification, its
// unread count, the onboarding flag, and the profile picture object key.
type UserMeta struct {
	BaseModel
	UserID              uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex"`
	NotificationCount   int       `json:"notification_count" gorm:"not null;default:0"`
	Notification        *string   `json:"notification,omitempty" gorm:"type:text"`
	OnboardingCompleted bool      `json:"onboardingCompleted" gorm:"not null;default:false"`
	ProfilePictureID    *string   `json:"profilePictureId,omitempty" gorm:"type:varchar(255)"`
}
