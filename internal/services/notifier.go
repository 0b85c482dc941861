package services

import (
	"errors"

	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type notification struct {
	userID  uuid.UUID
	message string
}

// Notifier records user-facing notifications on the user-meta row through a
// buffered queue, so callers never block on the write.
type Notifier struct {
	db    *gorm.DB
	queue chan notification
}

func NewNotifier(db *gorm.DB) *Notifier {
	n := &Notifier{
		db:    db,
		queue: make(chan notification, 256),
	}
	go n.processQueue()
	return n
}

// Notify enqueues a notification; a full queue drops it with a warning
// rather than blocking the caller.
func (n *Notifier) Notify(userID uuid.UUID, message string) {
	select {
	case n.queue <- notification{userID: userID, message: message}:
	default:
		logger.Warn("notification_queue_full", map[string]interface{}{
			"user_id": userID.String(),
			"dropped": true,
		})
	}
}

func (n *Notifier) processQueue() {
	for item := range n.queue {
		if err := n.apply(item); err != nil {
			logger.Error("notification_write_failed", err, map[string]interface{}{
				"user_id": item.userID.String(),
			})
		}
	}
}

// apply bumps the unread count and replaces the latest message, creating the
// meta row on first use.
func (n *Notifier) apply(item notification) error {
	var meta models.UserMeta
	err := n.db.First(&meta, "user_id = ?", item.userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		meta = models.UserMeta{
			UserID:            item.userID,
			NotificationCount: 1,
			Notification:      &item.message,
		}
		return n.db.Create(&meta).Error
	}
	if err != nil {
		return err
	}

	return n.db.Model(&models.UserMeta{}).Where("id = ?", meta.ID).Updates(map[string]interface{}{
		"notification_count": meta.NotificationCount + 1,
		"notification":       item.message,
	}).Error
}
