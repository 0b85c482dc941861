package handlers

import (
	"bytes"
	"errors"
	"io"

	"github.com/cloudly/backend/internal/middleware"
	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/storage"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProfileHandler struct {
	DB      *gorm.DB
	Storage *storage.MinIOClient
}

func NewProfileHandler(db *gorm.DB, storageClient *storage.MinIOClient) *ProfileHandler {
	return &ProfileHandler{DB: db, Storage: storageClient}
}

// meta loads the caller's meta row, creating it lazily for accounts that
// predate the meta table.
func (h *ProfileHandler) meta(c *fiber.Ctx, userID uuid.UUID) (*models.UserMeta, error) {
	var meta models.UserMeta
	err := h.DB.WithContext(c.Context()).Where("user_id = ?", userID).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		meta = models.UserMeta{UserID: userID}
		if err := h.DB.WithContext(c.Context()).Create(&meta).Error; err != nil {
			return nil, err
		}
		return &meta, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (h *ProfileHandler) GetMeta(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	meta, err := h.meta(c, currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading profile")
	}

	return utils.Success(c, fiber.StatusOK, meta)
}

type onboardingRequest struct {
	Completed bool `json:"completed"`
}

func (h *ProfileHandler) SetOnboarding(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req onboardingRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	meta, err := h.meta(c, currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading profile")
	}

	if err := h.DB.WithContext(c.Context()).Model(meta).
		Update("onboarding_completed", req.Completed).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"onboardingCompleted": req.Completed})
}

// UploadPicture stores the image in the profile bucket under a fresh object
// id and points the caller's meta row at it.
func (h *ProfileHandler) UploadPicture(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	part, err := c.FormFile("picture")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "no picture provided")
	}

	src, err := part.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading picture")
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading picture")
	}

	meta, err := h.meta(c, currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading profile")
	}

	objectID := uuid.New().String()
	contentType := part.Header.Get("Content-Type")
	if err := h.Storage.Upload(c.Context(), h.Storage.ProfileBucket(), objectID,
		bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing picture")
	}

	previous := meta.ProfilePictureID
	if err := h.DB.WithContext(c.Context()).Model(meta).
		Update("profile_picture_id", objectID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}

	// Old picture is unreachable once the pointer moves; removal failure
	// only leaks an orphan object.
	if previous != nil && *previous != "" {
		if err := h.Storage.Delete(c.Context(), h.Storage.ProfileBucket(), *previous); err != nil {
			logger.WarnWithUser(currentUser.ID.String(), "orphaned_profile_picture", map[string]interface{}{
				"object_id": *previous,
				"error":     err.Error(),
			})
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"profilePictureId": objectID})
}

func (h *ProfileHandler) PictureURL(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	meta, err := h.meta(c, currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading profile")
	}
	if meta.ProfilePictureID == nil || *meta.ProfilePictureID == "" {
		return utils.Error(c, fiber.StatusNotFound, "no profile picture")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), h.Storage.ProfileBucket(), *meta.ProfilePictureID, previewURLExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating picture url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}

func (h *ProfileHandler) Notifications(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	meta, err := h.meta(c, currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading notifications")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"notificationCount": meta.NotificationCount,
		"notification":      meta.Notification,
	})
}

func (h *ProfileHandler) ClearNotifications(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	meta, err := h.meta(c, currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading notifications")
	}

	if err := h.DB.WithContext(c.Context()).Model(meta).Updates(map[string]interface{}{
		"notification_count": 0,
		"notification":       nil,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed clearing notifications")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"notificationCount": 0})
}
