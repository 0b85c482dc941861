package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudly/backend/internal/events"
	"github.com/cloudly/backend/internal/middleware"
	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/navigation"
	"github.com/cloudly/backend/internal/services"
	"github.com/cloudly/backend/internal/store"
	"github.com/cloudly/backend/internal/storage"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const previewURLExpiry = 15 * time.Minute

type FilesHandler struct {
	Records   *store.FileStore
	Listing   *services.ListingService
	Counts    *services.CountsService
	Folders   *services.FoldersService
	Lifecycle *services.LifecycleService
	Storage   *storage.MinIOClient
	Bus       *events.Bus
}

func NewFilesHandler(records *store.FileStore, listing *services.ListingService, counts *services.CountsService, folders *services.FoldersService, lifecycle *services.LifecycleService, storageClient *storage.MinIOClient, bus *events.Bus) *FilesHandler {
	return &FilesHandler{
		Records:   records,
		Listing:   listing,
		Counts:    counts,
		Folders:   folders,
		Lifecycle: lifecycle,
		Storage:   storageClient,
		Bus:       bus,
	}
}

// ownedRecord loads a record and hides other owners' records behind the same
// 404 as a missing one.
func (h *FilesHandler) ownedRecord(c *fiber.Ctx) (*models.FileRecord, error) {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return nil, utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	record, err := h.Records.Get(c.Context(), fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return nil, utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}
	if record.OwnerID != currentUser.ID {
		return nil, utils.Error(c, fiber.StatusNotFound, "file not found")
	}
	return record, nil
}

// List resolves the caller's navigation selection to rows.
func (h *FilesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	sel, err := navigation.Parse(
		c.Query("section"),
		c.Query("type"),
		c.Query("folder"),
		c.Query("view"),
	)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	rows, err := h.Listing.Resolve(c.Context(), currentUser.ID, sel)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}

	return utils.Success(c, fiber.StatusOK, rows)
}

func (h *FilesHandler) FileCounts(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	counts, err := h.Counts.Counts(c.Context(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed computing counts")
	}

	return utils.Success(c, fiber.StatusOK, counts)
}

func (h *FilesHandler) ListFolders(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folders, err := h.Folders.Folders(c.Context(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deriving folders")
	}

	return utils.Success(c, fiber.StatusOK, folders)
}

// Version exposes the files-changed counter for client change polling.
func (h *FilesHandler) Version(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"version": h.Bus.Version(events.TopicFilesChanged),
	})
}

// ToggleStar flips the starred flag and returns the new value.
func (h *FilesHandler) ToggleStar(c *fiber.Ctx) error {
	record, err := h.ownedRecord(c)
	if record == nil {
		return err
	}

	starred := !record.IsStarred
	if err := h.Records.Update(c.Context(), record.ID, map[string]interface{}{"is_starred": starred}); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating file")
	}

	h.Bus.Publish(events.TopicFilesChanged)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"isStarred": starred})
}

type renameRequest struct {
	FileName string `json:"fileName"`
}

// Rename validates locally before touching the store: empty and unchanged
// names never reach it.
func (h *FilesHandler) Rename(c *fiber.Ctx) error {
	record, err := h.ownedRecord(c)
	if record == nil {
		return err
	}

	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.FileName)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "file name cannot be empty")
	}
	if name == record.FileName {
		return utils.Error(c, fiber.StatusBadRequest, "New file name must be different from current name")
	}

	if err := h.Records.Update(c.Context(), record.ID, map[string]interface{}{"file_name": name}); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed renaming file")
	}

	h.Bus.Publish(events.TopicFilesChanged)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"fileName": name})
}

func (h *FilesHandler) MoveToTrash(c *fiber.Ctx) error {
	record, err := h.ownedRecord(c)
	if record == nil {
		return err
	}

	if err := h.Lifecycle.MoveToTrash(c.Context(), record.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed moving file to trash")
	}

	logger.InfoWithUser(record.OwnerID.String(), "file_trashed", map[string]interface{}{
		"record_id": record.ID.String(),
		"file_name": record.FileName,
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "file moved to trash"})
}

func (h *FilesHandler) RestoreFromTrash(c *fiber.Ctx) error {
	record, err := h.ownedRecord(c)
	if record == nil {
		return err
	}

	if err := h.Lifecycle.RestoreFromTrash(c.Context(), record.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed restoring file")
	}

	logger.InfoWithUser(record.OwnerID.String(), "file_restored", map[string]interface{}{
		"record_id": record.ID.String(),
		"file_name": record.FileName,
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "file restored"})
}

func (h *FilesHandler) PermanentlyDelete(c *fiber.Ctx) error {
	record, err := h.ownedRecord(c)
	if record == nil {
		return err
	}

	if err := h.Lifecycle.PermanentlyDelete(c.Context(), record.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed permanently deleting file")
	}

	logger.InfoWithUser(record.OwnerID.String(), "file_permanently_deleted", map[string]interface{}{
		"record_id": record.ID.String(),
		"file_name": record.FileName,
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "file permanently deleted"})
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	record, err := h.ownedRecord(c)
	if record == nil {
		return err
	}

	obj, err := h.Storage.Download(c.Context(), h.Storage.FilesBucket(), record.FileID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed downloading file")
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading object metadata")
	}

	c.Set("Content-Type", stat.ContentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.FileName))
	return c.SendStream(obj, int(stat.Size))
}

func (h *FilesHandler) PreviewURL(c *fiber.Ctx) error {
	record, err := h.ownedRecord(c)
	if record == nil {
		return err
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), h.Storage.FilesBucket(), record.FileID, previewURLExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating preview url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}
