package handlers

import (
	"io"

	"github.com/cloudly/backend/internal/middleware"
	"github.com/cloudly/backend/internal/models"
	"github.com/cloudly/backend/internal/services"
	"github.com/cloudly/backend/pkg/logger"
	"github.com/cloudly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type UploadsHandler struct {
	Uploader *services.Uploader
}

func NewUploadsHandler(uploader *services.Uploader) *UploadsHandler {
	return &UploadsHandler{Uploader: uploader}
}

// StartBatch accepts a multipart form with one or more "files" parts and an
// optional "folder" field, buffers the parts, and starts an async batch.
func (h *UploadsHandler) StartBatch(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid multipart form")
	}

	parts := form.File["files"]
	if len(parts) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no files provided")
	}

	folder := models.DefaultFolder
	if values := form.Value["folder"]; len(values) > 0 && values[0] != "" {
		folder = values[0]
	}

	items := make([]services.UploadItem, 0, len(parts))
	for _, part := range parts {
		src, err := part.Open()
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "failed reading uploaded file")
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "failed reading uploaded file")
		}
		items = append(items, services.UploadItem{
			Name:        part.Filename,
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	batchID, err := h.Uploader.StartBatch(currentUser.ID, folder, items)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed starting upload")
	}

	logger.InfoWithUser(currentUser.ID.String(), "upload_batch_started", map[string]interface{}{
		"batch_id": batchID.String(),
		"files":    len(items),
		"folder":   folder,
	})
	return utils.Success(c, fiber.StatusAccepted, fiber.Map{"batchId": batchID})
}

// Progress returns the current snapshot for a batch. Batches are held in
// memory, so snapshots survive until process restart.
func (h *UploadsHandler) Progress(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	batchID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid batch id")
	}

	progress, ok := h.Uploader.Progress(batchID)
	if !ok {
		return utils.Error(c, fiber.StatusNotFound, "upload batch not found")
	}

	return utils.Success(c, fiber.StatusOK, progress)
}
