package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
)

// UploadHandler handles file uploads for message attachments.
type UploadHandler struct {
	service *service.UploadService
}

// NewUploadHandler creates an UploadHandler.
func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Upload handles POST /api/v1/channels/:id/attachments. The returned
// attachment is sent back with the next message.
func (h *UploadHandler) Upload(c echo.Context) error {
	channelID, ok := pathID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid channel ID")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return Error(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
	}

	src, err := file.Open()
	if err != nil {
		return Error(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
	defer src.Close()

	attachment, err := h.service.UploadAttachment(c.Request().Context(), channelID, auth.GetUserID(c),
		file.Filename, file.Size, file.Header.Get("Content-Type"), src)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, attachment)
}
