package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
)

// ChannelHandler handles the channel directory and channel creation.
type ChannelHandler struct {
	service *service.ChannelService
}

// NewChannelHandler creates a ChannelHandler.
func NewChannelHandler(svc *service.ChannelService) *ChannelHandler {
	return &ChannelHandler{service: svc}
}

// ListChannels handles GET /api/v1/channels.
func (h *ChannelHandler) ListChannels(c echo.Context) error {
	channels, err := h.service.ListChannels(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, channels)
}

type createChannelRequest struct {
	Name        string     `json:"name" validate:"required,max=100"`
	Description *string    `json:"description" validate:"omitempty,max=1000"`
	MemberIDs   models.IDs `json:"member_ids" validate:"max=100"`
}

// CreateChannel handles POST /api/v1/channels.
func (h *ChannelHandler) CreateChannel(c echo.Context) error {
	var req createChannelRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ch, err := h.service.CreateChannel(c.Request().Context(), auth.GetUserID(c), req.Name, req.Description, req.MemberIDs)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, ch)
}

type openDirectRequest struct {
	UserID int64 `json:"user_id,string" validate:"required"`
}

// OpenDirect handles POST /api/v1/channels/direct. It answers 201 when the
// channel was created and 200 when it already existed.
func (h *ChannelHandler) OpenDirect(c echo.Context) error {
	var req openDirectRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ch, created, err := h.service.OpenDirect(c.Request().Context(), auth.GetUserID(c), req.UserID)
	if err != nil {
		return mapServiceError(c, err)
	}
	if created {
		return c.JSON(http.StatusCreated, ch)
	}
	return c.JSON(http.StatusOK, ch)
}

// GetChannel handles GET /api/v1/channels/:id.
func (h *ChannelHandler) GetChannel(c echo.Context) error {
	channelID, ok := pathID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid channel ID")
	}

	detail, err := h.service.GetChannel(c.Request().Context(), channelID, auth.GetUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}
