package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
)

// MemberHandler handles channel membership changes.
type MemberHandler struct {
	service *service.ChannelService
}

// NewMemberHandler creates a MemberHandler.
func NewMemberHandler(svc *service.ChannelService) *MemberHandler {
	return &MemberHandler{service: svc}
}

// AddMember handles PUT /api/v1/channels/:id/members/:user_id.
func (h *MemberHandler) AddMember(c echo.Context) error {
	channelID, userID, ok := memberParams(c)
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid channel or user ID")
	}

	if err := h.service.AddMember(c.Request().Context(), channelID, auth.GetUserID(c), userID); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/channels/:id/members/:user_id. The
// literal "@me" leaves the channel.
func (h *MemberHandler) RemoveMember(c echo.Context) error {
	channelID, userID, ok := memberParams(c)
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid channel or user ID")
	}

	if err := h.service.RemoveMember(c.Request().Context(), channelID, auth.GetUserID(c), userID); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func memberParams(c echo.Context) (channelID, userID int64, ok bool) {
	channelID, ok = pathID(c, "id")
	if !ok {
		return 0, 0, false
	}
	if c.Param("user_id") == "@me" {
		return channelID, auth.GetUserID(c), true
	}
	userID, ok = pathID(c, "user_id")
	return channelID, userID, ok
}
