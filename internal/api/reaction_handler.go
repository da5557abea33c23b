package api

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
)

// ReactionHandler handles message reaction endpoints.
type ReactionHandler struct {
	service *service.MessageService
}

// NewReactionHandler creates a ReactionHandler.
func NewReactionHandler(svc *service.MessageService) *ReactionHandler {
	return &ReactionHandler{service: svc}
}

// AddReaction handles PUT /api/v1/channels/:id/messages/:message_id/reactions/:emoji.
func (h *ReactionHandler) AddReaction(c echo.Context) error {
	return h.set(c, true)
}

// RemoveReaction handles DELETE /api/v1/channels/:id/messages/:message_id/reactions/:emoji.
func (h *ReactionHandler) RemoveReaction(c echo.Context) error {
	return h.set(c, false)
}

func (h *ReactionHandler) set(c echo.Context, present bool) error {
	channelID, ok := pathID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid channel ID")
	}
	msgID, ok := pathID(c, "message_id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid message ID")
	}
	emoji, err := url.PathUnescape(c.Param("emoji"))
	if err != nil || emoji == "" {
		return Error(c, http.StatusBadRequest, "INVALID_EMOJI", "invalid emoji")
	}

	msg, err := h.service.SetReaction(c.Request().Context(), channelID, msgID, auth.GetUserID(c), emoji, present)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}
