package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/chat"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
)

// Composer submits drafts on behalf of a principal.
type Composer interface {
	Send(ctx context.Context, principal, channelID int64, d chat.Draft) (*models.MessageWithSender, error)
}

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service  *service.MessageService
	composer Composer
	loc      *time.Location
	now      func() time.Time
}

// NewMessageHandler creates a MessageHandler. loc is used for day grouping.
func NewMessageHandler(svc *service.MessageService, composer Composer, loc *time.Location) *MessageHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &MessageHandler{service: svc, composer: composer, loc: loc, now: time.Now}
}

// GetMessages handles GET /api/v1/channels/:id/messages. With ?group=day the
// list is returned as day groups with display labels.
func (h *MessageHandler) GetMessages(c echo.Context) error {
	channelID, ok := pathID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid channel ID")
	}

	group := c.QueryParam("group")
	if group != "" && group != "day" {
		return Error(c, http.StatusBadRequest, "INVALID_GROUP", "group must be \"day\"")
	}

	msgs, err := h.service.ListMessages(c.Request().Context(), channelID, auth.GetUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}

	if group == "day" {
		return c.JSON(http.StatusOK, chat.BuildDayViews(msgs, h.now(), h.loc))
	}
	return c.JSON(http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content     string              `json:"content" validate:"max=4000"`
	Attachments []models.Attachment `json:"attachments" validate:"max=10"`
	Mentions    models.IDs          `json:"mentions" validate:"max=100"`
}

func (r *sendMessageRequest) trim() { r.Content = strings.TrimSpace(r.Content) }

// SendMessage handles POST /api/v1/channels/:id/messages. Blank content and
// duplicate submissions are skipped with 204.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	channelID, ok := pathID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid channel ID")
	}

	var req sendMessageRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	msg, err := h.composer.Send(c.Request().Context(), auth.GetUserID(c), channelID, chat.Draft{
		Content:     req.Content,
		Attachments: req.Attachments,
		Mentions:    req.Mentions,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	if msg == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusCreated, msg)
}

type editMessageRequest struct {
	Content  string     `json:"content" validate:"required,max=4000"`
	Mentions models.IDs `json:"mentions" validate:"max=100"`
}

func (r *editMessageRequest) trim() { r.Content = strings.TrimSpace(r.Content) }

// EditMessage handles PATCH /api/v1/channels/:id/messages/:message_id.
func (h *MessageHandler) EditMessage(c echo.Context) error {
	channelID, ok := pathID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid channel ID")
	}
	msgID, ok := pathID(c, "message_id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid message ID")
	}

	var req editMessageRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	full, err := h.service.EditMessage(c.Request().Context(), channelID, msgID, auth.GetUserID(c), req.Content, req.Mentions)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, full)
}
