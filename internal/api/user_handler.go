package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
)

// UserHandler handles the caller's own profile.
type UserHandler struct {
	service *service.UserService
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{service: svc}
}

// GetMe handles GET /api/v1/users/@me.
func (h *UserHandler) GetMe(c echo.Context) error {
	user, err := h.service.GetByID(c.Request().Context(), auth.GetUserID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return successJSON(c, http.StatusOK, user)
}

type updateUserRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,min=1,max=64"`
}

// UpdateMe handles PATCH /api/v1/users/@me.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	var req updateUserRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	user, err := h.service.UpdateProfile(c.Request().Context(), auth.GetUserID(c), req.DisplayName)
	if err != nil {
		return mapServiceError(c, err)
	}
	return successJSON(c, http.StatusOK, user)
}

// UploadAvatar handles PUT /api/v1/users/@me/avatar (multipart field "avatar").
func (h *UserHandler) UploadAvatar(c echo.Context) error {
	file, err := c.FormFile("avatar")
	if err != nil {
		return Error(c, http.StatusBadRequest, "MISSING_FILE", "avatar field is required")
	}

	src, err := file.Open()
	if err != nil {
		return Error(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
	defer src.Close()

	user, err := h.service.UploadAvatar(c.Request().Context(), auth.GetUserID(c),
		file.Filename, file.Size, file.Header.Get("Content-Type"), src)
	if err != nil {
		return mapServiceError(c, err)
	}
	return successJSON(c, http.StatusOK, user)
}
