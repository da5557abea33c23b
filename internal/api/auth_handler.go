package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
)

// AuthHandler serves sign-up, sign-in and token rotation.
type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"omitempty,max=64"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	tokenPair
	User models.User `json:"user"`
}

func signedIn(c echo.Context, status int, res *service.AuthResult) error {
	return c.JSON(status, authResponse{
		tokenPair: tokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken},
		User:      res.User,
	})
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res, err := h.service.Register(c.Request().Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		return mapServiceError(c, err)
	}
	return signedIn(c, http.StatusCreated, res)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	return signedIn(c, http.StatusOK, res)
}

// Refresh handles POST /api/v1/auth/refresh. The presented token is
// single-use.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res, err := h.service.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, tokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	h.service.Logout(c.Request().Context(), req.RefreshToken)
	return c.NoContent(http.StatusNoContent)
}
