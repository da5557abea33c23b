package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/redis"
	"github.com/rivaldorose/konsensi-workspace/internal/snowflake"
)

// AuthResult holds the tokens and user returned after registration or login.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
}

// RefreshResult holds the new token pair after a refresh.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// SessionStore keeps opaque, single-use refresh tokens.
type SessionStore interface {
	CreateSession(ctx context.Context, token string, userID int64, ttl time.Duration) error
	ConsumeSession(ctx context.Context, token string) (int64, error)
	RevokeSession(ctx context.Context, token string) error
}

var _ SessionStore = (*redis.Client)(nil)

// AuthService handles registration, login, token refresh, and logout.
type AuthService struct {
	users     database.UserRepository
	tokens    *auth.TokenService
	sessions  SessionStore
	snowflake *snowflake.Generator
}

func NewAuthService(
	users database.UserRepository,
	tokens *auth.TokenService,
	sessions SessionStore,
	sf *snowflake.Generator,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		sessions:  sessions,
		snowflake: sf,
	}
}

// Register creates an account and signs it in. The display name defaults to
// the local part of the email.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if at := strings.IndexByte(email, '@'); at < 1 || at == len(email)-1 {
		return nil, BadRequest("INVALID_EMAIL", "a valid email address is required")
	}
	if len(password) < 8 || len(password) > 128 {
		return nil, BadRequest("INVALID_PASSWORD", "password must be 8-128 characters")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email[:strings.IndexByte(email, '@')]
	}
	if len(displayName) > 64 {
		return nil, BadRequest("INVALID_DISPLAY_NAME", "display name must be 1-64 characters")
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, backendFailure("get user by email", err)
	}
	if existing != nil {
		return nil, Conflict("EMAIL_TAKEN", "an account with this email already exists")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, backendFailure("hash password", err)
	}

	now := time.Now()
	user := &models.User{
		ID:           s.snowflake.Next(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, Conflict("EMAIL_TAKEN", "an account with this email already exists")
		}
		return nil, backendFailure("create user", err)
	}

	return s.issueTokens(ctx, user)
}

// Login authenticates by email and password. Hashes made with outdated
// parameters are upgraded on success.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, backendFailure("get user by email", err)
	}
	if user == nil {
		return nil, Unauthorized("INVALID_CREDENTIALS", "invalid email or password")
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, Unauthorized("INVALID_CREDENTIALS", "invalid email or password")
	}

	if auth.NeedsRehash(user.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			user.PasswordHash = hash
			user.UpdatedAt = time.Now()
			if err := s.users.Update(ctx, user); err != nil {
				slog.Warn("upgrading password hash", "user_id", user.ID, "error", err)
			}
		}
	}

	return s.issueTokens(ctx, user)
}

// Refresh rotates a refresh token and returns a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, BadRequest("MISSING_TOKEN", "refresh_token is required")
	}

	userID, err := s.sessions.ConsumeSession(ctx, refreshToken)
	if errors.Is(err, redis.ErrSessionNotFound) {
		return nil, Unauthorized("INVALID_TOKEN", "invalid or expired refresh token")
	}
	if err != nil {
		return nil, backendFailure("consume session", err)
	}

	accessToken, newRefresh, err := s.newPair(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: accessToken, RefreshToken: newRefresh}, nil
}

// Logout deletes the given refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.sessions.RevokeSession(ctx, refreshToken); err != nil {
		slog.Warn("revoking session on logout", "error", err)
	}
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*AuthResult, error) {
	accessToken, refreshToken, err := s.newPair(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         *user,
	}, nil
}

func (s *AuthService) newPair(ctx context.Context, userID int64) (string, string, error) {
	accessToken, err := s.tokens.GenerateAccessToken(userID)
	if err != nil {
		return "", "", backendFailure("sign access token", err)
	}
	refreshToken, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return "", "", backendFailure("generate refresh token", err)
	}
	if err := s.sessions.CreateSession(ctx, refreshToken, userID, s.tokens.RefreshExpiry()); err != nil {
		return "", "", backendFailure("create session", err)
	}
	return accessToken, refreshToken, nil
}
