package service

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/storage"
)

// UserService handles profile reads and updates.
type UserService struct {
	users   database.UserRepository
	storage FileStorage
}

// NewUserService creates a UserService. fs may be nil when object storage is
// not configured; avatar uploads then fail with ErrUnavailable.
func NewUserService(users database.UserRepository, fs FileStorage) *UserService {
	return &UserService{users: users, storage: fs}
}

func (s *UserService) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, backendFailure("get user", err)
	}
	if user == nil {
		return nil, NotFound("NOT_FOUND", "user not found")
	}
	return user, nil
}

// UpdateProfile changes the display name when one is given.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, displayName *string) (*models.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if displayName != nil {
		name := strings.TrimSpace(*displayName)
		if len(name) < 1 || len(name) > 64 {
			return nil, BadRequest("INVALID_DISPLAY_NAME", "display name must be 1-64 characters")
		}
		user.DisplayName = name
	}
	user.UpdatedAt = time.Now()

	if err := s.users.Update(ctx, user); err != nil {
		return nil, backendFailure("update user", err)
	}
	return user, nil
}

// UploadAvatar stores an image under the user's prefix and points the
// profile at it. The previous avatar object is removed.
func (s *UserService) UploadAvatar(ctx context.Context, userID int64, filename string, size int64, contentType string, reader io.Reader) (*models.User, error) {
	if s.storage == nil {
		return nil, Unavailable("STORAGE_DISABLED", "file storage is not configured")
	}
	contentType = normalizeContentType(contentType)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, BadRequest("INVALID_CONTENT_TYPE", "avatar must be an image")
	}
	if size <= 0 || size > maxAvatarSize {
		return nil, BadRequest("FILE_TOO_LARGE", "avatar must be under 5 MB")
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	key := storage.UserKey(userID, "avatar", strconv.FormatInt(time.Now().UnixMilli(), 10)+ext)
	if err := s.storage.Upload(ctx, key, reader, size, contentType); err != nil {
		return nil, backendFailure("upload avatar", err)
	}

	previous := user.AvatarURL
	url := s.storage.GetURL(key)
	user.AvatarURL = &url
	user.UpdatedAt = time.Now()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, backendFailure("update avatar", err)
	}

	if previous != nil {
		if old := avatarKey(*previous, userID); old != "" && old != key {
			_ = s.storage.Delete(ctx, old)
		}
	}
	return user, nil
}

// avatarKey recovers the object key from an avatar URL we issued.
func avatarKey(url string, userID int64) string {
	prefix := storage.UserKey(userID, "avatar") + "/"
	i := strings.Index(url, prefix)
	if i < 0 {
		return ""
	}
	return url[i:]
}
