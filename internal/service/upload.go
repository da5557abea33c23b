package service

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/snowflake"
	"github.com/rivaldorose/konsensi-workspace/internal/storage"
)

const (
	maxUploadSize = 25 << 20
	maxAvatarSize = 5 << 20
)

var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"application/zip": true,
	"text/plain":      true,
	"text/csv":        true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}

// FileStorage abstracts object storage operations for testability.
type FileStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetURL(key string) string
	Delete(ctx context.Context, key string) error
}

// UploadService stores files that are later attached to messages.
type UploadService struct {
	members   database.MemberRepository
	snowflake *snowflake.Generator
	storage   FileStorage
}

func NewUploadService(members database.MemberRepository, sf *snowflake.Generator, storage FileStorage) *UploadService {
	return &UploadService{members: members, snowflake: sf, storage: storage}
}

// UploadAttachment stores a file under the uploader's prefix and returns the
// attachment to include in a message sent to channelID.
func (s *UploadService) UploadAttachment(ctx context.Context, channelID, userID int64, filename string, size int64, contentType string, reader io.Reader) (*models.Attachment, error) {
	if s.storage == nil {
		return nil, Unavailable("STORAGE_DISABLED", "file storage is not configured")
	}
	if err := requireMember(ctx, s.members, channelID, userID); err != nil {
		return nil, err
	}
	if size <= 0 || size > maxUploadSize {
		return nil, BadRequest("FILE_TOO_LARGE", "file must be between 1 byte and 25 MB")
	}
	contentType = normalizeContentType(contentType)
	if !isAllowedContentType(contentType) {
		return nil, BadRequest("INVALID_CONTENT_TYPE", "file type not allowed")
	}

	name := filepath.Base(filename)
	key := storage.UserKey(userID, "files", strconv.FormatInt(s.snowflake.Next(), 10), name)
	if err := s.storage.Upload(ctx, key, reader, size, contentType); err != nil {
		return nil, backendFailure("upload attachment", err)
	}

	return &models.Attachment{
		Name:        name,
		URL:         s.storage.GetURL(key),
		ContentType: contentType,
		Size:        size,
		StorageKey:  key,
	}, nil
}

func normalizeContentType(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mediaType
}

func isAllowedContentType(ct string) bool {
	return allowedContentTypes[ct] || strings.HasPrefix(ct, "image/")
}

// ownsAttachment reports whether a was uploaded by userID.
func ownsAttachment(a models.Attachment, userID int64) bool {
	return strings.HasPrefix(a.StorageKey, storage.UserKey(userID)+"/")
}
