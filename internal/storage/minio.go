package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient stores user files in one bucket, each user under its own
// users/<id>/ prefix.
type MinIOClient struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base that object URLs are built on. Defaults to the
	// endpoint itself.
	PublicURL string
}

// NewMinIOClient connects and creates the bucket if it does not exist.
func NewMinIOClient(ctx context.Context, opts Options) (*MinIOClient, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	public := opts.PublicURL
	if public == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		public = scheme + "://" + opts.Endpoint
	}

	return &MinIOClient{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: strings.TrimRight(public, "/"),
	}, nil
}

func (m *MinIOClient) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *MinIOClient) GetURL(key string) string {
	return m.publicURL + "/" + m.bucket + "/" + key
}

func (m *MinIOClient) Delete(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

// UserKey builds an object key under userID's prefix. The file name is
// reduced to its base name so callers cannot escape the prefix.
func UserKey(userID int64, parts ...string) string {
	elems := make([]string, 0, len(parts)+2)
	elems = append(elems, "users", fmt.Sprint(userID))
	for i, p := range parts {
		if i == len(parts)-1 {
			p = path.Base(strings.ReplaceAll(p, "\\", "/"))
		}
		if p == "" || p == "." || p == ".." || p == "/" {
			p = "file"
		}
		elems = append(elems, p)
	}
	return strings.Join(elems, "/")
}
