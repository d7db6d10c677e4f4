package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// UploadPrefix is the key prefix of every archived upload.
const UploadPrefix = "uploads/"

// SpreadsheetContentType is the MIME type archived uploads are stored with.
const SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Archive stores original uploads so a batch can be traced back to its file.
type Archive struct {
	client Client
	bucket string
}

// NewArchive creates an archive writing to bucket.
func NewArchive(client Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// Bucket returns the archive bucket name.
func (a *Archive) Bucket() string {
	return a.bucket
}

// Object is one archived upload.
type Object struct {
	Key          string
	LastModified time.Time
}

// Exists reports whether the archive bucket exists.
func (a *Archive) Exists(ctx context.Context) (bool, error) {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return false, fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	return exists, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Put uploads r under uploads/<uuid>/<filename> and returns the object key.
func (a *Archive) Put(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	key := ObjectKey(uuid.NewString(), filename)
	_, err := a.client.PutObject(ctx, a.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: SpreadsheetContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", filename, err)
	}
	return key, nil
}

// Open returns the content of an archived object.
func (a *Archive) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
}

// List returns every archived upload.
func (a *Archive) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: UploadPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objects = append(objects, Object{Key: obj.Key, LastModified: obj.LastModified})
	}
	return objects, nil
}

// Remove deletes the given keys and returns the first failure.
func (a *Archive) Remove(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, key := range keys {
			select {
			case objectsCh <- minio.ObjectInfo{Key: key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var firstErr error
	for rErr := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to remove %s: %w", rErr.ObjectName, rErr.Err)
		}
	}
	return firstErr
}

// ObjectKey builds the archive key of an upload. Path separators in filename are dropped.
func ObjectKey(id, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload.xlsx"
	}
	return UploadPrefix + id + "/" + name
}
