// Package mocks provides a testify double of the archive's object store.
package mocks

import (
	"context"
	"io"
	"sync"

	"receipt-ledger/core/storage"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

// Client is a mock implementation of storage.Client. Listings and removals are
// expressed in archive terms: Archived sets what the bucket holds and Removing
// accepts deletes, which are then visible through Removed.
type Client struct {
	mock.Mock

	mu      sync.Mutex
	removed []string
}

// NewArchive returns an archive on bucket backed by a fresh mock.
func NewArchive(bucket string) (*storage.Archive, *Client) {
	client := new(Client)
	return storage.NewArchive(client, bucket), client
}

// Archived makes every listing of the upload prefix in bucket yield objects.
func (m *Client) Archived(bucket string, objects ...minio.ObjectInfo) *mock.Call {
	opts := minio.ListObjectsOptions{Prefix: storage.UploadPrefix, Recursive: true}
	return m.On("ListObjects", mock.Anything, bucket, opts).Return(objects)
}

// Removing accepts removals from bucket. Keys present in failures are reported
// back with their error and not recorded as removed.
func (m *Client) Removing(bucket string, failures map[string]error) *mock.Call {
	return m.On("RemoveObjects", mock.Anything, bucket, mock.Anything, minio.RemoveObjectsOptions{}).Return(failures)
}

// Removed returns the keys removed so far, in order.
func (m *Client) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

func (m *Client) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *Client) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *Client) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *Client) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if obj, ok := args.Get(0).(io.ReadCloser); ok {
		return obj, args.Error(1)
	}
	return nil, args.Error(1)
}

// ListObjects streams the objects given to Archived on a fresh channel per call.
func (m *Client) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	objects, _ := args.Get(0).([]minio.ObjectInfo)
	ch := make(chan minio.ObjectInfo, len(objects))
	for _, obj := range objects {
		ch <- obj
	}
	close(ch)
	return ch
}

// RemoveObjects drains objectsCh before matching, so expectations see the keys
// as a []string.
func (m *Client) RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	var keys []string
	for obj := range objectsCh {
		keys = append(keys, obj.Key)
	}
	args := m.Called(ctx, bucketName, keys, opts)
	failures, _ := args.Get(0).(map[string]error)

	ch := make(chan minio.RemoveObjectError, len(keys))
	m.mu.Lock()
	for _, key := range keys {
		if err, failed := failures[key]; failed {
			ch <- minio.RemoveObjectError{ObjectName: key, Err: err}
			continue
		}
		m.removed = append(m.removed, key)
	}
	m.mu.Unlock()
	close(ch)
	return ch
}
