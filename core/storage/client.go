package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client is the part of the MinIO API the upload archive uses.
type Client interface {
	// BucketExists reports whether the archive bucket is there.
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	// MakeBucket creates the archive bucket.
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	// PutObject stores one uploaded spreadsheet.
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	// GetObject streams an archived spreadsheet back.
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	// ListObjects walks archived uploads.
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	// RemoveObjects deletes every object received on objectsCh.
	RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
}

// ErrNoBucket is returned when the archive is enabled without a bucket name.
var ErrNoBucket = errors.New("archive bucket is not configured")

// Dial connects to the configured object store and returns the upload archive,
// creating its bucket on first use.
func Dial(ctx context.Context, cfg Config) (*Archive, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	archive := NewArchive(client, cfg.Bucket)
	if err := archive.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

// NewClient creates a MinIO client for the archive endpoint. An http:// or
// https:// scheme on the endpoint takes precedence over UseSSL.
func NewClient(cfg Config) (Client, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	host, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	minioClient, err := minio.New(host, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    secure,
		Region:    cfg.Region,
		Transport: newTransport(cfg.Timeout()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client for %s: %w", host, err)
	}
	// The client connects lazily; BucketExists is the first real round trip.
	return &archiveClient{Client: minioClient}, nil
}

// splitEndpoint strips a scheme from endpoint, since minio wants host[:port].
func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	host := strings.TrimSpace(endpoint)
	secure := useSSL
	switch {
	case strings.HasPrefix(host, "https://"):
		host, secure = strings.TrimPrefix(host, "https://"), true
	case strings.HasPrefix(host, "http://"):
		host, secure = strings.TrimPrefix(host, "http://"), false
	}
	host = strings.TrimSuffix(host, "/")
	if host == "" || strings.ContainsAny(host, "/?#") {
		return "", false, fmt.Errorf("archive endpoint %q must be host[:port]", endpoint)
	}
	return host, secure, nil
}

func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
}

// archiveClient narrows GetObject to an io.ReadCloser.
type archiveClient struct {
	*minio.Client
}

func (c *archiveClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.Client.GetObject(ctx, bucketName, objectName, opts)
}
