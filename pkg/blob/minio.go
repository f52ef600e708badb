package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type minioClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	EndpointURL() *url.URL
}

// MinioConfig describes how to reach a MinIO (or other S3-compatible) server.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// PublicBaseURL replaces the default <endpoint>/<bucket> prefix.
	PublicBaseURL string
}

// MinioStore writes objects to a bucket on a MinIO server.
type MinioStore struct {
	client        minioClient
	bucket        string
	publicBaseURL string
}

var _ Store = &MinioStore{}

// NewMinioStore connects to the server described by cfg.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	// accept both "host:port" and "scheme://host:port"
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = useSSL || u.Scheme == "https"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, publicBaseURL: cfg.PublicBaseURL}, nil
}

func (m *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "no-cache",
	})
	if err != nil {
		return "", fmt.Errorf("failed to put %s into %s bucket: %w", key, m.bucket, err)
	}
	return objectURL(m.baseURL(), key), nil
}

func (m *MinioStore) baseURL() string {
	if m.publicBaseURL != "" {
		return m.publicBaseURL
	}
	return objectURL(m.client.EndpointURL().String(), m.bucket)
}
