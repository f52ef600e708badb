package blob

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	kerrors "k8s.io/apimachinery/pkg/util/errors"
)

const gcsPublicBase = "https://storage.googleapis.com"

// BucketStore writes objects to a GCS bucket.
type BucketStore struct {
	Bucket *storage.BucketHandle
	// Name of the bucket, used to build public URLs.
	Name string
	// PublicBaseURL replaces the default https://storage.googleapis.com/<bucket> prefix.
	PublicBaseURL string
}

var _ Store = &BucketStore{}

func (b *BucketStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	writer := b.Bucket.Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	// objects are replaced in place, so caches must revalidate
	writer.CacheControl = "no-cache"
	var errs []error
	if _, err := writer.Write(data); err != nil {
		errs = append(errs, fmt.Errorf("could not write object: %w", err))
	}
	if err := writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("could not close writer for object: %w", err))
	}
	if err := kerrors.NewAggregate(errs); err != nil {
		return "", fmt.Errorf("could not store gs://%s/%s: %w", b.Name, key, err)
	}
	return objectURL(b.baseURL(), key), nil
}

func (b *BucketStore) baseURL() string {
	if b.PublicBaseURL != "" {
		return b.PublicBaseURL
	}
	return gcsPublicBase + "/" + b.Name
}
