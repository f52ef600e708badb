package blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes objects to an AWS S3 bucket.
type S3Store struct {
	Client s3Client
	Bucket string
	Region string
	// PublicBaseURL replaces the default virtual-hosted bucket URL.
	PublicBaseURL string
}

var _ Store = &S3Store{}

// NewS3Store wraps an S3 client.
func NewS3Store(client *s3.Client, bucket, region, publicBaseURL string) *S3Store {
	return &S3Store{Client: client, Bucket: bucket, Region: region, PublicBaseURL: publicBaseURL}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s into %s bucket: %w", key, s.Bucket, err)
	}
	return objectURL(s.baseURL(), key), nil
}

func (s *S3Store) baseURL() string {
	if s.PublicBaseURL != "" {
		return s.PublicBaseURL
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.Bucket, s.Region)
}
