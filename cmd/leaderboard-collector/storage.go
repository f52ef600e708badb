package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	kerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/despreadlabs/leaderboard-collector/pkg/blob"
)

const (
	storageGCS   = "gcs"
	storageS3    = "s3"
	storageMinio = "minio"
	storageLocal = "local"
)

type storageOptions struct {
	storage       string
	bucket        string
	publicBaseURL string

	gcsCredentialsFile string

	s3Region string

	minioEndpoint  string
	minioAccessKey string
	minioSecretKey string
	minioUseSSL    bool

	localDir string
}

func (o *storageOptions) bind(fs *flag.FlagSet) {
	fs.StringVar(&o.storage, "storage", storageGCS, fmt.Sprintf("Where to store snapshots: %s, %s, %s or %s.", storageGCS, storageS3, storageMinio, storageLocal))
	fs.StringVar(&o.bucket, "bucket", "", "Bucket holding snapshots.")
	fs.StringVar(&o.publicBaseURL, "public-base-url", "", "Base URL under which stored snapshots are publicly reachable, if not the backend's default.")
	fs.StringVar(&o.gcsCredentialsFile, "gcs-credentials-file", "", "File where GCS credentials are stored. Application default credentials are used when empty.")
	fs.StringVar(&o.s3Region, "s3-region", "", "AWS region of the S3 bucket.")
	fs.StringVar(&o.minioEndpoint, "minio-endpoint", "", "MinIO server endpoint, with or without scheme.")
	fs.StringVar(&o.minioAccessKey, "minio-access-key", "", "MinIO access key.")
	fs.StringVar(&o.minioSecretKey, "minio-secret-key", "", "MinIO secret key.")
	fs.BoolVar(&o.minioUseSSL, "minio-use-ssl", false, "Connect to MinIO over TLS.")
	fs.StringVar(&o.localDir, "local-dir", "", "Local directory to store snapshots into (for development mode).")
}

func (o *storageOptions) validate() error {
	var errs []error
	switch o.storage {
	case storageGCS:
	case storageS3:
		if o.s3Region == "" {
			errs = append(errs, errors.New("--s3-region is required with --storage=s3"))
		}
	case storageMinio:
		if o.minioEndpoint == "" {
			errs = append(errs, errors.New("--minio-endpoint is required with --storage=minio"))
		}
	case storageLocal:
		if o.localDir == "" {
			errs = append(errs, errors.New("--local-dir is required with --storage=local"))
		}
		return kerrors.NewAggregate(errs)
	default:
		return fmt.Errorf("--storage must be one of %s, %s, %s or %s, not %q", storageGCS, storageS3, storageMinio, storageLocal, o.storage)
	}
	if o.bucket == "" {
		errs = append(errs, fmt.Errorf("--bucket is required with --storage=%s", o.storage))
	}
	return kerrors.NewAggregate(errs)
}

func (o *storageOptions) store(ctx context.Context) (blob.Store, error) {
	switch o.storage {
	case storageGCS:
		var opts []option.ClientOption
		if o.gcsCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(o.gcsCredentialsFile))
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("could not initialize GCS client: %w", err)
		}
		return &blob.BucketStore{Bucket: client.Bucket(o.bucket), Name: o.bucket, PublicBaseURL: o.publicBaseURL}, nil
	case storageS3:
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(o.s3Region))
		if err != nil {
			return nil, fmt.Errorf("could not load AWS configuration: %w", err)
		}
		return blob.NewS3Store(s3.NewFromConfig(cfg), o.bucket, o.s3Region, o.publicBaseURL), nil
	case storageMinio:
		return blob.NewMinioStore(blob.MinioConfig{
			Endpoint:      o.minioEndpoint,
			AccessKey:     o.minioAccessKey,
			SecretKey:     o.minioSecretKey,
			UseSSL:        o.minioUseSSL,
			Bucket:        o.bucket,
			PublicBaseURL: o.publicBaseURL,
		})
	case storageLocal:
		return &blob.LocalStore{Dir: o.localDir, PublicBaseURL: o.publicBaseURL}, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", o.storage)
	}
}
