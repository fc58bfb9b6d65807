package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"translator/internal/logger"
)

// S3Store implements ObjectStore on S3-compatible storage (MinIO, AWS S3,
// Google Cloud Storage interoperability endpoints).
type S3Store struct {
	client *minio.Client
	region string
	log    zerolog.Logger
}

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// NewS3Store creates an S3-compatible store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("S3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	log := logger.WithComponent("s3-store")
	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("region", cfg.Region).
		Bool("ssl", cfg.UseSSL).
		Msg("S3-compatible storage initialized")

	return &S3Store{client: client, region: cfg.Region, log: log}, nil
}

// PresignGet implements Presigner with a SigV4 presigned GET URL.
func (s *S3Store) PresignGet(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	if err := validateObject(container, name); err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, container, name, expiry, url.Values{})
	if err != nil {
		return "", s.wrap("presign", container, name, err)
	}
	return u.String(), nil
}

// Put implements ObjectStore.
func (s *S3Store) Put(ctx context.Context, container, name string, data io.Reader, size int64, contentType string) error {
	if err := validateObject(container, name); err != nil {
		return err
	}

	info, err := s.client.PutObject(ctx, container, name, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return s.wrap("put", container, name, err)
	}

	s.log.Debug().
		Str("bucket", container).
		Str("key", name).
		Int64("size", info.Size).
		Msg("Object uploaded")
	return nil
}

// Get implements ObjectStore.
func (s *S3Store) Get(ctx context.Context, container, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, container, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("get", container, name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap("get", container, name, err)
	}
	return data, nil
}

// Exists implements ObjectStore.
func (s *S3Store) Exists(ctx context.Context, container, name string) (bool, error) {
	_, err := s.client.StatObject(ctx, container, name, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, s.wrap("stat", container, name, err)
	}
	return true, nil
}

// EnsureContainer implements ObjectStore.
func (s *S3Store) EnsureContainer(ctx context.Context, container string) error {
	if err := ValidateContainerName(container); err != nil {
		return err
	}

	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return s.wrap("bucket-exists", container, "", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{Region: s.region}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return s.wrap("make-bucket", container, "", err)
	}

	s.log.Info().Str("bucket", container).Msg("Bucket created")
	return nil
}

func (s *S3Store) wrap(op, container, name string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		err = fmt.Errorf("%w: %s", ErrNotFound, resp.Message)
	}
	return &StorageError{Op: op, Container: container, Name: name, StatusCode: resp.StatusCode, Err: err}
}
