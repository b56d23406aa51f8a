package cas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/panini-fs/ipcore/internal/validate"
)

// S3Store is an S3-compatible (R2) backed content-addressed store.
// Object keys are `objects/<hash>`; dedup is a HeadObject check before Put.
type S3Store struct {
	client     *s3.Client
	bucketName string
}

// S3Config holds configuration for the S3 store backend.
type S3Config struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// NewS3Store creates an S3-backed store with R2-compatible configuration.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	client := s3.New(s3.Options{
		Region: "auto", // R2 uses auto region
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // No session token for R2
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true, // R2 requires path-style addressing
	})

	return &S3Store{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// objectKey returns the bucket key for a hash.
func objectKey(hash string) string {
	return "objects/" + hash
}

// Put stores content and returns its hash. An existing object with the same
// hash makes the write a no-op.
func (s *S3Store) Put(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}
	hash := HashContent(content)

	exists, err := s.Has(ctx, hash)
	if err != nil {
		return "", err
	}
	if exists {
		return hash, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(objectKey(hash)),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return "", &StorageError{Op: "put", Hash: hash, Err: err}
	}
	return hash, nil
}

// Get retrieves the content for a hash.
func (s *S3Store) Get(ctx context.Context, hash string) ([]byte, error) {
	if err := validate.ObjectHash(hash); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey(hash)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, shortHash(hash))
		}
		return nil, &StorageError{Op: "get", Hash: hash, Err: err}
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &StorageError{Op: "get", Hash: hash, Err: err}
	}
	return content, nil
}

// Has reports whether an object exists for the hash.
func (s *S3Store) Has(ctx context.Context, hash string) (bool, error) {
	if err := validate.ObjectHash(hash); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey(hash)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, &StorageError{Op: "has", Hash: hash, Err: err}
}
