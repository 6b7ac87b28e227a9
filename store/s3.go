package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3-compatible backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	// Required by most S3-compatible providers (R2, MinIO, etc.).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// S3 is the S3-compatible implementation of ObjectStore.
// Uses the AWS SDK default credential chain (env vars, shared config, IAM role).
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 creates an S3-backed object store.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrapError("init", cfg.Bucket, err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// UploadNDJSON implements ObjectStore.
func (s *S3) UploadNDJSON(ctx context.Context, payload []byte, objectName string, metadata map[string]string) (*UploadResult, error) {
	contentType := ContentType
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &objectName,
		Body:        bytes.NewReader(payload),
		ContentType: &contentType,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, wrapError("upload", objectName, err)
	}
	return &UploadResult{
		URI:  s.URI(objectName),
		Size: int64(len(payload)),
	}, nil
}

// ListByPrefix implements ObjectStore. S3 listings do not carry user
// metadata, so each object is followed by a HeadObject; staged-object
// listings are small (one object per unrecovered batch).
func (s *S3) ListByPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError("list", prefix, err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{
				Name: *obj.Key,
				URI:  s.URI(*obj.Key),
			}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.Created = *obj.LastModified
			}
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: &s.bucket,
				Key:    obj.Key,
			})
			if err != nil {
				return nil, wrapError("list", *obj.Key, err)
			}
			info.Metadata = head.Metadata
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Delete implements ObjectStore. S3 deletes of absent keys succeed; that is
// acceptable here because delete is only called on names we just listed.
func (s *S3) Delete(ctx context.Context, objectName string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &objectName,
	})
	return wrapError("delete", objectName, err)
}

// Status implements ObjectStore via HeadBucket.
func (s *S3) Status(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket})
	return wrapError("status", s.bucket, err)
}

// URI returns the s3:// URI for an object name.
func (s *S3) URI(objectName string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectName)
}

// Verify S3 implements ObjectStore.
var _ ObjectStore = (*S3)(nil)
