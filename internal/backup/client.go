// Package backup implements the nightly encrypted off-site database backup
// (§7): archive the SQLite file, encrypt it, upload it to an S3-compatible
// bucket, and rotate old backups past a retention window.
package backup

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ObjectInfo describes one object already stored in the bucket.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
}

// Client is a thin S3-compatible object store client. It works against AWS
// S3 or any S3-compatible provider (Cloudflare R2, Backblaze B2, MinIO) by
// pointing Endpoint at the provider's API base URL.
type Client struct {
	s3     *s3.Client
	bucket string
	log    zerolog.Logger
}

// NewClient builds a Client for the given bucket. endpoint may be empty to
// use AWS S3 directly, or an S3-compatible provider's base URL otherwise.
func NewClient(ctx context.Context, region, accessKey, secretKey, bucket, endpoint string, log zerolog.Logger) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return &Client{
		s3:     client,
		bucket: bucket,
		log:    log.With().Str("component", "backup_client").Logger(),
	}, nil
}

// Upload streams r (size bytes) to the bucket under key. It uses the S3
// transfer manager so large archives are sent as multipart uploads without
// buffering the whole object in memory.
func (c *Client) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	uploader := manager.NewUploader(c.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// List returns every object whose key starts with prefix, newest first by
// key (our keys are timestamp-sortable).
func (c *Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list objects with prefix %s: %w", prefix, err)
	}

	objects := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		objects = append(objects, ObjectInfo{Key: *obj.Key, SizeBytes: size})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	return objects, nil
}

// download fetches a single object's full body.
func (c *Client) download(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Delete removes a single object.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// timestampFromKey extracts the backup timestamp embedded in a key of the
// form "finhub-backup-2026-01-08-143022.db.enc".
func timestampFromKey(key string) (time.Time, bool) {
	name := strings.TrimPrefix(key, "finhub-backup-")
	name = strings.TrimSuffix(name, ".db.enc")
	t, err := time.Parse("2006-01-02-150405", name)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
