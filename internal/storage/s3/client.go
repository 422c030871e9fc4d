// Package s3 provides a remote.ObjectClient for S3-compatible object stores
// using the MinIO client.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// Config holds connection settings for an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client reads and writes objects in a single bucket.
type Client struct {
	client *miniogo.Client
	bucket string
}

// New creates a MinIO client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Client{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data as a single object.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(
		ctx,
		c.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		miniogo.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Get downloads the object body.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() {
		_ = obj.Close()
	}()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

// Stat checks that the object exists.
func (c *Client) Stat(ctx context.Context, key string) error {
	_, err := c.client.StatObject(ctx, c.bucket, key, miniogo.StatObjectOptions{})
	return mapErr(err)
}

// Remove deletes the object. S3 treats deleting a missing key as success.
func (c *Client) Remove(ctx context.Context, key string) error {
	return mapErr(c.client.RemoveObject(ctx, c.bucket, key, miniogo.RemoveObjectOptions{}))
}

// Keys lists the object keys in the bucket that start with prefix.
func (c *Client) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	opts := miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for info := range c.client.ListObjects(ctx, c.bucket, opts) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects: %w", info.Err)
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}
	return nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	resp := miniogo.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", archive.ErrNotFound, err)
	}
	return err
}
