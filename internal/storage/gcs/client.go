// Package gcs provides a remote.ObjectClient backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket          string
	CredentialsFile string
	// Endpoint overrides the API endpoint, for emulators.
	Endpoint string
}

// Client reads and writes objects in a single GCS bucket.
type Client struct {
	client *storage.Client
	bucket string
}

// New dials GCS using Application Default Credentials unless a credentials
// file is configured.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return NewWithClient(client, cfg.Bucket)
}

// NewWithClient wraps an existing storage client.
func NewWithClient(client *storage.Client, bucket string) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Client{client: client, bucket: bucket}, nil
}

// Put uploads data as a single object.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	writer := c.client.Bucket(c.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Get downloads the object body.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := c.client.Bucket(c.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() {
		_ = reader.Close()
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Stat fetches object attributes.
func (c *Client) Stat(ctx context.Context, key string) error {
	_, err := c.client.Bucket(c.bucket).Object(key).Attrs(ctx)
	return mapErr(err)
}

// Remove deletes the object.
func (c *Client) Remove(ctx context.Context, key string) error {
	return mapErr(c.client.Bucket(c.bucket).Object(key).Delete(ctx))
}

// Keys lists the object names in the bucket that start with prefix.
func (c *Client) Keys(ctx context.Context, prefix string) ([]string, error) {
	it := c.client.Bucket(c.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", archive.ErrNotFound, err)
	}
	return err
}
