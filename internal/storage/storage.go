// Package storage selects the archive.Backend implementation from
// configuration.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/config"
	"github.com/JakeFAU/page-archiver/internal/storage/gcs"
	"github.com/JakeFAU/page-archiver/internal/storage/local"
	"github.com/JakeFAU/page-archiver/internal/storage/remote"
	"github.com/JakeFAU/page-archiver/internal/storage/s3"
)

// New builds the backend named by cfg.Mode. The returned close function
// releases client resources and is never nil.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (archive.Backend, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, noop, err
	}

	switch cfg.Mode {
	case config.StorageModeLocal:
		store, err := local.New(local.Config{
			RootPath:     cfg.Local.RootPath,
			PublicPrefix: cfg.Local.PublicPrefix,
		}, logger.Named("local_storage"))
		if err != nil {
			return nil, noop, fmt.Errorf("init local storage: %w", err)
		}
		logger.Info("using local storage", zap.String("root_path", cfg.Local.RootPath))
		return store, noop, nil
	default:
		return newRemote(ctx, cfg.Remote, logger)
	}
}

func newRemote(ctx context.Context, cfg config.RemoteStorageConfig, logger *zap.Logger) (archive.Backend, func() error, error) {
	noop := func() error { return nil }
	var (
		client  remote.ObjectClient
		closeFn = noop
	)
	switch cfg.Provider {
	case config.ProviderGCS:
		c, err := gcs.New(ctx, gcs.Config{
			Bucket:          cfg.Container,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("init gcs storage: %w", err)
		}
		client, closeFn = c, c.Close
	case config.ProviderS3:
		c, err := s3.New(s3.Config{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Container,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("init s3 storage: %w", err)
		}
		client = c
	default:
		return nil, noop, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}

	backend, err := remote.New(client, remote.Config{
		Container:  cfg.Container,
		CDNBaseURL: cfg.CDNBaseURL,
	}, logger.Named("remote_storage"))
	if err != nil {
		_ = closeFn()
		return nil, noop, err
	}
	logger.Info("using remote storage",
		zap.String("provider", cfg.Provider),
		zap.String("container", cfg.Container),
	)
	return backend, closeFn, nil
}
