package storage

import (
	"context"
	"fmt"
	"log/slog"

	"podsearch/internal/config"
)

// StorageEnv selects the key-resolution and bucket-naming strategy.
type StorageEnv string

const (
	EnvLocal      StorageEnv = "local"
	EnvDevRemote  StorageEnv = "dev-remote"
	EnvProdRemote StorageEnv = "prod-remote"
)

// IsValidEnv checks if a storage environment is supported.
func IsValidEnv(env string) bool {
	switch StorageEnv(env) {
	case EnvLocal, EnvDevRemote, EnvProdRemote:
		return true
	default:
		return false
	}
}

// ForSite creates the store for one site based on FILE_STORAGE_ENV. Both modes
// resolve the same logical artifact to the same (bucket, key) pair once the
// environment's scoping is applied: local mode prefixes sites/{siteId}/, remote
// mode scopes through the per-site bucket.
func ForSite(ctx context.Context, siteID string) (Storage, error) {
	env := StorageEnv(config.FileStorageEnv)
	if !IsValidEnv(string(env)) {
		return nil, fmt.Errorf("unsupported FILE_STORAGE_ENV: %q", env)
	}

	slog.Debug("Creating storage backend", "env", env, "site", siteID)

	switch env {
	case EnvLocal:
		return NewLocalStorage(config.LocalStorageRoot, siteID)
	default:
		return NewS3Storage(ctx, S3Config{
			Region:      config.AWSRegion,
			Bucket:      SiteBucketName(siteID, config.S3BucketSuffix),
			AccessKey:   config.AWSAccessKey,
			SecretKey:   config.AWSSecretKey,
			EndpointURL: config.AWSEndpointURL,
		})
	}
}
