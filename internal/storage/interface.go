package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist. Expected absences (empty
// manifest, missing optional config) are handled by callers; it is not an
// infrastructure error.
var ErrNotFound = errors.New("storage: key not found")

// Storage abstracts the per-site blob store. Keys are site-relative, e.g.
// "audio/feedA/2020-01-06_The-Opener.mp3"; each backend scopes them to the
// active site (directory prefix locally, dedicated bucket remotely).
type Storage interface {
	// Get returns the full content of a key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes a key as a whole-blob replacement.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// PutFile uploads a local file to a key.
	PutFile(ctx context.Context, key, localPath, contentType string) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Size returns the byte size of a key, or ErrNotFound.
	Size(ctx context.Context, key string) (int64, error)
	// ModTime returns the last-modified time of a key, or ErrNotFound.
	ModTime(ctx context.Context, key string) (time.Time, error)
	// List returns every key under a prefix, following pagination until
	// exhausted.
	List(ctx context.Context, prefix string) ([]string, error)
	// ListDirs returns the immediate sub-prefixes under a prefix.
	ListDirs(ctx context.Context, prefix string) ([]string, error)
	// DirectoryExists reports whether any key lives under the prefix.
	DirectoryExists(ctx context.Context, prefix string) (bool, error)
	// DirectorySize sums the byte size of every key under the prefix.
	DirectorySize(ctx context.Context, prefix string) (int64, error)
	// Download streams a key to a local file.
	Download(ctx context.Context, key, localPath string) error
}

// SiteBucketName returns the bucket holding a site's artifacts in remote mode.
func SiteBucketName(siteID, suffix string) string {
	return siteID + "-" + suffix
}
