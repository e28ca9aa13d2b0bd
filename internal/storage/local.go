package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// LocalStorage implements Storage on the filesystem. Because multiple sites
// share one tree, keys are resolved under {root}/sites/{siteId}/.
type LocalStorage struct {
	root   string
	siteID string
}

// NewLocalStorage creates a filesystem-backed store for one site.
func NewLocalStorage(root, siteID string) (*LocalStorage, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site id is required for local storage")
	}
	if err := os.MkdirAll(filepath.Join(root, "sites", siteID), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create site directory: %w", err)
	}
	return &LocalStorage{root: root, siteID: siteID}, nil
}

// Root returns the storage root (the directory containing sites/).
func (l *LocalStorage) Root() string { return l.root }

func (l *LocalStorage) resolve(key string) string {
	return filepath.Join(l.root, "sites", l.siteID, filepath.FromSlash(key))
}

func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes atomically with write-then-rename so readers never observe a
// partial blob.
func (l *LocalStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	path := l.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (l *LocalStorage) PutFile(ctx context.Context, key, localPath, contentType string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	path := l.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	dst, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", key, err)
	}
	defer dst.Cleanup()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy %s: %w", key, err)
	}
	if err := dst.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", key, err)
	}
	return nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.resolve(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (l *LocalStorage) Size(ctx context.Context, key string) (int64, error) {
	info, err := os.Stat(l.resolve(key))
	if os.IsNotExist(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return info.Size(), nil
}

func (l *LocalStorage) ModTime(ctx context.Context, key string) (time.Time, error) {
	info, err := os.Stat(l.resolve(key))
	if os.IsNotExist(err) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return info.ModTime(), nil
}

func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	base := l.resolve(prefix)
	var keys []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(filepath.Join(l.root, "sites", l.siteID), path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalStorage) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(l.resolve(prefix))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list dirs under %s: %w", prefix, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, strings.TrimSuffix(prefix, "/")+"/"+e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (l *LocalStorage) DirectoryExists(ctx context.Context, prefix string) (bool, error) {
	keys, err := l.List(ctx, prefix)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

func (l *LocalStorage) DirectorySize(ctx context.Context, prefix string) (int64, error) {
	keys, err := l.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		size, err := l.Size(ctx, key)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

func (l *LocalStorage) Download(ctx context.Context, key, localPath string) error {
	src, err := os.Open(l.resolve(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", localPath, err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy %s: %w", key, err)
	}
	return nil
}
