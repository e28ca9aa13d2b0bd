// Package mock provides an in-memory Storage used in tests. It counts write
// operations so idempotency can be asserted by capturing PUT/DELETE totals.
package mock

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"podsearch/internal/storage"
)

// Storage is an in-memory implementation of storage.Storage.
type Storage struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	modTimes map[string]time.Time

	PutCount    int
	DeleteCount int
	GetCount    int
	ListCount   int
}

// New creates an empty in-memory store.
func New() *Storage {
	return &Storage{
		objects:  make(map[string][]byte),
		modTimes: make(map[string]time.Time),
	}
}

// ResetCounters zeroes the operation counters.
func (m *Storage) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCount, m.DeleteCount, m.GetCount, m.ListCount = 0, 0, 0, 0
}

// Writes returns the number of mutating operations seen so far.
func (m *Storage) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PutCount + m.DeleteCount
}

func (m *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.GetCount++
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Storage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCount++
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = stored
	m.modTimes[key] = time.Now()
	return nil
}

// SetModTime overrides a key's last-modified time so tests can simulate
// blobs older or newer than their local counterparts.
func (m *Storage) SetModTime(key string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modTimes[key] = t
}

func (m *Storage) ModTime(ctx context.Context, key string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.modTimes[key]
	if !ok {
		return time.Time{}, storage.ErrNotFound
	}
	return t, nil
}

func (m *Storage) PutFile(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	return m.Put(ctx, key, data, contentType)
}

func (m *Storage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCount++
	delete(m.objects, key)
	delete(m.modTimes, key)
	return nil
}

func (m *Storage) Size(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(data)), nil
}

func (m *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	m.ListCount++
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)
	return keys, nil
}

func (m *Storage) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	m.mu.RLock()
	seen := make(map[string]struct{})
	for key := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			seen[path.Join(strings.TrimSuffix(prefix, "/"), rest[:idx])] = struct{}{}
		}
	}
	m.mu.RUnlock()

	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (m *Storage) DirectoryExists(ctx context.Context, prefix string) (bool, error) {
	keys, err := m.List(ctx, prefix)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

func (m *Storage) DirectorySize(ctx context.Context, prefix string) (int64, error) {
	keys, err := m.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		size, err := m.Size(ctx, key)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

func (m *Storage) Download(ctx context.Context, key, localPath string) error {
	data, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}
