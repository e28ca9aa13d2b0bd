// Package manifest maintains the canonical episode list per site. The
// manifest is the authoritative source of episode identity and timestamps;
// only the RSS retriever writes it.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"podsearch/internal/storage"
)

// Key is the well-known location of the manifest inside a site's store.
const Key = "episode-manifest/full-episode-manifest.json"

// Episode is one immutable per-site record. SequentialID and FileKey never
// change once assigned, even if the title is later edited upstream.
type Episode struct {
	SequentialID      int    `json:"sequentialId"`
	FileKey           string `json:"fileKey"`
	Title             string `json:"title"`
	OriginalAudioURL  string `json:"originalAudioURL"`
	PublishedAtIso    string `json:"publishedAtIso"`
	PublishedAtUnixMs int64  `json:"publishedAtUnixMs"`
	FeedID            string `json:"feedId"`
	DownloadedAtIso   string `json:"downloadedAtIso,omitempty"`
}

// Manifest is the ordered episode list for one site.
type Manifest struct {
	Episodes []Episode
}

// Load reads the manifest; an absent file is treated as an empty manifest.
func Load(ctx context.Context, store storage.Storage) (*Manifest, error) {
	data, err := store.Get(ctx, Key)
	if errors.Is(err, storage.ErrNotFound) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	var episodes []Episode
	if err := json.Unmarshal(data, &episodes); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &Manifest{Episodes: episodes}, nil
}

// Save rewrites the manifest as a whole-file replacement. Local mode writes
// through a rename, remote mode is a single PUT; both are atomic.
func Save(ctx context.Context, store storage.Storage, m *Manifest) error {
	data, err := json.MarshalIndent(m.Episodes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := store.Put(ctx, Key, data, "application/json"); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// IndexByFileKey returns the position of the episode with this fileKey.
// Positions stay valid across appends; pointers into Episodes do not.
func (m *Manifest) IndexByFileKey(fileKey string) (int, bool) {
	for i := range m.Episodes {
		if m.Episodes[i].FileKey == fileKey {
			return i, true
		}
	}
	return -1, false
}

// IndexByAudioURL returns the position of the episode with this original
// audio URL. Titles change; the enclosure URL is the stable secondary
// identity.
func (m *Manifest) IndexByAudioURL(url string) (int, bool) {
	for i := range m.Episodes {
		if m.Episodes[i].OriginalAudioURL == url {
			return i, true
		}
	}
	return -1, false
}

// ByFileKey finds an episode by its fileKey.
func (m *Manifest) ByFileKey(fileKey string) (*Episode, bool) {
	if i, ok := m.IndexByFileKey(fileKey); ok {
		return &m.Episodes[i], true
	}
	return nil, false
}

// ByAudioURL finds an episode by its original audio URL.
func (m *Manifest) ByAudioURL(url string) (*Episode, bool) {
	if i, ok := m.IndexByAudioURL(url); ok {
		return &m.Episodes[i], true
	}
	return nil, false
}

// MaxSequentialID returns the highest assigned id, or 0 for an empty manifest.
// IDs are monotonic within a site and never reused.
func (m *Manifest) MaxSequentialID() int {
	max := 0
	for i := range m.Episodes {
		if m.Episodes[i].SequentialID > max {
			max = m.Episodes[i].SequentialID
		}
	}
	return max
}

// PublishedByFileKey maps fileKey to published-at unix milliseconds for every
// episode, used by the indexer to stamp search entries.
func (m *Manifest) PublishedByFileKey() map[string]Episode {
	out := make(map[string]Episode, len(m.Episodes))
	for _, ep := range m.Episodes {
		out[ep.FileKey] = ep
	}
	return out
}
