package searchindex

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podsearch/internal/manifest"
	"podsearch/internal/srt"
	"podsearch/internal/storage"
)

// IndexKey is the store location of the persisted index. The name is
// conventional, not semantic.
const IndexKey = "search-index/orama_index.msp"

// BuildStats summarizes one index build.
type BuildStats struct {
	Transcripts int
	Entries     int
	SkippedSRTs int
	Duration    time.Duration
}

// Build rebuilds a site's search index from every transcript in the store
// and uploads the compressed artifact atomically.
func Build(ctx context.Context, store storage.Storage) (*BuildStats, error) {
	start := time.Now()

	m, err := manifest.Load(ctx, store)
	if err != nil {
		return nil, err
	}
	episodes := m.PublishedByFileKey()

	keys, err := store.List(ctx, "transcripts/")
	if err != nil {
		return nil, err
	}

	idx := New()
	stats := &BuildStats{}
	for _, key := range keys {
		if !strings.HasSuffix(key, ".srt") {
			continue
		}
		fileKey := fileKeyFromTranscript(key)
		ep, ok := episodes[fileKey]
		if !ok {
			// Transcript without a manifest entry: RSS and transcripts have
			// drifted. Index what we can and let the next retrieval heal it.
			slog.Warn("Transcript has no manifest entry, skipping", "key", key)
			stats.SkippedSRTs++
			continue
		}

		data, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript %s: %w", key, err)
		}
		cues, err := srt.Parse(bytes.NewReader(data))
		if err != nil {
			slog.Warn("Malformed transcript skipped", "key", key, "error", err)
			stats.SkippedSRTs++
			continue
		}

		for _, cue := range cues {
			idx.Insert(Entry{
				ID:                            fmt.Sprintf("%d:%d", ep.SequentialID, cue.Index),
				Text:                          cue.Text,
				SequentialEpisodeIDAsString:   fmt.Sprintf("%d", ep.SequentialID),
				StartTimeMs:                   cue.Start.Milliseconds(),
				EndTimeMs:                     cue.End.Milliseconds(),
				EpisodePublishedUnixTimestamp: ep.PublishedAtUnixMs,
			})
		}
		stats.Transcripts++
	}
	stats.Entries = idx.Len()

	// Stream to a local file first, then a single PUT makes the swap atomic.
	tmp, err := os.CreateTemp("", "podsearch_index_*.msp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := idx.SaveFile(tmpPath); err != nil {
		return nil, fmt.Errorf("failed to serialize index: %w", err)
	}
	if err := store.PutFile(ctx, IndexKey, tmpPath, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("failed to upload index: %w", err)
	}

	stats.Duration = time.Since(start)
	slog.Info("Search index built",
		"transcripts", stats.Transcripts, "entries", stats.Entries,
		"skipped", stats.SkippedSRTs, "duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// fileKeyFromTranscript maps transcripts/{feedId}/{fileKey}.srt to fileKey.
func fileKeyFromTranscript(key string) string {
	base := filepath.Base(key)
	return strings.TrimSuffix(base, ".srt")
}
