// Package rss discovers new episodes from a site's feeds, downloads their
// audio and keeps the episode manifest current.
package rss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"podsearch/internal/config"
	"podsearch/internal/episode"
	"podsearch/internal/manifest"
	"podsearch/internal/sites"
	"podsearch/internal/storage"
)

// Invalidator purges CDN paths after new audio lands. Nil disables it.
type Invalidator interface {
	Invalidate(ctx context.Context, paths []string) error
}

// Result tells the orchestrator what this stage produced.
type Result struct {
	HasNewAudio bool
	NewKeys     []string // audio keys written this run
	Downloaded  int
	Skipped     int
	FeedErrors  []string
}

// Retriever runs the RSS retrieval stage for one site at a time.
type Retriever struct {
	store       storage.Storage
	client      *http.Client
	parser      *gofeed.Parser
	invalidator Invalidator
	concurrency int
}

// NewRetriever creates a retriever against the given store.
func NewRetriever(store storage.Storage, invalidator Invalidator) *Retriever {
	return &Retriever{
		store:       store,
		client:      &http.Client{Timeout: config.AudioDownloadTimeout},
		parser:      gofeed.NewParser(),
		invalidator: invalidator,
		concurrency: config.MaxDownloadWorkers,
	}
}

type feedItem struct {
	feedID    string
	fileKey   string
	title     string
	audioURL  string
	published time.Time
}

// Run fetches every feed, reconciles the manifest and downloads new audio.
// Per-feed errors isolate that feed; per-episode download errors skip that
// episode.
func (r *Retriever) Run(ctx context.Context, site sites.Site) (*Result, error) {
	m, err := manifest.Load(ctx, r.store)
	if err != nil {
		return nil, err
	}

	items, feedErrors := r.collectItems(ctx, site)
	result := &Result{FeedErrors: feedErrors}

	changed := false
	// Download targets are tracked as positions into m.Episodes: the loop
	// below keeps appending, and appends reallocate the backing array, so a
	// pointer taken here could end up aimed at a stale copy.
	var toDownload []int
	nextID := m.MaxSequentialID() + 1

	for _, item := range items {
		idx, ok := m.IndexByFileKey(item.fileKey)
		if !ok {
			idx, ok = m.IndexByAudioURL(item.audioURL)
			if ok {
				// Title edits upstream change the computed key; identity is
				// pinned by the stable audio URL and the original key stays.
				slog.Warn("Episode title changed upstream, keeping original fileKey",
					"site", site.ID, "fileKey", m.Episodes[idx].FileKey, "newTitle", item.title)
			}
		}
		if ok {
			if m.Episodes[idx].OriginalAudioURL != item.audioURL {
				slog.Warn("Episode re-hosted under new audio URL, keeping first URL",
					"site", site.ID, "fileKey", m.Episodes[idx].FileKey)
			}
			if m.Episodes[idx].DownloadedAtIso == "" {
				toDownload = append(toDownload, idx)
			}
			continue
		}

		m.Episodes = append(m.Episodes, manifest.Episode{
			SequentialID:      nextID,
			FileKey:           item.fileKey,
			Title:             item.title,
			OriginalAudioURL:  item.audioURL,
			PublishedAtIso:    item.published.UTC().Format(time.RFC3339),
			PublishedAtUnixMs: item.published.UnixMilli(),
			FeedID:            item.feedID,
		})
		toDownload = append(toDownload, len(m.Episodes)-1)
		nextID++
		changed = true
		slog.Info("Discovered new episode", "site", site.ID, "fileKey", item.fileKey, "sequentialId", nextID-1)
	}

	if r.downloadAll(ctx, site, m, toDownload, result) {
		changed = true
	}

	if changed {
		if err := manifest.Save(ctx, r.store, m); err != nil {
			return nil, err
		}
	}

	if result.HasNewAudio && r.invalidator != nil {
		if err := r.invalidator.Invalidate(ctx, []string{"/rss/*", "/episode-manifest/*"}); err != nil {
			slog.Error("CDN invalidation failed", "site", site.ID, "error", err)
		}
	}

	return result, nil
}

// collectItems fetches all feeds with bounded parallelism and returns the
// flattened item list in deterministic order (published ascending).
func (r *Retriever) collectItems(ctx context.Context, site sites.Site) ([]feedItem, []string) {
	type feedOutcome struct {
		items []feedItem
		err   error
	}
	outcomes := make([]feedOutcome, len(site.Feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.MaxFeedWorkers)
	for i, feed := range site.Feeds {
		g.Go(func() error {
			items, err := r.fetchFeed(gctx, feed)
			outcomes[i] = feedOutcome{items: items, err: err}
			return nil
		})
	}
	g.Wait()

	var all []feedItem
	var feedErrors []string
	for i, outcome := range outcomes {
		if outcome.err != nil {
			slog.Error("Feed retrieval failed", "site", site.ID, "feed", site.Feeds[i].ID, "error", outcome.err)
			feedErrors = append(feedErrors, fmt.Sprintf("%s: %v", site.Feeds[i].ID, outcome.err))
			continue
		}
		all = append(all, outcome.items...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].published.Equal(all[j].published) {
			return all[i].published.Before(all[j].published)
		}
		return all[i].fileKey < all[j].fileKey
	})
	return all, feedErrors
}

func (r *Retriever) fetchFeed(ctx context.Context, feed sites.Feed) ([]feedItem, error) {
	body, err := r.fetchWithRetry(ctx, feed.URL, config.FeedFetchTimeout)
	if err != nil {
		return nil, err
	}

	parsed, err := r.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feed.URL, err)
	}

	// Keep the raw document around for drift checks and CDN serving. An
	// unchanged feed is not rewritten, so a no-op run stays write-free.
	cacheKey := "rss/" + feed.ID + ".xml"
	if cached, err := r.store.Get(ctx, cacheKey); err != nil || !bytes.Equal(cached, body) {
		if err := r.store.Put(ctx, cacheKey, body, "application/rss+xml"); err != nil {
			slog.Warn("Failed to cache raw feed", "feed", feed.ID, "error", err)
		}
	}

	var items []feedItem
	for _, item := range parsed.Items {
		audioURL := extractAudioURL(item)
		if audioURL == "" {
			slog.Debug("Feed item without audio enclosure skipped", "feed", feed.ID, "title", item.Title)
			continue
		}
		if item.PublishedParsed == nil {
			slog.Warn("Feed item without parseable date skipped", "feed", feed.ID, "title", item.Title)
			continue
		}
		items = append(items, feedItem{
			feedID:    feed.ID,
			fileKey:   episode.FileKeyForTime(item.Title, *item.PublishedParsed),
			title:     item.Title,
			audioURL:  audioURL,
			published: item.PublishedParsed.UTC(),
		})
	}
	return items, nil
}

// extractAudioURL prefers audio enclosures; podcast feeds occasionally carry
// the media URL only in the item link.
func extractAudioURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if len(enc.Type) > 6 && enc.Type[:6] == "audio/" {
			return enc.URL
		}
	}
	if len(item.Enclosures) == 1 {
		return item.Enclosures[0].URL
	}
	return ""
}

// downloadAll streams new audio to the store with bounded parallelism.
// indexes are positions into m.Episodes; stamps land on the manifest that
// gets saved. Returns true when any DownloadedAtIso was stamped.
func (r *Retriever) downloadAll(ctx context.Context, site sites.Site, m *manifest.Manifest, indexes []int, result *Result) bool {
	if len(indexes) == 0 {
		return false
	}

	type dlOutcome struct {
		key     string
		skipped bool
		err     error
	}
	outcomes := make([]dlOutcome, len(indexes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, idx := range indexes {
		ep := m.Episodes[idx]
		g.Go(func() error {
			key := AudioKey(ep.FeedID, ep.FileKey)
			skipped, err := r.downloadEpisode(gctx, key, ep.OriginalAudioURL)
			outcomes[i] = dlOutcome{key: key, skipped: skipped, err: err}
			return nil
		})
	}
	g.Wait()

	changed := false
	now := time.Now().UTC().Format(time.RFC3339)
	for i, outcome := range outcomes {
		ep := &m.Episodes[indexes[i]]
		if outcome.err != nil {
			slog.Error("Audio download failed, skipping episode",
				"site", site.ID, "fileKey", ep.FileKey, "error", outcome.err)
			continue
		}
		if ep.DownloadedAtIso == "" {
			ep.DownloadedAtIso = now
			changed = true
		}
		if outcome.skipped {
			result.Skipped++
			continue
		}
		result.Downloaded++
		result.HasNewAudio = true
		result.NewKeys = append(result.NewKeys, outcome.key)
	}
	return changed
}

// downloadEpisode fetches one audio file unless the target blob already
// exists with non-zero length.
func (r *Retriever) downloadEpisode(ctx context.Context, key, url string) (skipped bool, err error) {
	size, err := r.store.Size(ctx, key)
	if err == nil && size > 0 {
		return true, nil
	}

	tmp, err := os.CreateTemp("", "podsearch_audio_*.mp3")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := r.streamToFile(ctx, url, tmp); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to flush temp file: %w", err)
	}

	if err := r.store.PutFile(ctx, key, tmpPath, "audio/mpeg"); err != nil {
		return false, err
	}
	slog.Info("Audio downloaded", "key", key)
	return false, nil
}

func (r *Retriever) streamToFile(ctx context.Context, url string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: HTTP %d", url, resp.StatusCode)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	return nil
}

// fetchWithRetry GETs a URL with a hard deadline per attempt and bounded
// exponential backoff across attempts.
func (r *Retriever) fetchWithRetry(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	var body []byte
	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("HTTP %d from %s", resp.StatusCode, url))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	return body, nil
}

// AudioKey is the store location of an episode's audio.
func AudioKey(feedID, fileKey string) string {
	return "audio/" + feedID + "/" + fileKey + ".mp3"
}
