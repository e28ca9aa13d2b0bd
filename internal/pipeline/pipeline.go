// Package pipeline orchestrates the per-site ingestion run: pre-sync, RSS
// retrieval, transcription, upload reconciliation and the indexing trigger.
// Sites are isolated; one site failing never stops the others.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"podsearch/internal/config"
	"podsearch/internal/corrections"
	"podsearch/internal/invoke"
	"podsearch/internal/queue"
	"podsearch/internal/rss"
	"podsearch/internal/searchindex"
	"podsearch/internal/sites"
	"podsearch/internal/storage"
	"podsearch/internal/synccheck"
	"podsearch/internal/transcribe"
)

// retrieveStage and transcribeStage are what the orchestrator needs from the
// two heavy stages; tests substitute fakes.
type retrieveStage interface {
	Run(ctx context.Context, site sites.Site) (*rss.Result, error)
}

type transcribeStage interface {
	Run(ctx context.Context, audioKeys []string) (*transcribe.Result, error)
}

// SiteResult summarizes one site's run for the log and the exit code.
type SiteResult struct {
	SiteID     string
	OK         bool
	Err        error
	NewAudio   int
	NewSRT     int
	Uploads    int
	FeedErrors int
	Duration   time.Duration
}

// Pipeline runs the full ingestion flow across sites. The factory fields have
// production defaults; tests override them to inject fakes.
type Pipeline struct {
	Registry *sites.Registry
	DryRun   bool

	StoreFor     func(ctx context.Context, siteID string) (storage.Storage, error)
	RetrieverFor func(ctx context.Context, store storage.Storage) (retrieveStage, error)
	ProcessorFor func(ctx context.Context, store storage.Storage) (transcribeStage, error)
	TriggerIndex func(ctx context.Context, siteID string, store storage.Storage) error
}

// New builds a pipeline with the production stage wiring.
func New(registry *sites.Registry) *Pipeline {
	p := &Pipeline{Registry: registry}
	p.StoreFor = storage.ForSite
	p.RetrieverFor = func(ctx context.Context, store storage.Storage) (retrieveStage, error) {
		var inv rss.Invalidator
		if config.CloudFrontDistributionID != "" {
			cf, err := rss.NewCloudFrontInvalidator(ctx, config.AWSRegion, config.CloudFrontDistributionID)
			if err != nil {
				return nil, err
			}
			inv = cf
		}
		return rss.NewRetriever(store, inv), nil
	}
	p.ProcessorFor = func(ctx context.Context, store storage.Storage) (transcribeStage, error) {
		provider, err := transcribe.FromConfig()
		if err != nil {
			return nil, err
		}
		table, err := corrections.Load(ctx, store, config.CustomCorrectionsPath)
		if err != nil {
			return nil, err
		}
		return transcribe.NewProcessor(store, provider, table), nil
	}
	p.TriggerIndex = triggerIndex
	return p
}

// Run executes the pipeline for the named sites (all configured sites when
// empty) and writes the run log. The returned error is non-nil when any site
// hard-failed.
func (p *Pipeline) Run(ctx context.Context, siteIDs []string) ([]SiteResult, error) {
	var selected []sites.Site
	var err error
	if len(siteIDs) > 0 {
		selected, err = p.Registry.Subset(siteIDs)
		if err != nil {
			return nil, err
		}
	} else {
		selected = p.Registry.All()
	}

	runID := uuid.NewString()
	start := time.Now()
	slog.Info("Pipeline run starting", "run_id", runID, "sites", len(selected), "dry_run", p.DryRun)

	results := make([]SiteResult, 0, len(selected))
	failed := 0
	for _, site := range selected {
		result := p.runSite(ctx, site)
		if !result.OK {
			failed++
			slog.Error("Site run failed", "site", site.ID, "error", result.Err)
		}
		results = append(results, result)
	}

	if !p.DryRun {
		if err := AppendRunLog(config.LocalStorageRoot, RunEntry{
			RunID:    runID,
			Started:  start,
			Duration: time.Since(start),
			Sites:    results,
		}); err != nil {
			slog.Error("Failed to write run log", "error", err)
		}
	}

	slog.Info("Pipeline run finished", "run_id", runID,
		"duration", time.Since(start).Round(time.Second), "failed_sites", failed)
	if failed > 0 {
		return results, fmt.Errorf("%d of %d sites failed", failed, len(selected))
	}
	return results, nil
}

// runSite walks one site through all phases. Every phase error marks the site
// failed but the next site still runs.
func (p *Pipeline) runSite(ctx context.Context, site sites.Site) SiteResult {
	start := time.Now()
	result := SiteResult{SiteID: site.ID}

	store, err := p.StoreFor(ctx, site.ID)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	if p.DryRun {
		result.OK = true
		result.Duration = time.Since(start)
		slog.Info("Dry run, skipping all phases", "site", site.ID)
		return result
	}

	// Phase 0: in remote mode, pull blobs the local mirror is missing and
	// refresh ones the store has newer copies of. The local environment works
	// on the mirror directly, so there is nothing to pre-sync.
	if config.IsRemote() {
		if err := p.preSync(ctx, store, site.ID); err != nil {
			result.Err = fmt.Errorf("pre-sync: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}

	// Phase 1: RSS retrieval.
	retriever, err := p.RetrieverFor(ctx, store)
	if err != nil {
		result.Err = fmt.Errorf("rss setup: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	rssResult, err := retriever.Run(ctx, site)
	if err != nil {
		result.Err = fmt.Errorf("rss: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.NewAudio = rssResult.Downloaded
	result.FeedErrors = len(rssResult.FeedErrors)

	// Phase 2: transcription of every audio file without a transcript.
	processor, err := p.ProcessorFor(ctx, store)
	if err != nil {
		result.Err = fmt.Errorf("transcribe setup: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	audioKeys, err := store.List(ctx, "audio/")
	if err != nil {
		result.Err = fmt.Errorf("transcribe: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	srtResult, err := processor.Run(ctx, audioKeys)
	if err != nil {
		result.Err = fmt.Errorf("transcribe: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.NewSRT = len(srtResult.NewKeys)

	// Phase 3: upload anything the mirror has that the store lacks. Remote
	// mode only; in local mode the store is the mirror.
	if config.IsRemote() {
		uploads, err := p.pushGaps(ctx, store, site.ID)
		if err != nil {
			result.Err = fmt.Errorf("sync: %w", err)
			result.Duration = time.Since(start)
			return result
		}
		result.Uploads = uploads
	}

	// Phase 4: trigger indexing only when this run changed the corpus, so an
	// unchanged double-run stays write-free.
	changed := result.Uploads > 0 || rssResult.HasNewAudio || srtResult.HasNewSRT
	if changed {
		if err := p.TriggerIndex(ctx, site.ID, store); err != nil {
			result.Err = fmt.Errorf("index trigger: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	} else {
		slog.Info("Corpus unchanged, skipping index", "site", site.ID)
	}

	result.OK = true
	result.Duration = time.Since(start)
	return result
}

// preSync pulls remote blobs into the local mirror with overwrite-if-newer:
// keys the mirror lacks are downloaded, and keys present on both sides are
// refreshed when the remote copy is more recent than the local file.
func (p *Pipeline) preSync(ctx context.Context, store storage.Storage, siteID string) error {
	report, err := synccheck.Check(ctx, store, config.LocalStorageRoot, siteID, synccheck.PullOnly)
	if err != nil {
		return err
	}
	siteDir := filepath.Join(config.LocalStorageRoot, "sites", siteID)
	pulled, refreshed := 0, 0
	for _, cat := range report.Categories {
		for _, key := range cat.RemoteOnly {
			local := filepath.Join(siteDir, filepath.FromSlash(key))
			if err := store.Download(ctx, key, local); err != nil {
				return fmt.Errorf("failed to pull %s: %w", key, err)
			}
			pulled++
		}
		for _, key := range cat.Consistent {
			local := filepath.Join(siteDir, filepath.FromSlash(key))
			info, err := os.Stat(local)
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", local, err)
			}
			remoteMod, err := store.ModTime(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to check %s: %w", key, err)
			}
			if !remoteMod.After(info.ModTime()) {
				continue
			}
			if err := store.Download(ctx, key, local); err != nil {
				return fmt.Errorf("failed to refresh %s: %w", key, err)
			}
			refreshed++
			slog.Info("Pre-sync refreshed stale local copy", "site", siteID, "key", key)
		}
	}
	if pulled > 0 || refreshed > 0 {
		slog.Info("Pre-sync pulled remote blobs", "site", siteID, "pulled", pulled, "refreshed", refreshed)
	}
	return nil
}

// pushGaps uploads local-only keys to the store, retrying each upload with
// bounded backoff. Returns the number of uploads performed.
func (p *Pipeline) pushGaps(ctx context.Context, store storage.Storage, siteID string) (int, error) {
	report, err := synccheck.Check(ctx, store, config.LocalStorageRoot, siteID, synccheck.PushOnly)
	if err != nil {
		return 0, err
	}
	siteDir := filepath.Join(config.LocalStorageRoot, "sites", siteID)
	uploads := 0
	for _, cat := range report.Categories {
		for _, key := range cat.LocalOnly {
			local := filepath.Join(siteDir, filepath.FromSlash(key))
			op := func() error {
				return store.PutFile(ctx, key, local, contentTypeForKey(key))
			}
			policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
			if err := backoff.Retry(op, policy); err != nil {
				return uploads, fmt.Errorf("failed to upload %s: %w", key, err)
			}
			uploads++
			slog.Info("Gap uploaded", "site", siteID, "key", key)
		}
	}
	return uploads, nil
}

func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".srt"):
		return "application/x-subrip"
	case strings.HasSuffix(key, ".xml"):
		return "application/rss+xml"
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// triggerIndex rebuilds the index in-process locally; in remote mode the job
// goes to the Lambda indexer when one is configured, otherwise to the worker
// queue.
func triggerIndex(ctx context.Context, siteID string, store storage.Storage) error {
	if !config.IsRemote() {
		_, err := searchindex.Build(ctx, store)
		return err
	}

	if config.IndexerFunctionARN != "" {
		trigger, err := invoke.NewTrigger(ctx)
		if err != nil {
			return err
		}
		return trigger.Index(ctx, siteID, queue.KindIndex)
	}

	q, err := queue.NewQueue(ctx)
	if err != nil {
		return err
	}
	defer q.Close()
	return q.Enqueue(ctx, &queue.Job{
		ID:        uuid.NewString(),
		SiteID:    siteID,
		Kind:      queue.KindIndex,
		CreatedAt: time.Now().UTC(),
	})
}
