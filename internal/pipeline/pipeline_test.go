package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podsearch/internal/config"
	"podsearch/internal/rss"
	"podsearch/internal/sites"
	"podsearch/internal/storage"
	"podsearch/internal/storage/mock"
	"podsearch/internal/transcribe"
)

type fakeRetriever struct {
	result *rss.Result
	err    error
	calls  int
}

func (f *fakeRetriever) Run(ctx context.Context, site sites.Site) (*rss.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeTranscriber struct {
	result *transcribe.Result
	calls  int
}

func (f *fakeTranscriber) Run(ctx context.Context, audioKeys []string) (*transcribe.Result, error) {
	f.calls++
	return f.result, nil
}

func testRegistry(t *testing.T, ids ...string) *sites.Registry {
	t.Helper()
	doc := "["
	for i, id := range ids {
		if i > 0 {
			doc += ","
		}
		doc += `{"id":"` + id + `","title":"` + id + `","feeds":[{"id":"main","url":"http://example.com/feed.xml"}]}`
	}
	doc += "]"
	path := filepath.Join(t.TempDir(), "sites.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	registry, err := sites.Load(path)
	require.NoError(t, err)
	return registry
}

type harness struct {
	pipeline   *Pipeline
	store      *mock.Storage
	retriever  *fakeRetriever
	transcribe *fakeTranscriber
	triggered  []string
}

func newHarness(t *testing.T, registry *sites.Registry) *harness {
	t.Helper()
	config.LocalStorageRoot = t.TempDir()

	h := &harness{
		store:      mock.New(),
		retriever:  &fakeRetriever{result: &rss.Result{}},
		transcribe: &fakeTranscriber{result: &transcribe.Result{}},
	}
	p := &Pipeline{Registry: registry}
	p.StoreFor = func(ctx context.Context, siteID string) (storage.Storage, error) {
		return h.store, nil
	}
	p.RetrieverFor = func(ctx context.Context, store storage.Storage) (retrieveStage, error) {
		return h.retriever, nil
	}
	p.ProcessorFor = func(ctx context.Context, store storage.Storage) (transcribeStage, error) {
		return h.transcribe, nil
	}
	p.TriggerIndex = func(ctx context.Context, siteID string, store storage.Storage) error {
		h.triggered = append(h.triggered, siteID)
		return nil
	}
	h.pipeline = p
	return h
}

func TestRunTriggersIndexOnNewContent(t *testing.T) {
	h := newHarness(t, testRegistry(t, "s1"))
	h.retriever.result = &rss.Result{HasNewAudio: true, Downloaded: 2}
	h.transcribe.result = &transcribe.Result{HasNewSRT: true, NewKeys: []string{"transcripts/main/a.srt"}}

	results, err := h.pipeline.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, 2, results[0].NewAudio)
	assert.Equal(t, 1, results[0].NewSRT)
	assert.Equal(t, []string{"s1"}, h.triggered)
}

func TestRunUnchangedCorpusIsWriteFree(t *testing.T) {
	h := newHarness(t, testRegistry(t, "s1"))

	// Nothing new anywhere: no index trigger and zero store writes.
	results, err := h.pipeline.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, results[0].OK)
	assert.Empty(t, h.triggered)
	assert.Equal(t, 0, h.store.Writes())
}

func TestRunSiteIsolation(t *testing.T) {
	registry := testRegistry(t, "bad", "good")
	h := newHarness(t, registry)

	failOn := map[string]bool{"bad": true}
	h.pipeline.RetrieverFor = func(ctx context.Context, store storage.Storage) (retrieveStage, error) {
		return h.retriever, nil
	}
	h.retriever.err = nil
	calls := 0
	h.pipeline.StoreFor = func(ctx context.Context, siteID string) (storage.Storage, error) {
		calls++
		if failOn[siteID] {
			return nil, errors.New("bucket unreachable")
		}
		return h.store, nil
	}

	results, err := h.pipeline.Run(context.Background(), nil)
	require.Error(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].OK)
	assert.Error(t, results[0].Err)
	// The failing site does not stop the healthy one.
	assert.True(t, results[1].OK)
	assert.Equal(t, 2, calls)
}

func TestRunSiteSubset(t *testing.T) {
	h := newHarness(t, testRegistry(t, "a", "b", "c"))

	results, err := h.pipeline.Run(context.Background(), []string{"b"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].SiteID)

	_, err = h.pipeline.Run(context.Background(), []string{"nope"})
	assert.Error(t, err)
}

func TestRunDryRun(t *testing.T) {
	h := newHarness(t, testRegistry(t, "s1"))
	h.pipeline.DryRun = true

	results, err := h.pipeline.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, results[0].OK)
	assert.Equal(t, 0, h.retriever.calls)
	assert.Equal(t, 0, h.transcribe.calls)
	assert.Empty(t, h.triggered)
	assert.Equal(t, 0, h.store.Writes())
}

func TestPreSyncPullsAndRefreshes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testRegistry(t, "s1"))
	siteDir := filepath.Join(config.LocalStorageRoot, "sites", "s1")

	// Remote-only key: must be pulled.
	require.NoError(t, h.store.Put(ctx, "audio/main/pull-me.mp3", []byte("remote-audio"), "audio/mpeg"))

	// Present on both sides but the remote copy is newer: must be refreshed.
	stalePath := filepath.Join(siteDir, "transcripts", "main", "stale.srt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stalePath), 0o755))
	require.NoError(t, os.WriteFile(stalePath, []byte("old transcript"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stalePath, old, old))
	require.NoError(t, h.store.Put(ctx, "transcripts/main/stale.srt", []byte("corrected transcript"), "application/x-subrip"))

	// Present on both sides and the local copy is current: left alone.
	freshPath := filepath.Join(siteDir, "transcripts", "main", "fresh.srt")
	require.NoError(t, os.WriteFile(freshPath, []byte("local edit"), 0o644))
	require.NoError(t, h.store.Put(ctx, "transcripts/main/fresh.srt", []byte("remote original"), "application/x-subrip"))
	h.store.SetModTime("transcripts/main/fresh.srt", time.Now().Add(-2*time.Hour))

	require.NoError(t, h.pipeline.preSync(ctx, h.store, "s1"))

	pulled, err := os.ReadFile(filepath.Join(siteDir, "audio", "main", "pull-me.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "remote-audio", string(pulled))

	refreshed, err := os.ReadFile(stalePath)
	require.NoError(t, err)
	assert.Equal(t, "corrected transcript", string(refreshed))

	untouched, err := os.ReadFile(freshPath)
	require.NoError(t, err)
	assert.Equal(t, "local edit", string(untouched))
}

func TestRunWritesRunLog(t *testing.T) {
	h := newHarness(t, testRegistry(t, "s1"))

	_, err := h.pipeline.Run(context.Background(), nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(config.LocalStorageRoot, RunLogName))
	require.NoError(t, err)
	assert.Contains(t, string(data), runLogHeader)
	assert.Contains(t, string(data), "**s1** ok")
}
