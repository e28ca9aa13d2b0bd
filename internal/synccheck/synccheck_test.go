package synccheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podsearch/internal/storage/mock"
)

func writeLocal(t *testing.T, root, siteID, key string) {
	t.Helper()
	path := filepath.Join(root, "sites", siteID, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestCheckBidirectional(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := mock.New()

	writeLocal(t, root, "s1", "audio/main/ep1.mp3")
	writeLocal(t, root, "s1", "transcripts/main/ep1.srt")
	require.NoError(t, store.Put(ctx, "audio/main/ep1.mp3", []byte("x"), "audio/mpeg"))
	require.NoError(t, store.Put(ctx, "audio/main/ep2.mp3", []byte("y"), "audio/mpeg"))

	report, err := Check(ctx, store, root, "s1", Bidirectional)
	require.NoError(t, err)

	audio := report.Categories["audio"]
	assert.Equal(t, []string{"audio/main/ep1.mp3"}, audio.Consistent)
	assert.Equal(t, []string{"audio/main/ep2.mp3"}, audio.RemoteOnly)
	assert.Empty(t, audio.LocalOnly)

	transcripts := report.Categories["transcripts"]
	assert.Equal(t, []string{"transcripts/main/ep1.srt"}, transcripts.LocalOnly)

	assert.Equal(t, 1, report.LocalOnlyCount())
	assert.Equal(t, 1, report.RemoteOnlyCount())
}

func TestCheckModeGating(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := mock.New()

	writeLocal(t, root, "s1", "audio/main/local-only.mp3")
	require.NoError(t, store.Put(ctx, "audio/main/remote-only.mp3", []byte("y"), "audio/mpeg"))

	push, err := Check(ctx, store, root, "s1", PushOnly)
	require.NoError(t, err)
	assert.Equal(t, 1, push.LocalOnlyCount())
	assert.Equal(t, 0, push.RemoteOnlyCount())

	pull, err := Check(ctx, store, root, "s1", PullOnly)
	require.NoError(t, err)
	assert.Equal(t, 0, pull.LocalOnlyCount())
	assert.Equal(t, 1, pull.RemoteOnlyCount())
}

func TestCheckSkipsDotfiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := mock.New()

	writeLocal(t, root, "s1", "audio/main/.DS_Store")
	writeLocal(t, root, "s1", "audio/.hidden")

	report, err := Check(ctx, store, root, "s1", Bidirectional)
	require.NoError(t, err)
	assert.Equal(t, 0, report.LocalOnlyCount())
}

func TestCheckIgnoresSearchIndex(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := mock.New()

	// The derived index never appears in a gap report.
	require.NoError(t, store.Put(ctx, "search-index/orama_index.msp", []byte("x"), "application/octet-stream"))

	report, err := Check(ctx, store, root, "s1", Bidirectional)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RemoteOnlyCount())
	_, hasIndexCategory := report.Categories["search-index"]
	assert.False(t, hasIndexCategory)
}

func TestCheckEmptyEverything(t *testing.T) {
	ctx := context.Background()
	report, err := Check(ctx, mock.New(), t.TempDir(), "nope", Bidirectional)
	require.NoError(t, err)
	require.Len(t, report.Categories, len(Categories))
	assert.Equal(t, 0, report.LocalOnlyCount())
	assert.Equal(t, 0, report.RemoteOnlyCount())
}
