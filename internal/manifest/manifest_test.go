package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podsearch/internal/storage/mock"
)

func TestLoadAbsentManifest(t *testing.T) {
	store := mock.New()
	m, err := Load(context.Background(), store)
	require.NoError(t, err)
	assert.Empty(t, m.Episodes)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := mock.New()

	m := &Manifest{Episodes: []Episode{
		{
			SequentialID:      1,
			FileKey:           "2020-01-06_The-Opener",
			Title:             "The Opener",
			OriginalAudioURL:  "https://cdn.example.com/ep1.mp3",
			PublishedAtIso:    "2020-01-06T12:00:00Z",
			PublishedAtUnixMs: 1578312000000,
			FeedID:            "main",
		},
		{
			SequentialID:      2,
			FileKey:           "2020-01-13_The-Followup",
			Title:             "The Followup",
			OriginalAudioURL:  "https://cdn.example.com/ep2.mp3",
			PublishedAtIso:    "2020-01-13T12:00:00Z",
			PublishedAtUnixMs: 1578916800000,
			FeedID:            "main",
			DownloadedAtIso:   "2020-01-13T13:00:00Z",
		},
	}}

	require.NoError(t, Save(ctx, store, m))

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, m.Episodes, loaded.Episodes)
}

func TestJSONFieldNames(t *testing.T) {
	ctx := context.Background()
	store := mock.New()

	m := &Manifest{Episodes: []Episode{{SequentialID: 5, FileKey: "k", Title: "t"}}}
	require.NoError(t, Save(ctx, store, m))

	data, err := store.Get(ctx, Key)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sequentialId": 5`)
	assert.Contains(t, string(data), `"fileKey": "k"`)
	// Empty download stamp is omitted entirely.
	assert.NotContains(t, string(data), "downloadedAtIso")
}

func TestLookups(t *testing.T) {
	m := &Manifest{Episodes: []Episode{
		{SequentialID: 1, FileKey: "a", OriginalAudioURL: "https://x/1.mp3"},
		{SequentialID: 3, FileKey: "b", OriginalAudioURL: "https://x/2.mp3"},
	}}

	ep, ok := m.ByFileKey("b")
	require.True(t, ok)
	assert.Equal(t, 3, ep.SequentialID)

	ep, ok = m.ByAudioURL("https://x/1.mp3")
	require.True(t, ok)
	assert.Equal(t, 1, ep.SequentialID)

	_, ok = m.ByFileKey("missing")
	assert.False(t, ok)
}

func TestMaxSequentialID(t *testing.T) {
	assert.Equal(t, 0, (&Manifest{}).MaxSequentialID())

	// IDs survive out-of-order storage and gaps from removed upstream items.
	m := &Manifest{Episodes: []Episode{
		{SequentialID: 4}, {SequentialID: 9}, {SequentialID: 2},
	}}
	assert.Equal(t, 9, m.MaxSequentialID())
}

func TestIDsPreservedAcrossRewrite(t *testing.T) {
	ctx := context.Background()
	store := mock.New()

	m := &Manifest{Episodes: []Episode{
		{SequentialID: 1, FileKey: "a"},
		{SequentialID: 2, FileKey: "b"},
	}}
	require.NoError(t, Save(ctx, store, m))

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	loaded.Episodes = append(loaded.Episodes, Episode{SequentialID: loaded.MaxSequentialID() + 1, FileKey: "c"})
	require.NoError(t, Save(ctx, store, loaded))

	final, err := Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, final.Episodes, 3)
	assert.Equal(t, 1, final.Episodes[0].SequentialID)
	assert.Equal(t, 2, final.Episodes[1].SequentialID)
	assert.Equal(t, 3, final.Episodes[2].SequentialID)
}

func TestPublishedByFileKey(t *testing.T) {
	m := &Manifest{Episodes: []Episode{
		{SequentialID: 1, FileKey: "a", PublishedAtUnixMs: 100},
		{SequentialID: 2, FileKey: "b", PublishedAtUnixMs: 200},
	}}
	byKey := m.PublishedByFileKey()
	require.Len(t, byKey, 2)
	assert.Equal(t, int64(200), byKey["b"].PublishedAtUnixMs)
	assert.Equal(t, 2, byKey["b"].SequentialID)
}
