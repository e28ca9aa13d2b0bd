package searchindex

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	idx := buildTestIndex()

	var buf bytes.Buffer
	require.NoError(t, idx.WriteTo(&buf))

	restored, err := Read(&buf)
	require.NoError(t, err)

	require.Equal(t, idx.Len(), restored.Len())
	for i := int32(0); i < int32(idx.Len()); i++ {
		assert.Equal(t, idx.Entry(i), restored.Entry(i))
	}

	// Query behavior survives the round trip.
	before := idx.Search("marathon", []string{"1"})
	after := restored.Search("marathon", []string{"1"})
	require.Len(t, after, len(before))
}

func TestSerializeDeterministic(t *testing.T) {
	idx := buildTestIndex()

	var a, b bytes.Buffer
	require.NoError(t, idx.WriteTo(&a))
	require.NoError(t, idx.WriteTo(&b))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestSerializeEmptyIndex(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().WriteTo(&buf))

	restored, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, restored.Len())
	assert.Empty(t, restored.Search("anything", nil))
}

func TestSerializeLargeIndex(t *testing.T) {
	idx := New()
	for ep := 1; ep <= 20; ep++ {
		for cue := 1; cue <= 200; cue++ {
			idx.Insert(Entry{
				ID:                            fmt.Sprintf("%d:%d", ep, cue),
				Text:                          fmt.Sprintf("segment %d of episode %d with filler words", cue, ep),
				SequentialEpisodeIDAsString:   fmt.Sprintf("%d", ep),
				StartTimeMs:                   int64(cue * 1000),
				EndTimeMs:                     int64(cue*1000 + 900),
				EpisodePublishedUnixTimestamp: int64(ep * 1000),
			})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, idx.WriteTo(&buf))

	restored, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4000, restored.Len())
	assert.Len(t, restored.Search("", []string{"7"}), 200)
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not gzip at all")))
	assert.Error(t, err)
}

func TestSaveLoadFile(t *testing.T) {
	idx := buildTestIndex()
	path := filepath.Join(t.TempDir(), "index.msp")

	require.NoError(t, idx.SaveFile(path))

	restored, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), restored.Len())
}
