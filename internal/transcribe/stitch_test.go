package transcribe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podsearch/internal/srt"
)

func TestStitchSingleChunk(t *testing.T) {
	groups := []cueGroup{{
		offset: 0,
		cues: []srt.Cue{
			{Index: 1, Start: 0, End: 2 * time.Second, Text: "a"},
			{Index: 2, Start: 3 * time.Second, End: 5 * time.Second, Text: "b"},
		},
	}}

	out := stitchCues(groups, 30*time.Second)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Index)
	assert.Equal(t, 2, out[1].Index)
	assert.Equal(t, 3*time.Second, out[1].Start)
}

func TestStitchRebasesOffsets(t *testing.T) {
	groups := []cueGroup{
		{offset: 0, cues: []srt.Cue{{Start: 0, End: 2 * time.Second, Text: "first chunk"}}},
		{offset: 10 * time.Minute, cues: []srt.Cue{{Start: time.Minute, End: time.Minute + 2*time.Second, Text: "second chunk"}}},
	}

	out := stitchCues(groups, 30*time.Second)
	require.Len(t, out, 2)
	assert.Equal(t, 11*time.Minute, out[1].Start)
	assert.Equal(t, "second chunk", out[1].Text)
}

func TestStitchDropsOverlapDuplicates(t *testing.T) {
	// The second chunk starts at 10:00 and re-hears the 30s of overlap; its
	// cues inside that window duplicate the first chunk's and are dropped.
	groups := []cueGroup{
		{offset: 0, cues: []srt.Cue{
			{Start: 10*time.Minute + 10*time.Second, End: 10*time.Minute + 12*time.Second, Text: "boundary cue"},
		}},
		{offset: 10 * time.Minute, cues: []srt.Cue{
			{Start: 10 * time.Second, End: 12 * time.Second, Text: "boundary cue heard again"},
			{Start: 45 * time.Second, End: 47 * time.Second, Text: "new material"},
		}},
	}

	out := stitchCues(groups, 30*time.Second)
	require.Len(t, out, 2)
	assert.Equal(t, "boundary cue", out[0].Text)
	assert.Equal(t, "new material", out[1].Text)
	assert.Equal(t, 10*time.Minute+45*time.Second, out[1].Start)
}

func TestStitchSortsGroupsByOffset(t *testing.T) {
	groups := []cueGroup{
		{offset: 10 * time.Minute, cues: []srt.Cue{{Start: time.Minute, End: time.Minute + time.Second, Text: "late"}}},
		{offset: 0, cues: []srt.Cue{{Start: 0, End: time.Second, Text: "early"}}},
	}

	out := stitchCues(groups, 30*time.Second)
	require.Len(t, out, 2)
	assert.Equal(t, "early", out[0].Text)
	assert.Equal(t, "late", out[1].Text)
	// Renumbering is sequential from 1 regardless of input indices.
	assert.Equal(t, []int{1, 2}, []int{out[0].Index, out[1].Index})
}
