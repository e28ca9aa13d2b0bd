package transcribe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podsearch/internal/corrections"
	"podsearch/internal/storage/mock"
)

func TestTranscriptKeyForAudio(t *testing.T) {
	tests := []struct {
		audioKey string
		want     string
		ok       bool
	}{
		{"audio/main/2020-01-06_The-Opener.mp3", "transcripts/main/2020-01-06_The-Opener.srt", true},
		{"audio/feedB/ep.mp3", "transcripts/feedB/ep.srt", true},
		{"transcripts/main/ep.srt", "", false},
		{"audio/main/notes.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := transcriptKeyForAudio(tt.audioKey)
		assert.Equal(t, tt.ok, ok, tt.audioKey)
		assert.Equal(t, tt.want, got, tt.audioKey)
	}
}

func TestTranscriptKey(t *testing.T) {
	assert.Equal(t, "transcripts/main/2020-01-06_The-Opener.srt",
		TranscriptKey("main", "2020-01-06_The-Opener"))
}

const storedTranscript = `1
00:00:00,000 --> 00:00:02,000
Talking to Chris Eccleshead today.

2
00:00:02,500 --> 00:00:04,000
Welcome back.

`

func reapplyTable(t *testing.T) *corrections.Table {
	t.Helper()
	table, err := corrections.Compile([]corrections.Rule{
		{Misspellings: []string{"Eccleshead"}, CorrectedSpelling: "Eccleshare"},
	})
	require.NoError(t, err)
	return table
}

func TestReapplyCorrections(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	require.NoError(t, store.Put(ctx, "transcripts/main/ep1.srt", []byte(storedTranscript), "application/x-subrip"))

	proc := NewProcessor(store, nil, reapplyTable(t))
	report, err := proc.ReapplyCorrections(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total())

	data, err := store.Get(ctx, "transcripts/main/ep1.srt")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Eccleshare")
	assert.NotContains(t, string(data), "Eccleshead")
}

func TestReapplyCorrectionsSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	store := mock.New()
	clean := "1\n00:00:00,000 --> 00:00:01,000\nNothing to fix here.\n\n"
	require.NoError(t, store.Put(ctx, "transcripts/main/ep1.srt", []byte(clean), "application/x-subrip"))

	proc := NewProcessor(store, nil, reapplyTable(t))
	store.ResetCounters()

	report, err := proc.ReapplyCorrections(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
	// No substitutions means no rewrites.
	assert.Equal(t, 0, store.Writes())
}
