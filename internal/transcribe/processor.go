package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"podsearch/internal/corrections"
	"podsearch/internal/srt"
	"podsearch/internal/storage"
)

// ChunkOverlap is carried between adjacent chunks so cues cut at a boundary
// are captured whole by at least one chunk.
const ChunkOverlap = 30 * time.Second

// Result tells the orchestrator what this stage produced.
type Result struct {
	HasNewSRT   bool
	NewKeys     []string // transcript keys written this run
	Skipped     int
	Failed      int
	Corrections corrections.Report
}

// Processor runs the audio-to-transcript stage for one site.
type Processor struct {
	store    storage.Storage
	provider Provider
	table    *corrections.Table

	// Force retranscribes even when the target SRT already exists.
	Force bool
}

// NewProcessor wires the stage. The corrections table may be empty but not nil.
func NewProcessor(store storage.Storage, provider Provider, table *corrections.Table) *Processor {
	return &Processor{store: store, provider: provider, table: table}
}

// TranscriptKey is the store location of an episode's transcript.
func TranscriptKey(feedID, fileKey string) string {
	return "transcripts/" + feedID + "/" + fileKey + ".srt"
}

// transcriptKeyForAudio maps audio/{feedId}/{fileKey}.mp3 to its SRT key.
func transcriptKeyForAudio(audioKey string) (string, bool) {
	rest, ok := strings.CutPrefix(audioKey, "audio/")
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, ".mp3")
	if !ok {
		return "", false
	}
	return "transcripts/" + rest + ".srt", true
}

// Run produces one SRT per audio key. Already-transcribed episodes are
// skipped unless Force is set; per-episode failures are reported, not fatal.
func (p *Processor) Run(ctx context.Context, audioKeys []string) (*Result, error) {
	if err := CheckToolchain(); err != nil {
		return nil, err
	}

	result := &Result{Corrections: make(corrections.Report)}
	for _, audioKey := range audioKeys {
		srtKey, ok := transcriptKeyForAudio(audioKey)
		if !ok {
			slog.Warn("Unrecognized audio key shape, skipping", "key", audioKey)
			result.Failed++
			continue
		}

		if !p.Force {
			if size, err := p.store.Size(ctx, srtKey); err == nil && size > 0 {
				result.Skipped++
				continue
			}
		}

		report, err := p.transcribeOne(ctx, audioKey, srtKey)
		if err != nil {
			slog.Error("Transcription failed, skipping episode", "key", audioKey, "error", err)
			result.Failed++
			continue
		}
		result.HasNewSRT = true
		result.NewKeys = append(result.NewKeys, srtKey)
		result.Corrections.Merge(report)
		slog.Info("Transcript written", "key", srtKey, "corrections", report.Total())
	}
	return result, nil
}

// transcribeOne downloads one audio file, splits it if it exceeds the
// provider's per-call limits, transcribes the chunks and writes the stitched,
// corrected SRT. Temporary files are removed on every exit path.
func (p *Processor) transcribeOne(ctx context.Context, audioKey, srtKey string) (corrections.Report, error) {
	workDir, err := os.MkdirTemp("", "podsearch_transcribe_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	localAudio := workDir + "/input.mp3"
	if err := p.store.Download(ctx, audioKey, localAudio); err != nil {
		return nil, fmt.Errorf("failed to fetch audio %s: %w", audioKey, err)
	}

	duration, err := ProbeDuration(ctx, localAudio)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(localAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio: %w", err)
	}

	chunks, err := p.planChunks(ctx, localAudio, workDir, duration, info.Size())
	if err != nil {
		return nil, err
	}

	var all []cueGroup
	for i, chunk := range chunks {
		cues, err := p.transcribeChunkWithRetry(ctx, chunk.Path)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		all = append(all, cueGroup{offset: chunk.Offset, cues: cues})
	}

	stitched := stitchCues(all, ChunkOverlap)

	report := make(corrections.Report)
	for i := range stitched {
		corrected, r := p.table.Apply(stitched[i].Text)
		stitched[i].Text = corrected
		report.Merge(r)
	}

	doc := srt.Format(stitched)
	if err := p.store.Put(ctx, srtKey, []byte(doc), "application/x-subrip"); err != nil {
		return nil, err
	}
	return report, nil
}

// planChunks decides whether the file fits one provider call; if not, it is
// split with ChunkOverlap at the boundaries.
func (p *Processor) planChunks(ctx context.Context, localAudio, workDir string, duration time.Duration, size int64) ([]Chunk, error) {
	limits := p.provider.Limits()
	if size <= limits.MaxBytes && duration <= limits.MaxDuration {
		return []Chunk{{Path: localAudio, Offset: 0}}, nil
	}

	chunkDur := limits.MaxDuration
	if size > limits.MaxBytes && duration > 0 {
		// Scale down so each chunk stays safely under the byte ceiling.
		byDur := time.Duration(float64(duration) * float64(limits.MaxBytes) / float64(size) * 0.9)
		if byDur < chunkDur {
			chunkDur = byDur
		}
	}
	if chunkDur <= ChunkOverlap {
		chunkDur = 2 * ChunkOverlap
	}

	slog.Info("Splitting oversized audio",
		"duration", duration.Round(time.Second), "sizeBytes", size,
		"chunkDuration", chunkDur.Round(time.Second), "provider", p.provider.Name())
	return splitAudio(ctx, localAudio, duration, chunkDur, ChunkOverlap, workDir)
}

// transcribeChunkWithRetry retries a provider call twice before giving up;
// the caller then skips the episode.
func (p *Processor) transcribeChunkWithRetry(ctx context.Context, path string) ([]srt.Cue, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 5 * time.Second):
			}
		}
		cues, err := p.provider.TranscribeChunk(ctx, path)
		if err == nil {
			return cues, nil
		}
		lastErr = err
		slog.Warn("Provider call failed", "provider", p.provider.Name(), "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("provider %s exhausted retries: %w", p.provider.Name(), lastErr)
}

// ReapplyCorrections re-runs the current correction tables over every
// existing transcript, rewriting only the ones that change. Transcription is
// never repeated; this exists so updated tables can reach old episodes.
func (p *Processor) ReapplyCorrections(ctx context.Context) (corrections.Report, error) {
	keys, err := p.store.List(ctx, "transcripts/")
	if err != nil {
		return nil, err
	}

	report := make(corrections.Report)
	for _, key := range keys {
		if !strings.HasSuffix(key, ".srt") {
			continue
		}
		data, err := p.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		corrected, r := p.table.Apply(string(data))
		if r.Total() == 0 {
			continue
		}
		if err := p.store.Put(ctx, key, []byte(corrected), "application/x-subrip"); err != nil {
			return nil, err
		}
		report.Merge(r)
		slog.Info("Corrections reapplied", "key", key, "substitutions", r.Total())
	}
	return report, nil
}
