package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// managedRuntimePath is where the audio binaries live in managed runtimes
// (layers mount them outside the system path).
const managedRuntimePath = "/opt/bin"

// resolveBinary finds an audio tool, preferring the managed runtime location.
func resolveBinary(name string) (string, error) {
	managed := filepath.Join(managedRuntimePath, name)
	if info, err := os.Stat(managed); err == nil && !info.IsDir() {
		return managed, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in %s or PATH; install ffmpeg to enable audio processing: %w",
			name, managedRuntimePath, err)
	}
	return path, nil
}

// CheckToolchain verifies ffmpeg and ffprobe are available before any
// processing starts.
func CheckToolchain() error {
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := resolveBinary(tool); err != nil {
			return err
		}
	}
	return nil
}

// ProbeDuration asks ffprobe for a file's duration.
func ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	ffprobe, err := resolveBinary("ffprobe")
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q: %w", output, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Chunk is one slice of a split audio file. Offset is its absolute position
// in the original recording, used to re-base cue timestamps.
type Chunk struct {
	Path   string
	Offset time.Duration
}

// splitAudio cuts an audio file into chunks of chunkDur with `overlap`
// carried into the start of each subsequent chunk. Chunks are codec-copied,
// no re-encode. Callers own cleanup of the returned directory's files.
func splitAudio(ctx context.Context, inputPath string, total, chunkDur, overlap time.Duration, workDir string) ([]Chunk, error) {
	ffmpeg, err := resolveBinary("ffmpeg")
	if err != nil {
		return nil, err
	}
	if chunkDur <= overlap {
		return nil, fmt.Errorf("chunk duration %s must exceed overlap %s", chunkDur, overlap)
	}

	var chunks []Chunk
	step := chunkDur - overlap
	for i, offset := 0, time.Duration(0); offset < total; i, offset = i+1, offset+step {
		chunkPath := filepath.Join(workDir, fmt.Sprintf("chunk_%03d.mp3", i))
		cmd := exec.CommandContext(ctx, ffmpeg,
			"-ss", formatSeconds(offset),
			"-t", formatSeconds(chunkDur),
			"-i", inputPath,
			"-c", "copy",
			"-y", chunkPath)
		if output, err := cmd.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("ffmpeg split failed at offset %s: %w, output: %s", offset, err, output)
		}
		chunks = append(chunks, Chunk{Path: chunkPath, Offset: offset})
	}
	return chunks, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
