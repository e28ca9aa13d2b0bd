package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"podsearch/internal/srt"
)

// WhisperCppProvider runs a local whisper.cpp style CLI. The binary and model
// come from TRANSCODE_TOOL_PATH and TRANSCODE_MODEL.
type WhisperCppProvider struct {
	toolPath string
	model    string
}

// NewWhisperCppProvider creates the local provider.
func NewWhisperCppProvider(toolPath, model string) *WhisperCppProvider {
	return &WhisperCppProvider{toolPath: toolPath, model: model}
}

func (p *WhisperCppProvider) Name() string { return "local" }

func (p *WhisperCppProvider) Limits() Limits {
	// Local inference slows down on very long inputs; keep chunks modest.
	return Limits{MaxBytes: 1 * 1024 * 1024 * 1024, MaxDuration: time.Hour}
}

// TranscribeChunk converts the chunk to 16 kHz mono WAV (whisper.cpp's input
// format) and invokes the CLI with SRT output.
func (p *WhisperCppProvider) TranscribeChunk(ctx context.Context, audioPath string) ([]srt.Cue, error) {
	workDir, err := os.MkdirTemp("", "podsearch_whisper_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	wavPath := filepath.Join(workDir, "chunk.wav")
	ffmpeg, err := resolveBinary("ffmpeg")
	if err != nil {
		return nil, err
	}
	convert := exec.CommandContext(ctx, ffmpeg,
		"-i", audioPath, "-ar", "16000", "-ac", "1", "-y", wavPath)
	if output, err := convert.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg wav conversion failed: %w, output: %s", err, output)
	}

	outPrefix := filepath.Join(workDir, "chunk")
	run := exec.CommandContext(ctx, p.toolPath,
		"-m", p.model, "-f", wavPath, "-osrt", "-of", outPrefix)
	if output, err := run.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed: %w, output: %s", p.toolPath, err, output)
	}

	data, err := os.ReadFile(outPrefix + ".srt")
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}
	cues, err := srt.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("whisper produced malformed SRT: %w", err)
	}
	return cues, nil
}

// HealthCheck verifies the binary is runnable and the model file exists.
func (p *WhisperCppProvider) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(p.model); err != nil {
		return fmt.Errorf("transcription model not found at %s: %w", p.model, err)
	}
	cmd := exec.CommandContext(ctx, p.toolPath, "--help")
	if output, err := cmd.CombinedOutput(); err != nil {
		if !strings.Contains(string(output), "usage") {
			return fmt.Errorf("transcription tool %s not runnable: %w", p.toolPath, err)
		}
	}
	return nil
}
