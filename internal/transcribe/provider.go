// Package transcribe turns downloaded audio into SRT transcripts: it probes
// and splits oversized files, dispatches chunks to the configured
// speech-to-text provider, stitches the cues back together and applies
// per-site spelling corrections.
package transcribe

import (
	"context"
	"fmt"
	"time"

	"podsearch/internal/config"
	"podsearch/internal/srt"
)

// Limits describe a provider's per-call ceiling. Files exceeding either bound
// are split before dispatch.
type Limits struct {
	MaxBytes    int64
	MaxDuration time.Duration
}

// Provider is the capability set every speech-to-text backend implements.
type Provider interface {
	Name() string
	TranscribeChunk(ctx context.Context, audioPath string) ([]srt.Cue, error)
	HealthCheck(ctx context.Context) error
	Limits() Limits
}

// FromConfig selects the provider variant from TRANSCRIPTION_PROVIDER.
func FromConfig() (Provider, error) {
	switch config.TranscriptionProvider {
	case "openai":
		if config.TranscriptionAPIKey == "" {
			return nil, fmt.Errorf("TRANSCRIPTION_API_KEY is required for the openai provider")
		}
		return NewOpenAIProvider(config.TranscriptionAPIKey), nil
	case "deepgram":
		if config.TranscriptionAPIKey == "" {
			return nil, fmt.Errorf("TRANSCRIPTION_API_KEY is required for the deepgram provider")
		}
		return NewDeepgramProvider(config.TranscriptionAPIKey), nil
	case "local":
		if config.TranscodeModel == "" {
			return nil, fmt.Errorf("TRANSCODE_MODEL is required for the local provider")
		}
		return NewWhisperCppProvider(config.TranscodeToolPath, config.TranscodeModel), nil
	default:
		return nil, fmt.Errorf("unsupported TRANSCRIPTION_PROVIDER: %q", config.TranscriptionProvider)
	}
}
