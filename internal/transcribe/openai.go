package transcribe

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"podsearch/internal/srt"
)

// OpenAIProvider transcribes chunks through the hosted Whisper API, asking
// for SRT output directly.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates the provider with an API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Limits reflects the documented 25 MB per-request cap.
func (p *OpenAIProvider) Limits() Limits {
	return Limits{MaxBytes: 25 * 1024 * 1024, MaxDuration: 2 * time.Hour}
}

func (p *OpenAIProvider) TranscribeChunk(ctx context.Context, audioPath string) ([]srt.Cue, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatSRT,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription failed: %w", err)
	}

	cues, err := srt.ParseString(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("openai returned malformed SRT: %w", err)
	}
	return cues, nil
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai health check failed: %w", err)
	}
	return nil
}
