package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"podsearch/internal/srt"
)

const deepgramBaseURL = "https://api.deepgram.com/v1"

// DeepgramProvider transcribes chunks through Deepgram's pre-recorded API.
// Utterance segmentation maps one-to-one onto SRT cues.
type DeepgramProvider struct {
	apiKey string
	client *http.Client
}

// NewDeepgramProvider creates the provider with an API key.
func NewDeepgramProvider(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Minute},
	}
}

func (p *DeepgramProvider) Name() string { return "deepgram" }

func (p *DeepgramProvider) Limits() Limits {
	return Limits{MaxBytes: 2 * 1024 * 1024 * 1024, MaxDuration: 4 * time.Hour}
}

type deepgramResponse struct {
	Results struct {
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

func (p *DeepgramProvider) TranscribeChunk(ctx context.Context, audioPath string) ([]srt.Cue, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", audioPath, err)
	}
	defer file.Close()

	url := deepgramBaseURL + "/listen?model=nova-2&smart_format=true&utterances=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/mpeg")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("deepgram returned HTTP %d: %s", resp.StatusCode, body)
	}

	var parsed deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode deepgram response: %w", err)
	}

	cues := make([]srt.Cue, 0, len(parsed.Results.Utterances))
	for i, u := range parsed.Results.Utterances {
		cues = append(cues, srt.Cue{
			Index: i + 1,
			Start: time.Duration(u.Start * float64(time.Second)),
			End:   time.Duration(u.End * float64(time.Second)),
			Text:  u.Transcript,
		})
	}
	return cues, nil
}

func (p *DeepgramProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, deepgramBaseURL+"/projects", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("deepgram health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deepgram health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}
