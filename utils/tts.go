package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

// SpeechSynthesizer turns feedback text into audio through an external TTS
// endpoint. The gateway ships the returned bytes to the client; playback
// and its start/end events stay on the client side.
type SpeechSynthesizer struct {
	Endpoint string
	APIKey   string
	Language string
	Client   *http.Client
}

// NewSpeechSynthesizer builds a synthesizer from configuration.
func NewSpeechSynthesizer(cfg *models.Config) *SpeechSynthesizer {
	return &SpeechSynthesizer{
		Endpoint: cfg.TTSEndpoint,
		APIKey:   cfg.TTSAPIKey,
		Language: cfg.Language,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type ttsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Synthesize returns encoded audio for text.
func (s *SpeechSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(ttsRequest{Text: text, Language: s.Language})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.Endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS endpoint returned status %d: %s", resp.StatusCode, string(audio))
	}
	return audio, nil
}
