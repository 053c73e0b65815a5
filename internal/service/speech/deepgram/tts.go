package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/voicecal/backend/internal/service/speech"
)

const defaultSpeakURL = "https://api.deepgram.com/v1/speak"

// TTSClient synthesizes one reply per call through the Deepgram speak REST
// endpoint.
type TTSClient struct {
	apiKey     string
	voice      string
	speakURL   string
	httpClient *http.Client
}

// NewTTSClient builds a synthesis client. baseURL overrides the Deepgram
// endpoint, which tests use.
func NewTTSClient(apiKey, voice, baseURL string, timeout time.Duration) *TTSClient {
	if voice == "" {
		voice = "aura-2-thalia-en"
	}
	if baseURL == "" {
		baseURL = defaultSpeakURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TTSClient{
		apiKey:     apiKey,
		voice:      voice,
		speakURL:   baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Format names the audio container Deepgram returns by default.
func (c *TTSClient) Format() string { return "mp3" }

// Synthesize converts text into audio bytes.
func (c *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &speech.SynthesisError{Cause: fmt.Errorf("empty text")}
	}

	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, &speech.SynthesisError{Cause: err}
	}
	query := speakURL.Query()
	query.Set("model", c.voice)
	speakURL.RawQuery = query.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, &speech.SynthesisError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, speakURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &speech.SynthesisError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &speech.SynthesisError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, &speech.SynthesisError{Cause: fmt.Errorf("deepgram status %d: %s", resp.StatusCode, excerpt)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &speech.SynthesisError{Cause: err}
	}
	if len(audio) == 0 {
		return nil, &speech.SynthesisError{Cause: fmt.Errorf("empty audio result")}
	}
	return audio, nil
}
