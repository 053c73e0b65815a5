// Package deepgram implements the speech collaborators against the Deepgram
// API: streaming websocket transcription and REST synthesis.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voicecal/backend/internal/service/speech"
)

const (
	defaultListenURL = "wss://api.deepgram.com/v1/listen"
	writeChunkSize   = 8 * 1024
	recognizeWindow  = 30 * time.Second
)

// STTClient transcribes one buffered audio turn per call by streaming it
// over a short-lived websocket and collecting the final transcript.
type STTClient struct {
	apiKey    string
	model     string
	language  string
	listenURL string
	dialer    *websocket.Dialer
}

// NewSTTClient builds a transcription client. baseURL overrides the Deepgram
// endpoint, which tests use.
func NewSTTClient(apiKey, model, language, baseURL string) *STTClient {
	if model == "" {
		model = "nova-3"
	}
	if language == "" {
		language = "en-US"
	}
	if baseURL == "" {
		baseURL = defaultListenURL
	}
	return &STTClient{
		apiKey:    apiKey,
		model:     model,
		language:  language,
		listenURL: baseURL,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Recognize streams the audio, closes the stream, and accumulates the final
// transcript segments. The audio may be containerized (wav/webm); Deepgram
// sniffs the container when no encoding is pinned.
func (c *STTClient) Recognize(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", &speech.RecognitionError{Cause: fmt.Errorf("empty audio input")}
	}

	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return "", &speech.RecognitionError{Cause: err}
	}
	query := listenURL.Query()
	query.Set("model", c.model)
	query.Set("language", c.language)
	query.Set("smart_format", "true")
	listenURL.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return "", &speech.RecognitionError{Cause: fmt.Errorf("dial deepgram: %w", err)}
	}
	defer conn.Close()

	deadline := time.Now().Add(recognizeWindow)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	for off := 0; off < len(audio); off += writeChunkSize {
		end := min(off+writeChunkSize, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[off:end]); err != nil {
			return "", &speech.RecognitionError{Cause: fmt.Errorf("send audio: %w", err)}
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return "", &speech.RecognitionError{Cause: fmt.Errorf("close stream: %w", err)}
	}

	transcript, err := c.collectTranscript(conn)
	if err != nil {
		return "", err
	}
	if transcript == "" {
		return "", &speech.RecognitionError{Cause: fmt.Errorf("empty transcription result")}
	}
	return transcript, nil
}

func (c *STTClient) collectTranscript(conn *websocket.Conn) (string, error) {
	var parts []string

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			if len(parts) > 0 {
				// The transcript arrived before the connection dropped.
				break
			}
			return "", &speech.RecognitionError{Cause: fmt.Errorf("read deepgram message: %w", err)}
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			continue
		}

		switch api.TypeResponse(envelope.Type) {
		case api.TypeMessageResponse:
			var result api.MessageResponse
			if err := json.Unmarshal(msg, &result); err != nil {
				continue
			}
			if !result.IsFinal || len(result.Channel.Alternatives) == 0 {
				continue
			}
			if text := strings.TrimSpace(result.Channel.Alternatives[0].Transcript); text != "" {
				parts = append(parts, text)
			}
		default:
			// Metadata arrives after the stream closes; nothing more to read.
			if envelope.Type == "Metadata" {
				return strings.Join(parts, " "), nil
			}
		}
	}

	return strings.Join(parts, " "), nil
}
