package voice

import "encoding/json"

// One duplex websocket per session carries interleaved audio and small
// control frames. Anything outside this envelope is a protocol violation
// and terminates the offending connection only.

type inboundFrame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

const (
	frameHandshake = "handshake"
	frameAudio     = "audio"
	frameText      = "text"
	frameBye       = "bye"
)

// handshakeFrame carries the client token exactly once per connection.
type handshakeFrame struct {
	Token string `json:"token"`
}

// audioFrame carries one chunk of recorded audio; the turn is processed
// when isFinal arrives.
type audioFrame struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	IsFinal   bool   `json:"isFinal"`
}

// textFrame carries an already-recognized utterance, bypassing STT.
type textFrame struct {
	Text string `json:"text"`
}

type outgoingFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
}

type replyPayload struct {
	Text      string `json:"text"`
	State     string `json:"state"`
	EventID   string `json:"eventId,omitempty"`
	AudioData []byte `json:"audioData,omitempty"`
	Format    string `json:"format,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}
