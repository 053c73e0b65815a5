package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voicecal/backend/internal/dialog"
	"github.com/zhouzirui/voicecal/backend/internal/service/session"
	"github.com/zhouzirui/voicecal/backend/internal/service/speech"
)

// Handler is the transport-facing gateway: it owns the websocket, feeds
// recognized turns into the session manager in arrival order, and frames
// synthesized replies back on the same connection. Different connections
// are fully concurrent; within one connection a reply is always delivered
// before the next frame is read.
type Handler struct {
	sessions    *session.Manager
	recognizer  speech.Recognizer
	synthesizer speech.Synthesizer
	idleTimeout time.Duration
	upgrader    websocket.Upgrader
}

// New builds the gateway. recognizer and synthesizer may be nil, in which
// case the connection runs text-only.
func New(sessions *session.Manager, recognizer speech.Recognizer, synthesizer speech.Synthesizer, idleTimeout time.Duration) *Handler {
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}
	return &Handler{
		sessions:    sessions,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		idleTimeout: idleTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the duplex streaming endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws", h.handleWebSocket)
}

type connState struct {
	sessionID   string
	audioBuffer bytes.Buffer
	audioFormat string
}

// gatewayConn serializes writes to the underlying connection. The read loop
// and the ping goroutine both write; the websocket allows only one writer at
// a time.
type gatewayConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (c *gatewayConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *gatewayConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[voice] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionID := h.sessions.Open(ctx)
	defer h.sessions.Close(sessionID)

	state := &connState{sessionID: sessionID}
	log.Printf("[voice] connection open session=%s", sessionID)

	gc := &gatewayConn{conn: conn}

	conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		return nil
	})
	go h.pingLoop(ctx, gc)

	h.send(gc, sessionID, "session", sessionPayload{
		SessionID: sessionID,
		State:     string(dialog.StateAwaitIdentity),
	})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[voice] read error session=%s: %v", sessionID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.idleTimeout))

		if !h.handleFrame(ctx, gc, state, &frame) {
			return
		}
	}
}

// handleFrame processes one inbound frame; false means the connection must
// be torn down.
func (h *Handler) handleFrame(ctx context.Context, conn *gatewayConn, state *connState, frame *inboundFrame) bool {
	switch frame.Type {
	case frameHandshake:
		return h.handleHandshake(ctx, conn, state, frame.Data)
	case frameAudio:
		return h.handleAudio(ctx, conn, state, frame.Data)
	case frameText:
		return h.handleText(ctx, conn, state, frame.Data)
	case frameBye:
		log.Printf("[voice] client said bye session=%s", state.sessionID)
		return false
	default:
		h.violation(conn, state.sessionID, "unsupported frame type: "+frame.Type)
		return false
	}
}

func (h *Handler) handleHandshake(ctx context.Context, conn *gatewayConn, state *connState, raw json.RawMessage) bool {
	var hs handshakeFrame
	if err := json.Unmarshal(raw, &hs); err != nil {
		h.violation(conn, state.sessionID, "invalid handshake payload")
		return false
	}

	replies, err := h.sessions.Handshake(ctx, state.sessionID, hs.Token)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyVerified) {
			h.violation(conn, state.sessionID, "handshake already attempted")
			return false
		}
		h.sendError(conn, state.sessionID, "handshake failed")
		return false
	}

	for _, reply := range replies {
		h.speak(ctx, conn, state.sessionID, reply)
	}
	return true
}

func (h *Handler) handleAudio(ctx context.Context, conn *gatewayConn, state *connState, raw json.RawMessage) bool {
	var audio audioFrame
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.violation(conn, state.sessionID, "invalid audio payload")
		return false
	}

	if len(audio.AudioData) > 0 {
		state.audioBuffer.Write(audio.AudioData)
	}
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if !audio.IsFinal {
		return true
	}

	audioBytes := make([]byte, state.audioBuffer.Len())
	copy(audioBytes, state.audioBuffer.Bytes())
	state.audioBuffer.Reset()

	text := ""
	if h.recognizer != nil && len(audioBytes) > 0 {
		recognized, err := h.recognizer.Recognize(ctx, audioBytes)
		if err != nil {
			// A recognition failure is one uninterpretable turn, not a
			// session error: the machine re-prompts.
			log.Printf("[voice] recognition failed session=%s: %v", state.sessionID, err)
		} else {
			text = recognized
		}
	}

	return h.processUtterance(ctx, conn, state.sessionID, text)
}

func (h *Handler) handleText(ctx context.Context, conn *gatewayConn, state *connState, raw json.RawMessage) bool {
	var txt textFrame
	if err := json.Unmarshal(raw, &txt); err != nil {
		h.violation(conn, state.sessionID, "invalid text payload")
		return false
	}
	return h.processUtterance(ctx, conn, state.sessionID, txt.Text)
}

func (h *Handler) processUtterance(ctx context.Context, conn *gatewayConn, sessionID, text string) bool {
	reply, err := h.sessions.HandleUtterance(ctx, sessionID, text)
	if err != nil {
		h.sendError(conn, sessionID, "session unavailable")
		return false
	}
	h.speak(ctx, conn, sessionID, reply)
	return true
}

// speak frames one reply back, with audio when synthesis is available and
// degrading to text-only when it fails.
func (h *Handler) speak(ctx context.Context, conn *gatewayConn, sessionID string, reply session.Reply) {
	payload := replyPayload{
		Text:    reply.Text,
		State:   string(reply.State),
		EventID: reply.EventID,
	}

	if h.synthesizer != nil && reply.Text != "" {
		audio, err := h.synthesizer.Synthesize(ctx, reply.Text)
		if err != nil {
			log.Printf("[voice] synthesis failed session=%s: %v", sessionID, err)
		} else {
			payload.AudioData = audio
			payload.Format = h.synthesizer.Format()
		}
	}

	h.send(conn, sessionID, "reply", payload)
}

func (h *Handler) violation(conn *gatewayConn, sessionID, message string) {
	log.Printf("[voice] protocol violation session=%s: %s", sessionID, message)
	h.sendError(conn, sessionID, message)
}

func (h *Handler) sendError(conn *gatewayConn, sessionID, message string) {
	h.send(conn, sessionID, "error", errorPayload{Message: message})
}

func (h *Handler) send(conn *gatewayConn, sessionID, frameType string, data any) {
	frame := outgoingFrame{
		Type:      frameType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(frame); err != nil {
		log.Printf("[voice] write failed session=%s: %v", sessionID, err)
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *gatewayConn) {
	interval := h.idleTimeout * 9 / 10
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
