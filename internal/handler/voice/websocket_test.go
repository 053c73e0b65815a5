package voice_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voicecal/backend/internal/handler/voice"
	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
	"github.com/zhouzirui/voicecal/backend/internal/normalize"
	"github.com/zhouzirui/voicecal/backend/internal/service/identity"
	"github.com/zhouzirui/voicecal/backend/internal/service/session"
	"github.com/zhouzirui/voicecal/backend/internal/service/speech"
)

type fakeInterpreter struct{}

func (fakeInterpreter) Interpret(_ context.Context, text string, _ time.Time) normalize.Result {
	switch text {
	case "book lunch":
		title := "lunch"
		return normalize.Result{
			Intent: schedule.IntentProvideInfo,
			Update: schedule.SlotUpdate{
				Title: &title,
				Date:  &schedule.Date{Year: 2026, Month: time.March, Day: 5},
				Time:  &schedule.TimeOfDay{Hour: 12},
			},
		}
	case "yes":
		return normalize.Result{Intent: schedule.IntentConfirm}
	default:
		return normalize.Result{Intent: schedule.IntentUnknown}
	}
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (identity.Identity, string, error) {
	return identity.Identity{Subject: "user-1", DisplayName: "Alice"}, "cred", nil
}

type fakeCalendar struct{}

func (fakeCalendar) CreateEvent(_ context.Context, _ string, _ schedule.EventRequest) (string, error) {
	return "evt-1", nil
}

type fakeSynthesizer struct {
	fail bool
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	if f.fail {
		return nil, &speech.SynthesisError{Cause: fmt.Errorf("voice backend down")}
	}
	return []byte("audio:" + text), nil
}

func (f *fakeSynthesizer) Format() string { return "mp3" }

type wsFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

func dialGateway(t *testing.T, synthesizer speech.Synthesizer) (*websocket.Conn, func()) {
	t.Helper()

	sessions := session.NewManager(fakeInterpreter{}, fakeVerifier{}, fakeCalendar{}, session.Config{Location: time.UTC})
	handler := voice.New(sessions, nil, synthesizer, 5*time.Second)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	srv := httptest.NewServer(r)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": frameType, "data": json.RawMessage(raw)}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestGatewayConversation(t *testing.T) {
	conn, cleanup := dialGateway(t, &fakeSynthesizer{})
	defer cleanup()

	opening := readFrame(t, conn)
	if opening.Type != "session" {
		t.Fatalf("unexpected opening frame: %s", opening.Type)
	}
	var sess struct {
		SessionID string `json:"sessionId"`
		State     string `json:"state"`
	}
	if err := json.Unmarshal(opening.Data, &sess); err != nil {
		t.Fatalf("decode session frame: %v", err)
	}
	if sess.State != "AWAIT_IDENTITY" {
		t.Fatalf("unexpected state: %s", sess.State)
	}

	sendFrame(t, conn, "handshake", map[string]string{"token": "tok"})
	greeting := readFrame(t, conn)
	if greeting.Type != "reply" {
		t.Fatalf("unexpected frame: %s", greeting.Type)
	}
	var reply struct {
		Text      string `json:"text"`
		State     string `json:"state"`
		EventID   string `json:"eventId"`
		AudioData []byte `json:"audioData"`
	}
	if err := json.Unmarshal(greeting.Data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.State != "COLLECT_SLOTS" || !strings.Contains(reply.Text, "Alice") {
		t.Fatalf("unexpected greeting: %+v", reply)
	}
	if len(reply.AudioData) == 0 {
		t.Fatal("greeting must carry synthesized audio")
	}

	sendFrame(t, conn, "text", map[string]string{"text": "book lunch"})
	if err := json.Unmarshal(readFrame(t, conn).Data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.State != "CONFIRM" {
		t.Fatalf("unexpected state: %s", reply.State)
	}

	sendFrame(t, conn, "text", map[string]string{"text": "yes"})
	if err := json.Unmarshal(readFrame(t, conn).Data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.State != "DONE" || reply.EventID != "evt-1" {
		t.Fatalf("unexpected final reply: %+v", reply)
	}
}

func TestGatewaySynthesisFailureDegradesToText(t *testing.T) {
	conn, cleanup := dialGateway(t, &fakeSynthesizer{fail: true})
	defer cleanup()

	readFrame(t, conn)
	sendFrame(t, conn, "handshake", map[string]string{"token": "tok"})

	var reply struct {
		Text      string `json:"text"`
		AudioData []byte `json:"audioData"`
	}
	if err := json.Unmarshal(readFrame(t, conn).Data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Text == "" {
		t.Fatal("text reply must survive a synthesis failure")
	}
	if len(reply.AudioData) != 0 {
		t.Fatal("no audio expected when synthesis fails")
	}
}

func TestGatewayUnknownFrameTerminatesConnection(t *testing.T) {
	conn, cleanup := dialGateway(t, nil)
	defer cleanup()

	readFrame(t, conn)
	sendFrame(t, conn, "mystery", map[string]string{})

	errFrame := readFrame(t, conn)
	if errFrame.Type != "error" {
		t.Fatalf("unexpected frame: %s", errFrame.Type)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection must be closed after a protocol violation")
	}
}

func TestGatewayPingsInterleaveWithReplies(t *testing.T) {
	sessions := session.NewManager(fakeInterpreter{}, fakeVerifier{}, fakeCalendar{}, session.Config{Location: time.UTC})
	// A short idle timeout keeps the ping goroutine firing throughout the
	// conversation, so reply writes and pings overlap in time.
	handler := voice.New(sessions, nil, &fakeSynthesizer{}, 100*time.Millisecond)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn)
	sendFrame(t, conn, "handshake", map[string]string{"token": "tok"})
	readFrame(t, conn)

	var reply struct {
		State string `json:"state"`
	}
	for i := 0; i < 30; i++ {
		sendFrame(t, conn, "text", map[string]string{"text": "hm"})
		if err := json.Unmarshal(readFrame(t, conn).Data, &reply); err != nil {
			t.Fatalf("decode reply %d: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if reply.State == "" {
		t.Fatal("expected replies to keep flowing alongside pings")
	}
}

func TestGatewayBufferedAudioTurn(t *testing.T) {
	conn, cleanup := dialGateway(t, nil)
	defer cleanup()

	readFrame(t, conn)
	sendFrame(t, conn, "handshake", map[string]string{"token": "tok"})
	readFrame(t, conn)

	// No recognizer is configured, so a final audio turn falls through to an
	// uninterpretable utterance and the machine re-prompts.
	sendFrame(t, conn, "audio", map[string]any{"audioData": []byte{1, 2, 3}, "isFinal": false})
	sendFrame(t, conn, "audio", map[string]any{"audioData": []byte{4, 5, 6}, "isFinal": true})

	var reply struct {
		Text  string `json:"text"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(readFrame(t, conn).Data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.State != "COLLECT_SLOTS" {
		t.Fatalf("unexpected state: %s", reply.State)
	}
	if !strings.Contains(reply.Text, "didn't catch") {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
}
