// Package session owns one dialogue machine per live connection and maps
// connection to verified identity and credential. Everything here is in
// memory only: closing a session wipes its credential and slots.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/voicecal/backend/internal/dialog"
	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
	"github.com/zhouzirui/voicecal/backend/internal/normalize"
	"github.com/zhouzirui/voicecal/backend/internal/service/calendar"
	"github.com/zhouzirui/voicecal/backend/internal/service/identity"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyVerified means a second handshake arrived on a session
	// whose one verification attempt was already spent.
	ErrAlreadyVerified = errors.New("handshake already attempted; reconnect with a fresh token")
)

// Reply is one spoken turn back to the user.
type Reply struct {
	Text    string
	State   dialog.State
	EventID string
}

// Config tunes manager behavior.
type Config struct {
	// Location resolves collected dates and times into instants and
	// anchors relative-date resolution.
	Location *time.Location
	// MaxExecuteRetries bounds transient-failure retries per execution.
	MaxExecuteRetries int
}

// Manager owns all live sessions. Sessions never share state; the only
// cross-session structure is the id map.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	interpreter normalize.Interpreter
	verifier    identity.Verifier
	calendar    calendar.Backend
	cfg         Config
}

type session struct {
	id string

	// mu serializes every operation on this session: utterances are
	// processed strictly one at a time, and an utterance arriving during
	// an execution waits here rather than dispatching a second call.
	mu sync.Mutex

	machine    *dialog.Machine
	identity   identity.Identity
	credential string
	anchor     time.Time
	authSpent  bool
	buffered   string
	hasBuffer  bool
	closed     bool
}

// NewManager wires the manager to its collaborators.
func NewManager(interpreter normalize.Interpreter, verifier identity.Verifier, backend calendar.Backend, cfg Config) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxExecuteRetries < 0 {
		cfg.MaxExecuteRetries = 0
	}
	return &Manager{
		sessions:    make(map[string]*session),
		interpreter: interpreter,
		verifier:    verifier,
		calendar:    backend,
		cfg:         cfg,
	}
}

// Open creates a session awaiting identity verification and returns its id.
func (m *Manager) Open(_ context.Context) string {
	s := &session{
		id:      uuid.NewString(),
		machine: dialog.NewMachine(m.cfg.Location),
		anchor:  time.Now().In(m.cfg.Location),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	log.Printf("[session] opened id=%s", s.id)
	return s.id
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) lookup(sessionID string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Handshake spends the session's single verification attempt. On success it
// returns the greeting plus, if an utterance was buffered while awaiting
// identity, the reply to that utterance.
func (m *Manager) Handshake(ctx context.Context, sessionID, token string) ([]Reply, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionNotFound
	}
	if s.authSpent {
		return nil, ErrAlreadyVerified
	}
	s.authSpent = true

	verified, credential, err := m.verifier.Verify(ctx, token)
	if err != nil {
		outcome := s.machine.IdentityRejected()
		log.Printf("[session] verification failed id=%s: %v", s.id, err)
		return []Reply{{Text: outcome.Reply, State: outcome.State}}, nil
	}

	s.identity = verified
	s.credential = credential

	outcome := s.machine.IdentityVerified(verified.DisplayName)
	replies := []Reply{{Text: outcome.Reply, State: outcome.State}}

	if s.hasBuffer {
		text := s.buffered
		s.buffered, s.hasBuffer = "", false
		replies = append(replies, m.process(ctx, s, text))
	}

	return replies, nil
}

// HandleUtterance applies one recognized turn to the session's machine and
// returns the reply. Utterances received before identity verification are
// buffered at most one turn and discarded beyond that.
func (m *Manager) HandleUtterance(ctx context.Context, sessionID, text string) (Reply, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return Reply{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Reply{}, ErrSessionNotFound
	}

	if s.machine.State() == dialog.StateAwaitIdentity {
		if !s.hasBuffer {
			s.buffered, s.hasBuffer = text, true
		}
		return Reply{
			Text:  "One moment, I still need to verify who you are.",
			State: dialog.StateAwaitIdentity,
		}, nil
	}

	return m.process(ctx, s, text), nil
}

// process runs one turn. Caller holds s.mu.
func (m *Manager) process(ctx context.Context, s *session, text string) Reply {
	result := m.interpreter.Interpret(ctx, text, s.anchor)
	outcome := s.machine.Advance(result)

	if outcome.Effect != dialog.EffectExecute {
		return Reply{Text: outcome.Reply, State: outcome.State}
	}

	return m.execute(ctx, s)
}

// execute performs the single calendar call for a confirmed slot set, with
// bounded retries on transient failures. Caller holds s.mu, which is what
// guarantees at most one call in flight per session.
func (m *Manager) execute(ctx context.Context, s *session) Reply {
	req, err := schedule.NewEventRequest(s.machine.Slots(), m.cfg.Location)
	if err != nil {
		outcome := s.machine.ExecutionFailed("I lost track of the details.")
		return Reply{Text: outcome.Reply, State: outcome.State}
	}

	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxExecuteRetries; attempt++ {
		eventID, err := m.calendar.CreateEvent(ctx, s.credential, req)
		if err == nil {
			outcome := s.machine.ExecutionSucceeded(eventID)
			log.Printf("[session] event created id=%s session=%s", eventID, s.id)
			return Reply{Text: outcome.Reply, State: outcome.State, EventID: eventID}
		}

		lastErr = err
		if !calendar.IsTransient(err) {
			break
		}
		log.Printf("[session] transient calendar failure session=%s attempt=%d: %v", s.id, attempt+1, err)
	}

	explanation := "The calendar service is having trouble right now."
	switch {
	case errors.Is(lastErr, calendar.ErrPermissionDenied):
		explanation = "Your calendar account refused the request."
	case errors.Is(lastErr, calendar.ErrInvalidPayload):
		explanation = "The calendar service rejected the event details."
	}

	log.Printf("[session] execution failed session=%s: %v", s.id, lastErr)
	outcome := s.machine.ExecutionFailed(explanation)
	return Reply{Text: outcome.Reply, State: outcome.State}
}

// State reports the session's current dialogue state.
func (m *Manager) State(sessionID string) (dialog.State, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionNotFound
	}
	return s.machine.State(), nil
}

// Close wipes the session's credential and slots from memory. Idempotent:
// closing twice, or a session that never existed, is a no-op.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}

	// Waits out any in-flight execution: the calendar call completes so no
	// partial booking is left behind, then the result is discarded with
	// the session.
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.credential = ""
		s.identity = identity.Identity{}
		s.buffered, s.hasBuffer = "", false
		s.machine = dialog.NewMachine(m.cfg.Location)
		log.Printf("[session] closed id=%s", s.id)
	}
	s.mu.Unlock()
}
