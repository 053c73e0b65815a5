package schedule

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultEventDuration is applied when the user gives only a start time.
const DefaultEventDuration = 30 * time.Minute

// ErrNotExecutable is returned when an event request is built from a slot
// set that is incomplete or unconfirmed.
var ErrNotExecutable = errors.New("slot set is not executable")

// EventRequest is the immutable snapshot handed to the calendar backend.
// It is built exactly once per execution, at the moment of confirmation.
type EventRequest struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Counterpart string        `json:"counterpart,omitempty"`
	Start       time.Time     `json:"start"`
	Duration    time.Duration `json:"-"`
}

// End is the event end derived from start and duration.
func (r EventRequest) End() time.Time {
	return r.Start.Add(r.Duration)
}

// NewEventRequest snapshots an executable slot set. The location resolves
// the collected date and time-of-day into an absolute start instant.
func NewEventRequest(slots SlotSet, loc *time.Location) (EventRequest, error) {
	if !slots.IsExecutable() {
		return EventRequest{}, ErrNotExecutable
	}
	return EventRequest{
		ID:          uuid.NewString(),
		Title:       slots.Title,
		Counterpart: slots.Counterpart,
		Start:       slots.Date.At(*slots.Time, loc),
		Duration:    DefaultEventDuration,
	}, nil
}

// Utterance is one recognized-text turn attributed to a session. It is not
// retained beyond the single state transition it triggers.
type Utterance struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
