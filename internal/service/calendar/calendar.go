// Package calendar is the client side of the calendar backend collaborator.
// The core hands it a validated credential and an immutable event request;
// everything about persistence lives behind the backend.
package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
)

var (
	// ErrPermissionDenied means the credential was rejected. Not retryable.
	ErrPermissionDenied = errors.New("calendar: permission denied")
	// ErrInvalidPayload means the backend refused the event data. Not retryable.
	ErrInvalidPayload = errors.New("calendar: invalid event payload")
)

// TransientError marks a failure eligible for a bounded retry.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("calendar: transient failure: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Backend creates one calendar event per request and returns its identifier.
type Backend interface {
	CreateEvent(ctx context.Context, credential string, req schedule.EventRequest) (string, error)
}
