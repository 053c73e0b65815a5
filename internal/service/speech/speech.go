// Package speech defines the acoustic collaborator contracts. From the
// core's perspective both directions are pure functions over byte buffers;
// failures are per-turn and recoverable, never fatal to the session.
package speech

import (
	"context"
	"errors"
	"fmt"
)

// RecognitionError wraps a speech-to-text failure. The gateway surfaces it
// as an uninterpretable turn, not as a session error.
type RecognitionError struct {
	Cause error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("speech: recognition failed: %v", e.Cause)
}

func (e *RecognitionError) Unwrap() error { return e.Cause }

// SynthesisError wraps a text-to-speech failure. The gateway degrades to a
// text-only reply when it sees one.
type SynthesisError struct {
	Cause error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech: synthesis failed: %v", e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// IsRecognitionError reports whether err is a recognition failure.
func IsRecognitionError(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re)
}

// Recognizer turns one buffered audio turn into text.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer turns one reply into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	// Format names the audio container produced, e.g. "mp3".
	Format() string
}
