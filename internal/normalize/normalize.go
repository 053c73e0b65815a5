// Package normalize turns raw recognized text into a partial slot update and
// an intent tag. It is deterministic and side-effect free: ambiguous or
// unparseable expressions yield no slot value rather than a guess, leaving
// the dialogue layer to re-prompt.
package normalize

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
)

// Result is the outcome of interpreting one utterance.
type Result struct {
	Update schedule.SlotUpdate
	Intent schedule.Intent
}

// Interpreter produces a Result for a recognized utterance. ref is the
// session anchor used to resolve relative date expressions.
type Interpreter interface {
	Interpret(ctx context.Context, text string, ref time.Time) Result
}

// Rules is the deterministic rule-based Interpreter.
type Rules struct{}

func (Rules) Interpret(_ context.Context, text string, ref time.Time) Result {
	return Interpret(text, ref)
}

var (
	confirmRe = regexp.MustCompile(`^(yes|yeah|yep|yup|sure|ok|okay|correct|right|confirm|confirmed|go ahead|sounds good|that's right|do it|please do)\b`)
	denyRe    = regexp.MustCompile(`^(no|nope|nah|wrong|incorrect|not right|that's wrong|don't)\b`)
	cancelRe  = regexp.MustCompile(`\b(cancel|abort|never ?mind|forget it|stop)\b`)

	counterpartRe = regexp.MustCompile(`\b(?:with|meet|meeting)\s+([A-Z][A-Za-z'\-]+(?:\s+[A-Z][A-Za-z'\-]+)?)`)
	scheduleRe    = regexp.MustCompile(`\b(?:schedule|book|plan|arrange|set up)\s+(?:a|an|the)?\s*([a-z][a-z0-9'\- ]*?)(?:\s+(?:with|for|on|at|tomorrow|today|tonight|next|this|in)\b|$)`)
	titledRe      = regexp.MustCompile(`\b(?:title is|titled|call it|about)\s+['"]?([a-z][a-z0-9'\- ]*?)['"]?(?:\s+(?:with|for|on|at|tomorrow|today|tonight|next|this)\b|[.!?]|$)`)
)

// Interpret extracts a partial slot update and an intent from one utterance.
// Relative dates resolve against ref, which callers anchor to session start.
func Interpret(text string, ref time.Time) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Intent: schedule.IntentUnknown}
	}
	lower := strings.ToLower(trimmed)

	if cancelRe.MatchString(lower) && !confirmRe.MatchString(lower) {
		return Result{Intent: schedule.IntentCancel}
	}

	update := extractUpdate(trimmed, lower, ref)

	switch {
	case confirmRe.MatchString(lower):
		return Result{Update: update, Intent: schedule.IntentConfirm}
	case denyRe.MatchString(lower):
		return Result{Update: update, Intent: schedule.IntentDeny}
	case !update.Empty():
		return Result{Update: update, Intent: schedule.IntentProvideInfo}
	default:
		return Result{Intent: schedule.IntentUnknown}
	}
}

func extractUpdate(raw, lower string, ref time.Time) schedule.SlotUpdate {
	var update schedule.SlotUpdate

	if date, ok := extractDate(lower, ref); ok {
		update.Date = &date
	}
	if tod, ok := extractTime(lower); ok {
		update.Time = &tod
	}
	dropPastMoment(&update, ref)

	if m := counterpartRe.FindStringSubmatch(raw); m != nil {
		if name := ValidName(m[1]); name != "" {
			update.Counterpart = &name
		}
	}

	if title := extractTitle(lower); title != "" {
		update.Title = &title
	}

	return update
}

func extractTitle(lower string) string {
	for _, re := range []*regexp.Regexp{scheduleRe, titledRe} {
		if m := re.FindStringSubmatch(lower); m != nil {
			if title := ValidTitle(m[1]); title != "" {
				return title
			}
		}
	}
	return ""
}

// dropPastMoment discards date/time values that resolve to a moment that is
// already past, or absurdly far out. A dropped value is indistinguishable
// from an unparseable one: the machine re-prompts.
func dropPastMoment(update *schedule.SlotUpdate, ref time.Time) {
	if update.Date == nil {
		return
	}
	if update.Time != nil {
		moment := update.Date.At(*update.Time, ref.Location())
		if !moment.After(ref) || moment.After(ref.AddDate(1, 0, 0)) {
			update.Date = nil
			update.Time = nil
		}
		return
	}
	endOfDay := update.Date.At(schedule.TimeOfDay{Hour: 23, Minute: 59}, ref.Location())
	if endOfDay.Before(ref) || endOfDay.After(ref.AddDate(1, 0, 1)) {
		update.Date = nil
	}
}
