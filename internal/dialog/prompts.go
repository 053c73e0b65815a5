package dialog

import (
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
)

const (
	promptReauth    = "I couldn't verify who you are. Please reconnect and sign in again."
	promptCancelled = "Okay, nothing was scheduled. Reconnect whenever you want to try again."
	promptConfirmed = "Great, the meeting is booked."
	promptDenied    = "No problem. What should I change?"
	promptAmbiguous = "Just to be safe: please either say yes to book it as is, or tell me the correction first."
	promptRepeat    = "Sorry, I didn't catch that. Could you say it again?"
)

func greeting(name string) string {
	if name == "" {
		return "Hi! I can help you schedule a meeting. What would you like to set up?"
	}
	return fmt.Sprintf("Hi %s! I can help you schedule a meeting. What would you like to set up?", name)
}

// missingPrompt asks for everything still unset, in one turn.
func missingPrompt(slots schedule.SlotSet) string {
	missing := slots.Missing()
	if len(missing) == 0 {
		return promptRepeat
	}
	asks := make([]string, 0, len(missing))
	for _, slot := range missing {
		asks = append(asks, askFor(slot))
	}
	return "Got it so far. " + strings.Join(asks, " ")
}

// clarifyPrompt targets the single most pressing missing slot.
func clarifyPrompt(slots schedule.SlotSet) string {
	missing := slots.Missing()
	if len(missing) == 0 {
		return promptRepeat
	}
	return "Let me ask directly: " + askFor(missing[0])
}

func askFor(slot string) string {
	switch slot {
	case "title":
		return "What is the meeting about?"
	case "date":
		return "Which day should it be?"
	case "time":
		return "What time works for you, for example 1:30 PM?"
	default:
		return "Could you tell me more?"
	}
}

// restatement speaks all collected slots back before asking for a yes/no.
func restatement(slots schedule.SlotSet, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Please confirm: a meeting")
	if slots.Title != "" {
		fmt.Fprintf(&b, " titled '%s'", slots.Title)
	}
	if slots.Counterpart != "" {
		fmt.Fprintf(&b, " with %s", slots.Counterpart)
	}
	if slots.Date != nil {
		fmt.Fprintf(&b, " on %s", slots.Date.Format(loc))
	}
	if slots.Time != nil {
		fmt.Fprintf(&b, " at %s", slots.Time.Format())
	}
	b.WriteString(". Should I go ahead and create it?")
	return b.String()
}

func successReply(eventID string) string {
	return fmt.Sprintf("%s Your event id is %s. Anything else to schedule?", promptConfirmed, eventID)
}
