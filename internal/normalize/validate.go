package normalize

import (
	"regexp"
	"strings"
)

var nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z\s\-']*$`)

// Common replies that are not names even when they slip through extraction.
var nameBlacklist = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "ok": {}, "okay": {}, "no": {},
	"nope": {}, "sure": {}, "cancel": {}, "tomorrow": {}, "today": {},
}

var titleForbidden = []string{
	"ignore previous",
	"system message",
	"assistant:",
	"user:",
}

// Vague fillers that carry no usable title.
var titleBlacklist = map[string]struct{}{
	"something": {}, "anything": {}, "it": {}, "meeting": {}, "a meeting": {},
	"an event": {}, "event": {}, "appointment": {}, "an appointment": {},
}

// ValidName normalizes and validates a counterpart name, returning "" when
// the value cannot be a name.
func ValidName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 50 {
		return ""
	}
	if !nameRe.MatchString(name) {
		return ""
	}
	if _, bad := nameBlacklist[strings.ToLower(name)]; bad {
		return ""
	}
	return name
}

// ValidTitle normalizes and validates a meeting title, returning "" when
// the value is unusable.
func ValidTitle(title string) string {
	title = strings.TrimSpace(title)
	if len(title) < 3 || len(title) > 100 {
		return ""
	}
	lowered := strings.ToLower(title)
	if _, bad := titleBlacklist[lowered]; bad {
		return ""
	}
	for _, phrase := range titleForbidden {
		if strings.Contains(lowered, phrase) {
			return ""
		}
	}
	return title
}
