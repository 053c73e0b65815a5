package schedule

import (
	"fmt"
	"time"
)

// Intent classifies what a recognized utterance is trying to do.
type Intent string

const (
	IntentProvideInfo Intent = "provide_info"
	IntentConfirm     Intent = "confirm"
	IntentDeny        Intent = "deny"
	IntentCancel      Intent = "cancel"
	IntentUnknown     Intent = "unknown"
)

// Date is a calendar date without a time-of-day component.
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Format renders the date the way it is spoken back to the user.
func (d Date) Format(loc *time.Location) string {
	return d.At(TimeOfDay{}, loc).Format("Monday, 2 January 2006")
}

// At combines the date with a time-of-day in the given location.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// TimeOfDay is a wall-clock time within a day.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Format renders the time the way it is spoken back to the user.
func (t TimeOfDay) Format() string {
	ref := time.Date(2000, 1, 1, t.Hour, t.Minute, 0, 0, time.UTC)
	return ref.Format("3:04 PM")
}

// SlotUpdate is a partial field update produced by one utterance. Nil fields
// leave the corresponding slot untouched.
type SlotUpdate struct {
	Title       *string
	Date        *Date
	Time        *TimeOfDay
	Counterpart *string
}

// Empty reports whether the update carries no field at all.
func (u SlotUpdate) Empty() bool {
	return u.Title == nil && u.Date == nil && u.Time == nil && u.Counterpart == nil
}

// SlotSet is the partially filled scheduling intent for one booking. It is
// mutated only by the dialogue state machine.
type SlotSet struct {
	Title       string
	Date        *Date
	Time        *TimeOfDay
	Counterpart string
	Confirmed   bool
}

// Apply merges a partial update into the slot set, last value winning per
// field. Empty values never overwrite previously collected slots. Any change
// after confirmation invalidates the confirmation.
func (s *SlotSet) Apply(u SlotUpdate) bool {
	changed := false
	if u.Title != nil && *u.Title != "" && *u.Title != s.Title {
		s.Title = *u.Title
		changed = true
	}
	if u.Date != nil && (s.Date == nil || *s.Date != *u.Date) {
		d := *u.Date
		s.Date = &d
		changed = true
	}
	if u.Time != nil && (s.Time == nil || *s.Time != *u.Time) {
		t := *u.Time
		s.Time = &t
		changed = true
	}
	if u.Counterpart != nil && *u.Counterpart != "" && *u.Counterpart != s.Counterpart {
		s.Counterpart = *u.Counterpart
		changed = true
	}
	if changed {
		s.Confirmed = false
	}
	return changed
}

// IsComplete reports whether every slot required for execution is present.
// The counterpart is collected opportunistically but not required.
func (s *SlotSet) IsComplete() bool {
	return s.Title != "" && s.Date != nil && s.Time != nil
}

// IsExecutable reports whether the event may be created.
func (s *SlotSet) IsExecutable() bool {
	return s.IsComplete() && s.Confirmed
}

// Missing lists the required slots that are still unset, in prompt order.
func (s *SlotSet) Missing() []string {
	var missing []string
	if s.Title == "" {
		missing = append(missing, "title")
	}
	if s.Date == nil {
		missing = append(missing, "date")
	}
	if s.Time == nil {
		missing = append(missing, "time")
	}
	return missing
}
