package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
)

// Relative expressions are resolved against a reference instant supplied by
// the caller (anchored to session start, not wall clock at parse time), so a
// repeated "tomorrow" inside one session resolves to the same date.

var (
	clockRe    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm|a\.m\.|p\.m\.)?\b`)
	hourMerRe  = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm|a\.m\.|p\.m\.)\b`)
	noonRe     = regexp.MustCompile(`\b(noon|midday|midnight)\b`)
	weekdayRe  = regexp.MustCompile(`\b(?:(next|this)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	monthDayRe = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthRe = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)(?:,?\s+(\d{4}))?\b`)
	numericRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	inDaysRe   = regexp.MustCompile(`\bin\s+(a|an|one|two|three|four|five|six|seven|eight|nine|ten|\d{1,2})\s+days?\b`)
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var smallNumbers = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

type dateCandidate struct {
	pos  int
	date schedule.Date
}

type timeCandidate struct {
	pos int
	tod schedule.TimeOfDay
}

// extractDate scans lowercased text for date expressions and returns the
// last one mentioned. Tie-break policy: last value wins, earlier candidates
// are discarded.
func extractDate(lower string, ref time.Time) (schedule.Date, bool) {
	var candidates []dateCandidate

	add := func(pos int, d schedule.Date) {
		candidates = append(candidates, dateCandidate{pos: pos, date: d})
	}

	if i := strings.Index(lower, "day after tomorrow"); i >= 0 {
		add(i, schedule.DateOf(ref.AddDate(0, 0, 2)))
	}
	if i := lastIndexWord(lower, "tomorrow"); i >= 0 && !strings.Contains(lower[max(0, i-10):i], "day after") {
		add(i, schedule.DateOf(ref.AddDate(0, 0, 1)))
	}
	if i := lastIndexWord(lower, "today"); i >= 0 {
		add(i, schedule.DateOf(ref))
	}
	if i := lastIndexWord(lower, "tonight"); i >= 0 {
		add(i, schedule.DateOf(ref))
	}

	for _, m := range inDaysRe.FindAllStringSubmatchIndex(lower, -1) {
		word := lower[m[2]:m[3]]
		n, ok := smallNumbers[word]
		if !ok {
			n, _ = strconv.Atoi(word)
		}
		if n > 0 {
			add(m[0], schedule.DateOf(ref.AddDate(0, 0, n)))
		}
	}

	for _, m := range weekdayRe.FindAllStringSubmatchIndex(lower, -1) {
		qualifier := ""
		if m[2] >= 0 {
			qualifier = lower[m[2]:m[3]]
		}
		wd := weekdays[lower[m[4]:m[5]]]
		add(m[0], nextWeekday(ref, wd, qualifier == "next"))
	}

	for _, m := range monthDayRe.FindAllStringSubmatchIndex(lower, -1) {
		month := months[lower[m[2]:m[3]]]
		day, _ := strconv.Atoi(lower[m[4]:m[5]])
		year := 0
		if m[6] >= 0 {
			year, _ = strconv.Atoi(lower[m[6]:m[7]])
		}
		if d, ok := resolveCalendarDate(ref, month, day, year); ok {
			add(m[0], d)
		}
	}

	for _, m := range dayMonthRe.FindAllStringSubmatchIndex(lower, -1) {
		day, _ := strconv.Atoi(lower[m[2]:m[3]])
		month := months[lower[m[4]:m[5]]]
		year := 0
		if m[6] >= 0 {
			year, _ = strconv.Atoi(lower[m[6]:m[7]])
		}
		if d, ok := resolveCalendarDate(ref, month, day, year); ok {
			add(m[0], d)
		}
	}

	for _, m := range numericRe.FindAllStringSubmatchIndex(lower, -1) {
		mm, _ := strconv.Atoi(lower[m[2]:m[3]])
		dd, _ := strconv.Atoi(lower[m[4]:m[5]])
		year := 0
		if m[6] >= 0 {
			year, _ = strconv.Atoi(lower[m[6]:m[7]])
			if year < 100 {
				year += 2000
			}
		}
		if mm < 1 || mm > 12 {
			continue
		}
		if d, ok := resolveCalendarDate(ref, time.Month(mm), dd, year); ok {
			add(m[0], d)
		}
	}

	if len(candidates) == 0 {
		return schedule.Date{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.pos >= best.pos {
			best = c
		}
	}
	return best.date, true
}

// extractTime scans lowercased text for time expressions and returns the
// last one mentioned. Bare hours without a meridiem are treated as ambiguous
// and yield no value.
func extractTime(lower string) (schedule.TimeOfDay, bool) {
	var candidates []timeCandidate

	for _, m := range clockRe.FindAllStringSubmatchIndex(lower, -1) {
		hour, _ := strconv.Atoi(lower[m[2]:m[3]])
		minute, _ := strconv.Atoi(lower[m[4]:m[5]])
		mer := ""
		if m[6] >= 0 {
			mer = lower[m[6]:m[7]]
		}
		// Looks like a date fragment (12/31) or out of range.
		if minute > 59 {
			continue
		}
		if mer == "" {
			// 24h clock only; "5:30" alone is plausible but "13:30" is
			// unambiguous, anything <= 12 without a meridiem is a guess.
			if hour > 12 && hour <= 23 {
				candidates = append(candidates, timeCandidate{m[0], schedule.TimeOfDay{Hour: hour, Minute: minute}})
			}
			continue
		}
		if h, ok := applyMeridiem(hour, mer); ok {
			candidates = append(candidates, timeCandidate{m[0], schedule.TimeOfDay{Hour: h, Minute: minute}})
		}
	}

	for _, m := range hourMerRe.FindAllStringSubmatchIndex(lower, -1) {
		hour, _ := strconv.Atoi(lower[m[2]:m[3]])
		mer := lower[m[4]:m[5]]
		if h, ok := applyMeridiem(hour, mer); ok {
			candidates = append(candidates, timeCandidate{m[0], schedule.TimeOfDay{Hour: h}})
		}
	}

	for _, m := range noonRe.FindAllStringIndex(lower, -1) {
		word := lower[m[0]:m[1]]
		tod := schedule.TimeOfDay{Hour: 12}
		if word == "midnight" {
			tod = schedule.TimeOfDay{Hour: 0}
		}
		candidates = append(candidates, timeCandidate{m[0], tod})
	}

	if len(candidates) == 0 {
		return schedule.TimeOfDay{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.pos >= best.pos {
			best = c
		}
	}
	return best.tod, true
}

func applyMeridiem(hour int, mer string) (int, bool) {
	if hour < 1 || hour > 12 {
		return 0, false
	}
	pm := strings.HasPrefix(mer, "p")
	switch {
	case pm && hour != 12:
		return hour + 12, true
	case !pm && hour == 12:
		return 0, true
	default:
		return hour, true
	}
}

// nextWeekday returns the next occurrence of wd strictly after ref's date.
// With skipWeek set ("next monday") the occurrence in the current week is
// skipped as well.
func nextWeekday(ref time.Time, wd time.Weekday, skipWeek bool) schedule.Date {
	days := (int(wd) - int(ref.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	if skipWeek && days < 7 {
		days += 7
	}
	return schedule.DateOf(ref.AddDate(0, 0, days))
}

// resolveCalendarDate fills in a missing year preferring the future and
// rejects impossible day-of-month values.
func resolveCalendarDate(ref time.Time, month time.Month, day, year int) (schedule.Date, bool) {
	if day < 1 || day > 31 {
		return schedule.Date{}, false
	}
	if year == 0 {
		year = ref.Year()
		candidate := time.Date(year, month, day, 23, 59, 0, 0, ref.Location())
		if candidate.Before(ref) {
			year++
		}
	}
	// Normalization shifting the month means the day did not exist.
	check := time.Date(year, month, day, 0, 0, 0, 0, ref.Location())
	if check.Month() != month || check.Day() != day {
		return schedule.Date{}, false
	}
	return schedule.Date{Year: year, Month: month, Day: day}, true
}

func lastIndexWord(s, word string) int {
	i := strings.LastIndex(s, word)
	if i < 0 {
		return -1
	}
	if i > 0 && isWordChar(s[i-1]) {
		return -1
	}
	if end := i + len(word); end < len(s) && isWordChar(s[end]) {
		return -1
	}
	return i
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
