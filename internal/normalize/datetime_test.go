package normalize_test

import (
	"testing"
	"time"

	"github.com/zhouzirui/voicecal/backend/internal/model/schedule"
	"github.com/zhouzirui/voicecal/backend/internal/normalize"
)

func date(y int, m time.Month, d int) schedule.Date {
	return schedule.Date{Year: y, Month: m, Day: d}
}

func TestDateExpressions(t *testing.T) {
	cases := []struct {
		text string
		want schedule.Date
	}{
		{"lunch tomorrow", date(2026, time.March, 5)},
		{"the day after tomorrow", date(2026, time.March, 6)},
		{"in three days", date(2026, time.March, 7)},
		{"in 10 days", date(2026, time.March, 14)},
		{"on friday", date(2026, time.March, 6)},
		{"on tuesday", date(2026, time.March, 10)},
		{"next tuesday", date(2026, time.March, 17)},
		{"next friday", date(2026, time.March, 13)},
		{"on march 20", date(2026, time.March, 20)},
		{"on the 20th of march", date(2026, time.March, 20)},
		{"december 1st", date(2026, time.December, 1)},
		{"3/20", date(2026, time.March, 20)},
		{"3/20/2026", date(2026, time.March, 20)},
	}

	for _, c := range cases {
		got := normalize.Interpret(c.text, ref)
		if got.Update.Date == nil {
			t.Fatalf("Interpret(%q): no date extracted", c.text)
		}
		if *got.Update.Date != c.want {
			t.Fatalf("Interpret(%q) date: got %v want %v", c.text, *got.Update.Date, c.want)
		}
	}
}

func TestPastMonthDayRollsForward(t *testing.T) {
	// March 2 is already past on March 4, so it means next year.
	got := normalize.Interpret("on march 2", ref)
	if got.Update.Date == nil || *got.Update.Date != date(2027, time.March, 2) {
		t.Fatalf("unexpected date: %v", got.Update.Date)
	}
}

func TestFarFutureDateRejected(t *testing.T) {
	// Anything beyond a year of the anchor fails validation, even with an
	// explicitly spoken year.
	for _, text := range []string{"3/20/2027", "on march 20 2028", "december 1st 2030 at 3 pm"} {
		got := normalize.Interpret(text, ref)
		if got.Update.Date != nil || got.Update.Time != nil {
			t.Fatalf("Interpret(%q): far-future moment must be dropped, got %+v", text, got.Update)
		}
		if got.Intent != schedule.IntentUnknown {
			t.Fatalf("Interpret(%q): unexpected intent %s", text, got.Intent)
		}
	}
}

func TestImpossibleDayRejected(t *testing.T) {
	got := normalize.Interpret("february 30", ref)
	if got.Update.Date != nil {
		t.Fatalf("impossible date must be rejected: %v", *got.Update.Date)
	}
	if got.Intent != schedule.IntentUnknown {
		t.Fatalf("unexpected intent: %s", got.Intent)
	}
}

func TestTimeExpressions(t *testing.T) {
	cases := []struct {
		text string
		want schedule.TimeOfDay
	}{
		{"at 3 pm", schedule.TimeOfDay{Hour: 15}},
		{"at 9:30 am", schedule.TimeOfDay{Hour: 9, Minute: 30}},
		{"at 12 pm", schedule.TimeOfDay{Hour: 12}},
		{"at 12 am", schedule.TimeOfDay{Hour: 0}},
		{"at 13:30", schedule.TimeOfDay{Hour: 13, Minute: 30}},
		{"at noon", schedule.TimeOfDay{Hour: 12}},
		{"at midnight", schedule.TimeOfDay{Hour: 0}},
	}

	for _, c := range cases {
		got := normalize.Interpret(c.text, ref)
		if got.Update.Time == nil {
			t.Fatalf("Interpret(%q): no time extracted", c.text)
		}
		if *got.Update.Time != c.want {
			t.Fatalf("Interpret(%q) time: got %v want %v", c.text, *got.Update.Time, c.want)
		}
	}
}

func TestBareHourIsAmbiguous(t *testing.T) {
	for _, text := range []string{"at 5", "at 5:30", "meet me at 8"} {
		got := normalize.Interpret(text, ref)
		if got.Update.Time != nil {
			t.Fatalf("Interpret(%q): ambiguous hour must not fill the slot, got %v", text, *got.Update.Time)
		}
	}
}
