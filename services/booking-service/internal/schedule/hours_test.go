package schedule

import (
	"testing"
	"time"
)

func mondayToFriday(open, close int) WeekHours {
	var w WeekHours
	for d := time.Monday; d <= time.Friday; d++ {
		w[int(d)] = DayHours{IsOpen: true, Open: open, Close: close}
	}
	return w
}

func TestDayWindow_OpenDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatal(err)
	}
	week := mondayToFriday(9*60, 18*60)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, loc) // Monday
	win := week.DayWindow(date, loc)
	if !win.Open {
		t.Fatal("Monday should be open")
	}
	if win.Start.Hour() != 9 || win.End.Hour() != 18 {
		t.Fatalf("expected 09:00-18:00 local, got %s-%s", win.Start, win.End)
	}
	if win.Start.Location() != loc {
		t.Fatalf("window must be in tenant timezone, got %s", win.Start.Location())
	}
}

func TestDayWindow_ClosedDay(t *testing.T) {
	week := mondayToFriday(9*60, 18*60)
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) // Sunday
	if win := week.DayWindow(date, time.UTC); win.Open {
		t.Fatalf("Sunday should be closed, got %+v", win)
	}
}

func TestDayWindow_WeekdayResolvedInTenantTimezone(t *testing.T) {
	// 2026-03-01 23:30 UTC is already Monday in Auckland. The weekday must
	// come from the tenant's wall clock, not UTC.
	loc, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Fatal(err)
	}
	week := mondayToFriday(9*60, 18*60)

	instant := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	win := week.DayWindow(instant, loc)
	if !win.Open {
		t.Fatal("Auckland Monday should be open even when UTC still says Sunday")
	}
	if got := win.Start.In(loc).Weekday(); got != time.Monday {
		t.Fatalf("window should fall on Monday local, got %s", got)
	}
}

func TestDayWindow_DegenerateHours(t *testing.T) {
	var week WeekHours
	week[int(time.Monday)] = DayHours{IsOpen: true, Open: 18 * 60, Close: 9 * 60}
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if win := week.DayWindow(date, time.UTC); win.Open {
		t.Fatal("close before open should be treated as closed")
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"18:30", 1110, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"9am", 0, true},
		{"", 0, true},
	}
	for _, tt := range cases {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseClock(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(540); got != "09:00" {
		t.Fatalf("FormatClock(540) = %q", got)
	}
	if got := FormatClock(1110); got != "18:30" {
		t.Fatalf("FormatClock(1110) = %q", got)
	}
}
