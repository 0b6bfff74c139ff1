// Package schedule resolves a tenant's weekly opening hours into concrete
// bookable windows for calendar dates.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayHours is one weekday's configuration. Open and Close are minutes from
// midnight in the tenant's timezone; [Open, Close) is the bookable window.
type DayHours struct {
	IsOpen bool
	Open   int
	Close  int
}

// WeekHours maps weekdays (time.Weekday indexing, Sunday=0) to opening hours.
type WeekHours [7]DayHours

// Window is the bookable span for a single date, expressed as instants in the
// tenant's timezone.
type Window struct {
	Open  bool
	Start time.Time
	End   time.Time
}

// DayWindow resolves the window for a date. The weekday is taken from the
// date as seen in loc, never UTC-naively, so tenants west or east of UTC get
// the weekday their wall clock says.
func (w WeekHours) DayWindow(date time.Time, loc *time.Location) Window {
	local := date.In(loc)
	day := w[int(local.Weekday())]
	if !day.IsOpen || day.Close <= day.Open {
		return Window{}
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{
		Open:  true,
		Start: midnight.Add(time.Duration(day.Open) * time.Minute),
		End:   midnight.Add(time.Duration(day.Close) * time.Minute),
	}
}

// ParseClock converts an "HH:MM" string to minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a "YYYY-MM-DD" calendar date in the given location.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
}
