package timeslot

import (
	"testing"
	"time"
)

func at(day time.Time, h, m int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

func TestOverlaps(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"identical", at(day, 9, 0), at(day, 10, 0), at(day, 9, 0), at(day, 10, 0), true},
		{"contained", at(day, 9, 0), at(day, 12, 0), at(day, 10, 0), at(day, 11, 0), true},
		{"partial left", at(day, 9, 0), at(day, 10, 0), at(day, 9, 30), at(day, 10, 30), true},
		{"partial right", at(day, 9, 30), at(day, 10, 30), at(day, 9, 0), at(day, 10, 0), true},
		{"back to back", at(day, 9, 0), at(day, 10, 0), at(day, 10, 0), at(day, 11, 0), false},
		{"back to back reversed", at(day, 10, 0), at(day, 11, 0), at(day, 9, 0), at(day, 10, 0), false},
		{"disjoint", at(day, 9, 0), at(day, 10, 0), at(day, 14, 0), at(day, 15, 0), false},
	}
	for _, tt := range cases {
		if got := Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
			t.Errorf("%s: Overlaps=%v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStep(t *testing.T) {
	if got := Step(15 * time.Minute); got != 30*time.Minute {
		t.Fatalf("short services step at the 30m floor, got %s", got)
	}
	if got := Step(30 * time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m step, got %s", got)
	}
	if got := Step(45 * time.Minute); got != 45*time.Minute {
		t.Fatalf("long services step by their duration, got %s", got)
	}
}

func TestAvailableSlots_FullOpenDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	slots := AvailableSlots(at(day, 9, 0), at(day, 18, 0), 30*time.Minute, nil, day)
	if len(slots) != 18 {
		t.Fatalf("expected 18 slots for 09:00-18:00 at 30m, got %d", len(slots))
	}
	if !slots[0].Equal(at(day, 9, 0)) {
		t.Fatalf("first slot should be 09:00, got %s", slots[0])
	}
	if !slots[17].Equal(at(day, 17, 30)) {
		t.Fatalf("last slot should be 17:30, got %s", slots[17])
	}
}

func TestAvailableSlots_BusyIntervalExcluded(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: at(day, 14, 0), End: at(day, 14, 30)}}

	slots := AvailableSlots(at(day, 9, 0), at(day, 18, 0), 30*time.Minute, busy, day)
	if len(slots) != 17 {
		t.Fatalf("expected 17 slots with one taken, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Equal(at(day, 14, 0)) {
			t.Fatal("14:00 should have been filtered out")
		}
	}
}

func TestAvailableSlots_StopsBeforeClosing(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// 09:00-10:00 window, 45m service: only 09:00 fits; 09:45 would run past.
	slots := AvailableSlots(at(day, 9, 0), at(day, 10, 0), 45*time.Minute, nil, day)
	if len(slots) != 1 || !slots[0].Equal(at(day, 9, 0)) {
		t.Fatalf("expected single 09:00 slot, got %v", slots)
	}
}

func TestAvailableSlots_SkipsPastStarts(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := at(day, 9, 31)
	slots := AvailableSlots(at(day, 9, 0), at(day, 11, 0), 30*time.Minute, nil, now)
	if len(slots) != 2 {
		t.Fatalf("expected 10:00 and 10:30 only, got %v", slots)
	}
	if !slots[0].Equal(at(day, 10, 0)) {
		t.Fatalf("first future slot should be 10:00, got %s", slots[0])
	}
}

func TestAvailableSlots_Degenerate(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if slots := AvailableSlots(at(day, 9, 0), at(day, 9, 0), 30*time.Minute, nil, day); slots != nil {
		t.Fatalf("empty window should yield no slots, got %v", slots)
	}
	if slots := AvailableSlots(at(day, 9, 0), at(day, 18, 0), 0, nil, day); slots != nil {
		t.Fatalf("zero duration should yield no slots, got %v", slots)
	}
	// Window shorter than the service.
	if slots := AvailableSlots(at(day, 9, 0), at(day, 9, 20), 30*time.Minute, nil, day); slots != nil {
		t.Fatalf("undersized window should yield no slots, got %v", slots)
	}
}
