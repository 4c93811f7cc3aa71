package sweep

import (
	"testing"
	"time"
)

func TestDayBefore_CoversWholeCalendarDay(t *testing.T) {
	now := time.Date(2024, 6, 10, 15, 42, 13, 0, time.UTC)
	w := DayBefore(now)

	if !w.From.Equal(time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start: %v", w.From)
	}
	if !w.To.Equal(time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window end: %v", w.To)
	}

	if !w.Contains(time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("start of tomorrow must be inside")
	}
	if !w.Contains(time.Date(2024, 6, 11, 23, 59, 59, 0, time.UTC)) {
		t.Fatal("end of tomorrow must be inside")
	}
	if w.Contains(time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("day after tomorrow must be outside")
	}
	if w.Contains(time.Date(2024, 6, 10, 23, 0, 0, 0, time.UTC)) {
		t.Fatal("today must be outside")
	}
}

func TestDayBefore_EveningSweepStillSeesTomorrowMorning(t *testing.T) {
	// A 23:50 sweep must still cover a 09:00 appointment the next day.
	now := time.Date(2024, 6, 10, 23, 50, 0, 0, time.UTC)
	w := DayBefore(now)
	if !w.Contains(time.Date(2024, 6, 11, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("tomorrow morning must be inside the day-before window")
	}
}

func TestHourBefore(t *testing.T) {
	now := time.Date(2024, 6, 10, 13, 25, 0, 0, time.UTC)
	w := HourBefore(now)

	if !w.From.Equal(time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start: %v", w.From)
	}
	if !w.Contains(time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)) {
		t.Fatal("14:30 must be inside the 14:00 hour")
	}
	if w.Contains(time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)) {
		t.Fatal("15:00 must be outside")
	}
	if w.Contains(time.Date(2024, 6, 10, 13, 59, 0, 0, time.UTC)) {
		t.Fatal("current hour must be outside")
	}
}

func TestAdminImminent(t *testing.T) {
	now := time.Date(2024, 6, 10, 13, 50, 12, 0, time.UTC)
	w := AdminImminent(now)

	if !w.From.Equal(time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start: %v", w.From)
	}
	if !w.Contains(time.Date(2024, 6, 10, 14, 0, 30, 0, time.UTC)) {
		t.Fatal("14:00:30 must be inside")
	}
	if w.Contains(time.Date(2024, 6, 10, 14, 1, 0, 0, time.UTC)) {
		t.Fatal("14:01 must be outside")
	}
}

func TestWindowsAreIndependent(t *testing.T) {
	// One appointment can sit inside several windows during the same sweep:
	// at 23:05 an appointment at 00:00 tomorrow is within both the hour-before
	// window and the day-before window.
	now := time.Date(2024, 6, 10, 23, 5, 0, 0, time.UTC)
	at := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)

	if !HourBefore(now).Contains(at) {
		t.Fatal("expected hour-before hit")
	}
	if !DayBefore(now).Contains(at) {
		t.Fatal("expected day-before hit")
	}
}

func TestWindowFor(t *testing.T) {
	now := time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC)
	if got := WindowFor(KindDay, now); !got.From.Equal(DayBefore(now).From) {
		t.Fatalf("day dispatch wrong: %v", got.From)
	}
	if got := WindowFor(KindHour, now); !got.From.Equal(HourBefore(now).From) {
		t.Fatalf("hour dispatch wrong: %v", got.From)
	}
	if got := WindowFor(KindAdmin, now); !got.From.Equal(AdminImminent(now).From) {
		t.Fatalf("admin dispatch wrong: %v", got.From)
	}
}
