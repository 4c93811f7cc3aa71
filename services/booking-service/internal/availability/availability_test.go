package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avelinov/salonbook/services/booking-service/internal/slots"
)

type fakeSource struct {
	reserved []time.Time
	err      error
	calls    int
}

func (f *fakeSource) ActiveSlotTimes(_ context.Context, _ string, _, _ time.Time) ([]time.Time, error) {
	f.calls++
	return f.reserved, f.err
}

func testSchedule() slots.Schedule {
	return slots.Schedule{
		Open:        10 * time.Hour,
		Last:        17*time.Hour + 30*time.Minute,
		Spacing:     90 * time.Minute,
		HorizonDays: 14,
	}
}

func TestAvailableSlots_FiltersReserved(t *testing.T) {
	day := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{reserved: []time.Time{day.Add(13 * time.Hour)}}
	now := func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }

	c := NewChecker(testSchedule(), src, now)
	free, err := c.AvailableSlots(context.Background(), day, "prov-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(free) != 5 {
		t.Fatalf("expected 5 free slots, got %d", len(free))
	}
	for _, s := range free {
		if s.Equal(day.Add(13 * time.Hour)) {
			t.Fatal("reserved 13:00 slot still offered")
		}
	}
}

func TestAvailableSlots_TodayDropsPastTimes(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	// 13:00 exactly: a slot equal to now must also be dropped.
	now := func() time.Time { return day.Add(13 * time.Hour) }

	c := NewChecker(testSchedule(), &fakeSource{}, now)
	free, err := c.AvailableSlots(context.Background(), day, "prov-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(free) != 3 {
		t.Fatalf("expected 3 remaining slots, got %d", len(free))
	}
	if !free[0].Equal(day.Add(14*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected first slot 14:30, got %s", free[0])
	}
}

func TestAvailableSlots_TodayAcrossLocations(t *testing.T) {
	// The HTTP layer parses ?date= in UTC while now carries the host zone.
	// Today must still drop past slots when the two locations differ.
	zone := time.FixedZone("UTC+3", 3*60*60)
	now := func() time.Time { return time.Date(2026, 9, 1, 15, 0, 0, 0, zone) }
	day, err := time.Parse("2006-01-02", "2026-09-01")
	if err != nil {
		t.Fatal(err)
	}

	c := NewChecker(testSchedule(), &fakeSource{}, now)
	free, err := c.AvailableSlots(context.Background(), day, "prov-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(free) == 0 {
		t.Fatal("expected at least the 16:00 and 17:30 slots")
	}
	for _, s := range free {
		if !s.After(now()) {
			t.Fatalf("past slot %s offered for today (now %s)", s, now())
		}
	}
}

func TestAvailableSlots_OutsideHorizonIsEmptyNotError(t *testing.T) {
	src := &fakeSource{err: errors.New("store must not be queried")}
	now := func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }

	c := NewChecker(testSchedule(), src, now)
	free, err := c.AvailableSlots(context.Background(), time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC), "prov-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free != nil {
		t.Fatalf("expected empty result, got %v", free)
	}
	if src.calls != 0 {
		t.Fatal("store queried for a date outside the horizon")
	}
}

func TestAvailableSlots_NotCachedAcrossCalls(t *testing.T) {
	day := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	now := func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }

	c := NewChecker(testSchedule(), src, now)
	ctx := context.Background()
	if _, err := c.AvailableSlots(ctx, day, "prov-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src.reserved = []time.Time{day.Add(10 * time.Hour)}
	free, err := c.AvailableSlots(ctx, day, "prov-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected a fresh store query per call, got %d calls", src.calls)
	}
	for _, s := range free {
		if s.Equal(day.Add(10 * time.Hour)) {
			t.Fatal("newly reserved slot still offered on second call")
		}
	}
}
