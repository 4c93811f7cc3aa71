// Package availability filters the slot grid against live reservation state.
// Results are advisory: the reservation engine re-checks at write time and the
// storage-level uniqueness constraint is the authoritative guard.
package availability

import (
	"context"
	"time"

	"github.com/avelinov/salonbook/services/booking-service/internal/slots"
)

// ReservationSource exposes the active appointment start times for one
// provider inside a time range.
type ReservationSource interface {
	ActiveSlotTimes(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error)
}

type Checker struct {
	sched slots.Schedule
	store ReservationSource
	now   func() time.Time
}

func NewChecker(sched slots.Schedule, store ReservationSource, now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{sched: sched, store: store, now: now}
}

// AvailableSlots returns the bookable start times for a provider on a date,
// ordered ascending. Slots with an active appointment are removed, and for
// today any slot at or before the current time is removed. A date outside the
// horizon yields an empty result, not an error.
//
// The reservation set is queried on every call. Availability is never cached:
// a stale answer here could offer a slot that can no longer be booked.
func (c *Checker) AvailableSlots(ctx context.Context, date time.Time, providerID string) ([]time.Time, error) {
	now := c.now()
	// The date names a calendar day and may arrive in another location (the
	// HTTP layer parses it in UTC). Rebuild it in now's location so the
	// horizon and same-day checks compare calendar days, not instants.
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, now.Location())
	if !c.sched.InHorizon(day, now) {
		return nil, nil
	}

	reserved, err := c.store.ActiveSlotTimes(ctx, providerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	// Keyed by instant, not time.Time: the driver's location may differ from
	// the grid's.
	taken := make(map[int64]struct{}, len(reserved))
	for _, t := range reserved {
		taken[t.Unix()] = struct{}{}
	}

	sameDay := day.Equal(slots.Midnight(now))
	var free []time.Time
	for _, slot := range c.sched.SlotsOn(day) {
		if sameDay && !slot.After(now) {
			continue
		}
		if _, ok := taken[slot.Unix()]; ok {
			continue
		}
		free = append(free, slot)
	}
	return free, nil
}
