// Package slots generates the bookable slot grid: a fixed set of times of day
// repeated over a fixed date horizon. Pure functions of the schedule and the
// given wall-clock date; reservation state is layered on top by availability.
package slots

import "time"

// Schedule describes the daily grid. Open and Last are offsets from midnight;
// Last is the latest bookable start time, inclusive.
type Schedule struct {
	Open        time.Duration
	Last        time.Duration
	Spacing     time.Duration
	HorizonDays int
}

// Times returns the ordered times of day {Open, Open+Spacing, ...} up to and
// including Last, as offsets from midnight.
func (s Schedule) Times() []time.Duration {
	if s.Spacing <= 0 || s.Last < s.Open {
		return nil
	}
	var times []time.Duration
	for t := s.Open; t <= s.Last; t += s.Spacing {
		times = append(times, t)
	}
	return times
}

// Dates returns the horizon of bookable dates starting at today, normalized
// to midnight in today's location.
func (s Schedule) Dates(today time.Time) []time.Time {
	day := Midnight(today)
	dates := make([]time.Time, 0, s.HorizonDays)
	for i := 0; i < s.HorizonDays; i++ {
		dates = append(dates, day.AddDate(0, 0, i))
	}
	return dates
}

// SlotsOn expands the grid for one date into concrete timestamps.
func (s Schedule) SlotsOn(date time.Time) []time.Time {
	day := Midnight(date)
	times := s.Times()
	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		out = append(out, day.Add(t))
	}
	return out
}

// InHorizon reports whether date falls inside [today, today+HorizonDays).
func (s Schedule) InHorizon(date, today time.Time) bool {
	d := Midnight(date)
	start := Midnight(today)
	end := start.AddDate(0, 0, s.HorizonDays)
	return !d.Before(start) && d.Before(end)
}

func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
