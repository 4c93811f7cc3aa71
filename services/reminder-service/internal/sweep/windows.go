package sweep

import "time"

// Kind names a reminder flavor. Each kind has its own time window and its own
// sent flag on the appointment row, so the kinds fire independently and at
// most once each.
type Kind string

const (
	KindDay   Kind = "day"
	KindHour  Kind = "hour"
	KindAdmin Kind = "admin"
)

// Window is a half-open interval [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// DayBefore covers the full calendar day of now+24h, in now's location.
// Everything scheduled tomorrow gets the day-before reminder regardless of
// the hour the sweep happens to run.
func DayBefore(now time.Time) Window {
	target := now.Add(24 * time.Hour)
	start := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, target.Location())
	return Window{From: start, To: start.Add(24 * time.Hour)}
}

// HourBefore covers the clock hour that now+1h falls into.
func HourBefore(now time.Time) Window {
	start := now.Add(time.Hour).Truncate(time.Hour)
	return Window{From: start, To: start.Add(time.Hour)}
}

// AdminImminent covers the minute that now+10m falls into. A sweep interval
// of one minute or less never skips a slot; the sent flag absorbs overlap
// when cycles run faster than that.
func AdminImminent(now time.Time) Window {
	start := now.Add(10 * time.Minute).Truncate(time.Minute)
	return Window{From: start, To: start.Add(time.Minute)}
}

// WindowFor dispatches on kind.
func WindowFor(kind Kind, now time.Time) Window {
	switch kind {
	case KindDay:
		return DayBefore(now)
	case KindHour:
		return HourBefore(now)
	default:
		return AdminImminent(now)
	}
}
