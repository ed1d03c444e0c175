package scheduler

import (
	"fmt"
	"time"
)

const clockLayout = "15:04"

// Window is a trading-hours range in a fixed location. The range is
// start-inclusive and end-exclusive: a 10:00-14:30 window admits 10:00:00
// and rejects 14:30:00.
type Window struct {
	start time.Duration // offset from midnight
	end   time.Duration
	loc   *time.Location
}

// ParseWindow builds a Window from "HH:MM" boundaries and an IANA timezone.
func ParseWindow(start, end, timezone string) (Window, error) {
	s, err := time.Parse(clockLayout, start)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window start %q: %w", start, err)
	}
	e, err := time.Parse(clockLayout, end)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window end %q: %w", end, err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Window{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	w := Window{
		start: time.Duration(s.Hour())*time.Hour + time.Duration(s.Minute())*time.Minute,
		end:   time.Duration(e.Hour())*time.Hour + time.Duration(e.Minute())*time.Minute,
		loc:   loc,
	}
	if w.end <= w.start {
		return Window{}, fmt.Errorf("window end %q must be after start %q", end, start)
	}
	return w, nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.In(w.loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, w.loc)
	offset := t.Sub(midnight)
	return offset >= w.start && offset < w.end
}

// NextOpen returns the next window opening at or after t: today's open if t
// precedes it, otherwise tomorrow's.
func (w Window) NextOpen(t time.Time) time.Time {
	t = t.In(w.loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, w.loc)
	open := midnight.Add(w.start)
	if t.Before(open) {
		return open
	}
	return midnight.AddDate(0, 0, 1).Add(w.start)
}

// Close returns today's window close for t's date.
func (w Window) Close(t time.Time) time.Time {
	t = t.In(w.loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, w.loc)
	return midnight.Add(w.end)
}

func (w Window) String() string {
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("%s-%s %s",
		base.Add(w.start).Format(clockLayout),
		base.Add(w.end).Format(clockLayout),
		w.loc)
}
