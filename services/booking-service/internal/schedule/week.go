// Package schedule decides whether a slot lies inside the station's working hours and keeps
// the weekly schedule loaded from disk.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day in minutes since midnight; 24:00 (1440) is allowed as a closing time.
type Clock int

const endOfDay Clock = 24 * 60

func ParseClock(raw string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", raw)
	}
	return Clock(h*60 + m), nil
}

func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start Clock
	End   Clock
}

func (i Interval) Contains(c Clock) bool {
	return i.Start <= c && c < i.End
}

// Day is one working day: open during Open, closed during Break if set.
type Day struct {
	Open  Interval
	Break *Interval
}

func (d Day) validate() error {
	if d.Open.Start >= d.Open.End {
		return fmt.Errorf("start %s must be before end %s", d.Open.Start, d.Open.End)
	}
	if d.Break == nil {
		return nil
	}
	if d.Break.Start >= d.Break.End {
		return fmt.Errorf("break start %s must be before break end %s", d.Break.Start, d.Break.End)
	}
	if d.Break.Start < d.Open.Start || d.Break.End > d.Open.End {
		return fmt.Errorf("break %s-%s must lie within %s-%s", d.Break.Start, d.Break.End, d.Open.Start, d.Open.End)
	}
	return nil
}

// Week holds Monday..Sunday; a nil entry is a day off.
type Week [7]*Day

// DayIndex maps a weekday to the Week index (Monday = 0, Sunday = 6).
func DayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

var dayNames = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func DayName(index int) string {
	if index < 0 || index >= len(dayNames) {
		return ""
	}
	return dayNames[index]
}

// Day returns the entry for t's weekday, or nil on a day off.
func (w Week) Day(t time.Time) *Day {
	return w[DayIndex(t.Weekday())]
}

// IsBookable reports whether t (read in its own location) falls in the working window of its
// weekday and outside that day's break. It never fails: a day off or any instant outside the
// window is simply not bookable.
func (w Week) IsBookable(t time.Time) bool {
	d := w.Day(t)
	if d == nil {
		return false
	}
	c := ClockOf(t)
	if !d.Open.Contains(c) {
		return false
	}
	if d.Break != nil && d.Break.Contains(c) {
		return false
	}
	return true
}

var ErrNoWorkingDays = errors.New("schedule has no working days")

// Validate checks every configured day. A week with no working day at all is rejected
// because it would make every booking fail.
func (w Week) Validate() error {
	working := 0
	for i, d := range w {
		if d == nil {
			continue
		}
		working++
		if err := d.validate(); err != nil {
			return fmt.Errorf("%s: %w", dayNames[i], err)
		}
	}
	if working == 0 {
		return ErrNoWorkingDays
	}
	return nil
}
