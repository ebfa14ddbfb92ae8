package domain

import (
	"errors"
	"time"
)

// Frequency selects how often a recurring task is created.
type Frequency string

const (
	FrequencyDaily        Frequency = "daily"
	FrequencyTwicePerWeek Frequency = "twice_per_week"
)

// ErrUnknownFrequency is returned for a frequency outside the closed set.
var ErrUnknownFrequency = errors.New("unknown recurrence frequency")

// RecurrenceRule pairs a task type with how often the scheduler should
// create an instance of it. Rules are configuration, never mutated at
// runtime.
type RecurrenceRule struct {
	Type      TaskType  `mapstructure:"type"      json:"type"`
	Frequency Frequency `mapstructure:"frequency" json:"frequency"`
}

// Window is a half-open UTC interval [Start, End) used by the scheduler
// to decide whether a recurring task has already been created for the
// current period.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the half-open interval.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowFor computes the active window containing now for the given
// frequency. now may be in any location; windows are always UTC.
func WindowFor(freq Frequency, now time.Time) (Window, error) {
	switch freq {
	case FrequencyDaily:
		return dailyWindow(now.UTC()), nil
	case FrequencyTwicePerWeek:
		return twicePerWeekWindow(now.UTC()), nil
	default:
		return Window{}, ErrUnknownFrequency
	}
}

// dailyWindow is [today 00:00 UTC, tomorrow 00:00 UTC).
func dailyWindow(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// twicePerWeekWindow splits the week at fixed weekday boundaries:
// window 1 is Monday 00:00 through Thursday 00:00, window 2 is Thursday
// 00:00 through the following Monday 00:00. The boundary is the weekday
// index, not a rolling 3.5-day period, so Thursday 00:00:00 itself
// belongs to window 2.
func twicePerWeekWindow(now time.Time) Window {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	// Monday=0 .. Sunday=6
	dow := (int(day.Weekday()) + 6) % 7
	if dow <= 2 {
		start := day.AddDate(0, 0, -dow)
		return Window{Start: start, End: start.AddDate(0, 0, 3)}
	}
	start := day.AddDate(0, 0, -(dow - 3))
	return Window{Start: start, End: start.AddDate(0, 0, 4)}
}
