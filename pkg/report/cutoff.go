package report

import (
	"fmt"
	"strings"
	"time"
)

// CutoffMode selects how the inclusive cutoff date is derived from the run time.
type CutoffMode string

const (
	// CutoffRolling keeps releases from the last N days.
	CutoffRolling CutoffMode = "rolling"

	// CutoffWeekStart keeps releases since the most recent week boundary.
	CutoffWeekStart CutoffMode = "week_start"
)

// ParseCutoffMode converts a configuration value into a CutoffMode.
func ParseCutoffMode(s string) (CutoffMode, error) {
	switch CutoffMode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")) {
	case CutoffRolling, "":
		return CutoffRolling, nil
	case CutoffWeekStart:
		return CutoffWeekStart, nil
	default:
		return "", fmt.Errorf("unknown cutoff mode %q (must be rolling or week_start)", s)
	}
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// Day truncates t to midnight UTC of its calendar day in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RollingWindow returns the first day of a window of days calendar days ending today.
// RollingWindow(now, 1) is today; RollingWindow(now, 7) keeps everything
// strictly newer than the same weekday last week.
func RollingWindow(now time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	return Day(now).AddDate(0, 0, -(days - 1))
}

// WeekStart returns the most recent day on or before now that falls on weekday.
func WeekStart(now time.Time, weekday time.Weekday) time.Time {
	today := Day(now)
	back := (int(today.Weekday()) - int(weekday) + 7) % 7
	return today.AddDate(0, 0, -back)
}

// Cutoff computes the cutoff for mode.
func Cutoff(mode CutoffMode, now time.Time, windowDays int, weekday time.Weekday) time.Time {
	if mode == CutoffWeekStart {
		return WeekStart(now, weekday)
	}
	return RollingWindow(now, windowDays)
}
