package automation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidTime = errors.New("time must be HH:MM in 24 hour format")

var cronDays = map[Weekday]int{
	Sunday:    0,
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
	Saturday:  6,
}

// ParseClock parses "HH:MM" into hour and minute
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t.Hour(), t.Minute(), nil
}

// CronSpec converts a time trigger to a standard 5 field cron expression.
// Triggers without days fire daily.
func CronSpec(t TimeTrigger) (string, error) {
	hour, minute, err := ParseClock(t.Time)
	if err != nil {
		return "", err
	}

	dow := "*"
	if days := DistinctDays(t.Days); len(days) > 0 && len(days) < len(Week) {
		nums := make([]int, 0, len(days))
		for _, d := range days {
			nums = append(nums, cronDays[d])
		}
		sort.Ints(nums)
		parts := make([]string, len(nums))
		for i, n := range nums {
			parts[i] = fmt.Sprintf("%d", n)
		}
		dow = strings.Join(parts, ",")
	}

	return fmt.Sprintf("%d %d * * %s", minute, hour, dow), nil
}

// IsOneShot reports whether a time trigger fires only once
func IsOneShot(t TimeTrigger) bool {
	return !t.Repeat && len(DistinctDays(t.Days)) == 0
}

// NextOccurrence returns the next time the trigger fires after from
func NextOccurrence(t TimeTrigger, from time.Time) (time.Time, error) {
	spec, err := CronSpec(t)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron %q: %w", spec, err)
	}
	return sched.Next(from), nil
}

// DistinctDays returns the known weekdays, deduplicated, in calendar order
func DistinctDays(days []Weekday) []Weekday {
	seen := make(map[Weekday]bool, len(days))
	for _, d := range days {
		seen[Weekday(strings.ToLower(string(d)))] = true
	}
	out := make([]Weekday, 0, len(seen))
	for _, d := range Week {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out
}
