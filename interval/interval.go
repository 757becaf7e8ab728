// Package interval computes the next run instant for recurring jobs.
// A recurrence specifier is either a 5-field cron expression, a cron
// descriptor like "@every 30s" or "@hourly", a Go duration string, or
// a bare integer interpreted as milliseconds.
package interval

import (
	"fmt"
	"strconv"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Next returns the first run instant strictly after from for the given
// recurrence specifier.
func Next(spec string, from time.Time) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("interval: empty specifier")
	}

	if d, err := parseDuration(spec); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("interval: non-positive interval %q", spec)
		}
		return from.Add(d), nil
	}

	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("interval: parse %q: %w", spec, err)
	}
	return schedule.Next(from), nil
}

// parseDuration accepts Go duration strings and bare-integer milliseconds.
func parseDuration(spec string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(spec, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(spec)
}
