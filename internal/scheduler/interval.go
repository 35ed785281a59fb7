// Package scheduler computes cron intervals and optionally triggers suites
// from an in-process cron.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval returns the gap between the next two activations of a standard
// five-field cron expression after now.
func Interval(spec string, now time.Time) (time.Duration, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	first := schedule.Next(now)
	second := schedule.Next(first)
	if first.IsZero() || second.IsZero() {
		return 0, fmt.Errorf("schedule %q never fires", spec)
	}
	return second.Sub(first), nil
}

// Next returns the next activation of spec after now.
func Next(spec string, now time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule.Next(now), nil
}
