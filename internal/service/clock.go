package service

import "time"

// Clock abstracts wall time so lifecycle timing can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Elapsed returns the active seconds since start. While paused, pausedAt
// stands in for now so the countdown stays frozen.
func Elapsed(start time.Time, pausedSeconds int, pausedAt *time.Time, now time.Time) int {
	end := now
	if pausedAt != nil && pausedAt.Before(now) {
		end = *pausedAt
	}
	secs := int(end.Sub(start)/time.Second) - pausedSeconds
	if secs < 0 {
		return 0
	}
	return secs
}

// Remaining returns limit - elapsed floored at zero, or nil for untimed tests.
func Remaining(limit *int, elapsed int) *int {
	if limit == nil {
		return nil
	}
	r := *limit - elapsed
	if r < 0 {
		r = 0
	}
	return &r
}

// PausedFor returns the whole seconds between pausedAt and now.
func PausedFor(pausedAt time.Time, now time.Time) int {
	d := int(now.Sub(pausedAt) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}
