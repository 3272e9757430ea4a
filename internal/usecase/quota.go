package usecase

import (
	"fmt"
	"time"
)

// Decision is the quota policy outcome for one inbound message.
type Decision int

const (
	// Serve runs the normal completion flow.
	Serve Decision = iota
	// Upsell redirects the user to the payment flow instead of a completion.
	Upsell
)

func (d Decision) String() string {
	if d == Upsell {
		return "upsell"
	}
	return "serve"
}

// Decide applies the daily quota: at or above the threshold the user is
// redirected to the upsell. Pure, no I/O.
func Decide(countToday, threshold int) Decision {
	if countToday >= threshold {
		return Upsell
	}
	return Serve
}

// FailMode selects the degradation behavior when today's count cannot be
// fetched.
type FailMode int

const (
	// FailOpen grants service on a count-fetch failure (count treated as 0).
	FailOpen FailMode = iota
	// FailClosed denies service on a count-fetch failure (count treated as
	// at-threshold, redirecting to the upsell).
	FailClosed
)

// ParseFailMode maps the QUOTA_FAIL_MODE configuration value.
func ParseFailMode(s string) (FailMode, error) {
	switch s {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("usecase: unknown fail mode %q", s)
	}
}

// DayWindow returns the half-open interval [start-of-day, start-of-next-day)
// containing now in the given reference timezone.
func DayWindow(now time.Time, loc *time.Location) (start, end time.Time) {
	local := now.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1)
	return start, end
}
