package webhooks

import "time"

// MaxDeliveryAttempts caps the automatic retry ladder. Operators can requeue
// an exhausted delivery afterwards, which resets the counter.
const MaxDeliveryAttempts = 5

type RetryPolicy interface {
	// NextDelay returns how long to wait after the given failed attempt
	// number, starting at 1.
	NextDelay(attempt int) time.Duration
}

// ScheduleRetryPolicy walks a fixed ladder of delays. Attempts beyond the
// ladder reuse the last rung.
type ScheduleRetryPolicy struct {
	Schedule []time.Duration
}

func DefaultRetryPolicy() ScheduleRetryPolicy {
	return ScheduleRetryPolicy{
		Schedule: []time.Duration{
			time.Minute,
			5 * time.Minute,
			30 * time.Minute,
			2 * time.Hour,
			24 * time.Hour,
		},
	}
}

func (p ScheduleRetryPolicy) NextDelay(attempt int) time.Duration {
	schedule := p.Schedule
	if len(schedule) == 0 {
		schedule = DefaultRetryPolicy().Schedule
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(schedule) {
		attempt = len(schedule)
	}
	return schedule[attempt-1]
}
