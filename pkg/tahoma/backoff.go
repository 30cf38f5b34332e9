package tahoma

import "time"

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// BackoffDelay returns the wait before retry number attempt (0-based):
// base * 2^attempt, capped at backoffMax. Pure so the schedule can be
// tested without any I/O.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := backoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= backoffMax {
			return backoffMax
		}
	}
	return delay
}
