package session

import (
	"time"
)

// clock measures the time elapsed since its creation in whole steps.
type clock struct {
	origin time.Time
	step   time.Duration
}

func newClock(step time.Duration) (clock, error) {
	if step <= 0 {
		return clock{}, newError("invalid clock step %v", step)
	}
	return clock{origin: time.Now(), step: step}, nil
}

func (self clock) elapsed() time.Duration {
	return time.Since(self.origin)
}

// tickAt returns the step count corresponding to elapsed.
func (self clock) tickAt(elapsed time.Duration) int64 {
	return int64(elapsed / self.step)
}
