// Package watchdog enforces a maximum gap between successfully parsed values.
package watchdog

import (
	"errors"
	"fmt"
	"time"
)

var ErrTimedOut = errors.New("watchdog timed out")

// TimeoutError is returned by Check once the gap exceeded the limit.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no valid value for %v, watchdog limit is %v", e.Elapsed, e.Limit)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimedOut
}

// Watchdog tracks the time of the last successful parse.
// Not safe for concurrent use, it belongs to the ingestion loop.
type Watchdog struct {
	limit time.Duration
	last  time.Time
}

// New starts the watchdog clock at now. A limit <= 0 disables it.
func New(limit time.Duration, now time.Time) *Watchdog {
	if limit < 0 {
		limit = 0
	}
	return &Watchdog{limit: limit, last: now}
}

func (w *Watchdog) Enabled() bool {
	return w.limit > 0
}

func (w *Watchdog) Limit() time.Duration {
	return w.limit
}

func (w *Watchdog) LastReset() time.Time {
	return w.last
}

func (w *Watchdog) Elapsed(now time.Time) time.Duration {
	return now.Sub(w.last)
}

// Check fails only when the elapsed time strictly exceeds the limit.
func (w *Watchdog) Check(now time.Time) error {
	if !w.Enabled() {
		return nil
	}
	if elapsed := w.Elapsed(now); elapsed > w.limit {
		return &TimeoutError{Elapsed: elapsed, Limit: w.limit}
	}
	return nil
}

// Reset must be called once per successfully parsed value, and only then.
func (w *Watchdog) Reset(now time.Time) {
	w.last = now
}
