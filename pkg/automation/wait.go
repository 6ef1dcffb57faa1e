package automation

import (
	"context"
	"time"
)

// minInterval bounds busy polling when a caller passes a zero interval.
const minInterval = 10 * time.Millisecond

// WaitOptions describes one bounded wait. The predicate is evaluated immediately,
// on every Interval tick and on every value received from Changes.
type WaitOptions struct {
	Predicate func(ctx context.Context) bool
	Interval  time.Duration
	Timeout   time.Duration

	// Changes, when set, triggers an extra evaluation per notification.
	Changes <-chan struct{}

	// Retry runs once, RetryAfter into the wait, if the predicate still fails.
	RetryAfter time.Duration
	Retry      func(ctx context.Context)
}

// WaitResult reports how a wait ended. Exactly one of Satisfied and TimedOut
// is set when the returned error is nil.
type WaitResult struct {
	Satisfied bool
	TimedOut  bool
	Retried   bool
	Elapsed   time.Duration
}

// WaitFor blocks until the predicate holds or the timeout expires. It returns
// an error only when ctx ends first.
func WaitFor(ctx context.Context, opts WaitOptions) (WaitResult, error) {
	start := time.Now()
	result := WaitResult{}

	done := func() WaitResult {
		result.Elapsed = time.Since(start)
		return result
	}

	if err := ctx.Err(); err != nil {
		return done(), err
	}
	if opts.Predicate(ctx) {
		result.Satisfied = true
		return done(), nil
	}

	interval := opts.Interval
	if interval < minInterval {
		interval = minInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	var retryC <-chan time.Time
	if opts.Retry != nil && opts.RetryAfter < opts.Timeout {
		retry := time.NewTimer(opts.RetryAfter)
		defer retry.Stop()
		retryC = retry.C
	}

	for {
		select {
		case <-ctx.Done():
			return done(), ctx.Err()

		case <-deadline.C:
			// one last look so a change racing the deadline is not lost
			if opts.Predicate(ctx) {
				result.Satisfied = true
			} else {
				result.TimedOut = true
			}
			return done(), nil

		case <-retryC:
			retryC = nil
			if opts.Predicate(ctx) {
				result.Satisfied = true
				return done(), nil
			}
			opts.Retry(ctx)
			result.Retried = true

		case <-ticker.C:

		case _, ok := <-opts.Changes:
			if !ok {
				opts.Changes = nil
				continue
			}
		}

		if opts.Predicate(ctx) {
			result.Satisfied = true
			return done(), nil
		}
	}
}

// Sleep pauses for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
