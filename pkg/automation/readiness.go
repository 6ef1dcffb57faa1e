package automation

import (
	"context"
	"time"

	"github.com/entrhq/issuebridge/pkg/config"
	"github.com/entrhq/issuebridge/pkg/dom"
	"github.com/entrhq/issuebridge/pkg/logging"
)

// ReadyOutcome is the result of a readiness wait. It never carries an error:
// a timeout means the caller proceeds anyway.
type ReadyOutcome struct {
	Ready     bool
	TimedOut  bool
	Immediate bool
	Signal    string
	Waited    time.Duration
}

// ReadinessDetector waits for the Tracker application shell to mount.
type ReadinessDetector struct {
	locator *Locator
	timings config.Timings
	log     *logging.Logger
}

// NewReadinessDetector creates a detector that uses locator for the
// create-trigger signal.
func NewReadinessDetector(locator *Locator, timings config.Timings, log *logging.Logger) *ReadinessDetector {
	return &ReadinessDetector{locator: locator, timings: timings, log: log}
}

// signal returns what made the page count as ready, or "".
func (r *ReadinessDetector) signal(ctx context.Context, doc dom.Document) string {
	if sel, ok := r.locator.ShellPresent(ctx, doc); ok {
		return sel
	}
	if m := r.locator.CreateTrigger(ctx, doc); m.Found() {
		return "create trigger " + m.Strategy
	}
	return ""
}

// Wait checks readiness once, then observes mutations (with a poll as
// backstop) until ready or until the timeout. Readiness is followed by the
// settle delay; a timeout is not.
func (r *ReadinessDetector) Wait(ctx context.Context, doc dom.Document) (ReadyOutcome, error) {
	start := time.Now()
	out := ReadyOutcome{}

	if sig := r.signal(ctx, doc); sig != "" {
		r.log.Infof("Tracker already ready (%s)", sig)
		out.Ready, out.Immediate, out.Signal = true, true, sig
		err := Sleep(ctx, r.timings.ReadySettle)
		out.Waited = time.Since(start)
		return out, err
	}

	r.log.Infof("Waiting for Tracker to become ready...")
	changes, cancel, err := doc.Observe(ctx)
	if err != nil {
		r.log.Warnf("mutation observer unavailable, polling only: %v", err)
		changes, cancel = nil, func() {}
	}

	var sig string
	res, err := WaitFor(ctx, WaitOptions{
		Predicate: func(ctx context.Context) bool {
			sig = r.signal(ctx, doc)
			return sig != ""
		},
		Interval: r.timings.ReadyPollInterval,
		Timeout:  r.timings.ReadyTimeout,
		Changes:  changes,
	})
	cancel()
	if err != nil {
		out.Waited = time.Since(start)
		return out, err
	}

	if res.TimedOut {
		r.log.Warnf("Tracker ready timeout after %v, proceeding anyway", res.Elapsed.Round(time.Millisecond))
		out.TimedOut = true
		out.Waited = time.Since(start)
		return out, nil
	}

	r.log.Infof("Tracker became ready (%s)", sig)
	out.Ready, out.Signal = true, sig
	err = Sleep(ctx, r.timings.ReadySettle)
	out.Waited = time.Since(start)
	return out, err
}
