package automation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/entrhq/issuebridge/pkg/config"
	"github.com/entrhq/issuebridge/pkg/dom"
	"github.com/entrhq/issuebridge/pkg/intent"
	"github.com/entrhq/issuebridge/pkg/logging"
)

// Outcome classifies a ProcessPending call.
type Outcome string

const (
	OutcomeNoPending Outcome = "no-pending"
	OutcomeExpired   Outcome = "expired"
	OutcomeWrongPage Outcome = "wrong-page"
	OutcomeBusy      Outcome = "busy"
	OutcomeProcessed Outcome = "processed"
)

// Result is what one wake-up of the consumer did.
type Result struct {
	Outcome Outcome
	Record  *intent.Record
	Report  *Report
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Timings   config.Timings
	Matcher   *config.URLMatcher
	Clipboard Clipboard
	Log       *logging.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	OnTransition func(State)
}

// Consumer reads the pending intent and, when it is fresh and the page is a
// Tracker page, runs the fill sequence. Wake-ups that arrive while a run is in
// progress are dropped.
type Consumer struct {
	store   intent.Store
	seq     *Sequencer
	matcher *config.URLMatcher
	timings config.Timings
	now     func() time.Time
	log     *logging.Logger
	busy    atomic.Bool
}

// NewConsumer creates a consumer over store.
func NewConsumer(store intent.Store, opts ConsumerOptions) *Consumer {
	log := opts.Log
	if log == nil {
		log = logging.NewWriterLogger("consumer", nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Consumer{
		store: store,
		seq: NewSequencer(store, SequencerOptions{
			Timings:      opts.Timings,
			Log:          log.With("sequencer"),
			Clipboard:    opts.Clipboard,
			OnTransition: opts.OnTransition,
		}),
		matcher: opts.Matcher,
		timings: opts.Timings,
		now:     now,
		log:     log,
	}
}

// Sequencer returns the underlying sequencer.
func (c *Consumer) Sequencer() *Sequencer {
	return c.seq
}

// Busy reports whether a run is in progress.
func (c *Consumer) Busy() bool {
	return c.busy.Load()
}

// ProcessPending handles one wake-up: page load, slot change or manual trigger.
func (c *Consumer) ProcessPending(ctx context.Context, doc dom.Document) (Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		c.log.Infof("Already processing a pending intent, ignoring wake-up")
		return Result{Outcome: OutcomeBusy}, nil
	}
	defer c.busy.Store(false)

	rec, err := c.store.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read pending intent: %w", err)
	}
	if rec == nil {
		c.log.Infof("No pending task found")
		return Result{Outcome: OutcomeNoPending}, nil
	}

	if rec.IsStale(c.now(), c.timings.StalenessWindow) {
		c.log.Infof("Pending intent %s expired (age %v), removing", rec.ID, rec.Age(c.now()).Round(time.Second))
		if _, err := c.store.ClearIf(ctx, rec.ID); err != nil {
			return Result{Outcome: OutcomeExpired, Record: rec}, fmt.Errorf("failed to clear expired intent: %w", err)
		}
		return Result{Outcome: OutcomeExpired, Record: rec}, nil
	}

	if url := doc.URL(); !c.matcher.Match(url) {
		c.log.Infof("Page %s is not a Tracker page, leaving intent %s pending", url, rec.ID)
		return Result{Outcome: OutcomeWrongPage, Record: rec}, nil
	}

	c.log.Infof("Found pending task: %s", rec.Summary)
	rep := c.seq.Run(ctx, doc, rec)
	return Result{Outcome: OutcomeProcessed, Record: rec, Report: rep}, rep.Err
}
