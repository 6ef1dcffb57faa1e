package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/issuebridge/pkg/config"
	"github.com/entrhq/issuebridge/pkg/dom"
	"github.com/entrhq/issuebridge/pkg/intent"
	"github.com/entrhq/issuebridge/pkg/logging"
)

// State is a step of the fill sequence. A run visits the states in order and
// skips the picker states whose field is absent from the record.
type State string

const (
	StateIdle             State = "Idle"
	StateWaitingReady     State = "WaitingReady"
	StateOpeningForm      State = "OpeningForm"
	StateSelectingProject State = "SelectingProject"
	StateSelectingType    State = "SelectingType"
	StateFillingSummary   State = "FillingSummary"
	StateFillingURL       State = "FillingUrl"
	StateDone             State = "Done"
)

// Field names a form field the sequencer populates.
type Field string

const (
	FieldProject     Field = "project"
	FieldIssueType   Field = "issue_type"
	FieldSummary     Field = "summary"
	FieldExternalURL Field = "external_url"
)

// FieldOutcome records what happened to one field.
type FieldOutcome struct {
	Filled   bool
	Skipped  bool
	Strategy string
	Option   string
	Note     string
}

// Report describes one sequencer run.
type Report struct {
	RecordID string
	States   []State
	Fields   map[Field]FieldOutcome

	Ready           ReadyOutcome
	FormOpened      bool
	FormAlreadyOpen bool
	FormTimedOut    bool
	TriggerClicks   int
	RetryClicked    bool

	// PreSummaryDelay is the picker time budgeted before the summary fill:
	// one PickerStepDelay per picker field present in the record.
	PreSummaryDelay   time.Duration
	CopiedToClipboard bool

	// Cleared means the processed record was removed from the slot.
	// Superseded means a newer record had replaced it and was left in place.
	Cleared    bool
	Superseded bool
	Err               error
}

// Clipboard receives the source URL when no external-link field exists.
type Clipboard interface {
	WriteAll(text string) error
}

// SequencerOptions configures a Sequencer.
type SequencerOptions struct {
	Timings   config.Timings
	Log       *logging.Logger
	Clipboard Clipboard

	// OnTransition, when set, is called synchronously on every state entry.
	OnTransition func(State)
}

// Sequencer drives the Tracker's create form for one intent record.
type Sequencer struct {
	store     intent.Store
	locator   *Locator
	readiness *ReadinessDetector
	timings   config.Timings
	clipboard Clipboard
	onState   func(State)
	log       *logging.Logger
}

// NewSequencer creates a sequencer that clears the processed record from store
// when a run ends.
func NewSequencer(store intent.Store, opts SequencerOptions) *Sequencer {
	log := opts.Log
	if log == nil {
		log = logging.NewWriterLogger("sequencer", nil)
	}
	locator := NewLocator(log.With("locator"))
	return &Sequencer{
		store:     store,
		locator:   locator,
		readiness: NewReadinessDetector(locator, opts.Timings, log.With("readiness")),
		timings:   opts.Timings,
		clipboard: opts.Clipboard,
		onState:   opts.OnTransition,
		log:       log,
	}
}

// Locator returns the locator the sequencer uses.
func (s *Sequencer) Locator() *Locator {
	return s.locator
}

func (s *Sequencer) enter(rep *Report, st State) {
	rep.States = append(rep.States, st)
	s.log.Infof("state %s", st)
	if s.onState != nil {
		s.onState(st)
	}
}

// Run executes the whole sequence for rec against doc. When the run ends the
// slot is cleared if it still holds rec, whether the run completed, hit a
// missing field or ctx was cancelled; the returned report carries ctx's error
// in the last case.
func (s *Sequencer) Run(ctx context.Context, doc dom.Document, rec *intent.Record) *Report {
	rep := &Report{
		RecordID: rec.ID,
		Fields:   make(map[Field]FieldOutcome),
	}
	s.enter(rep, StateIdle)

	defer func() {
		clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		cleared, err := s.store.ClearIf(clearCtx, rec.ID)
		switch {
		case err != nil:
			s.log.Errorf("failed to clear pending intent %s: %v", rec.ID, err)
		case cleared:
			rep.Cleared = true
		default:
			rep.Superseded = true
			s.log.Infof("Pending intent %s was replaced during the run, keeping the newer one", rec.ID)
		}
		s.enter(rep, StateDone)
	}()

	if err := s.run(ctx, doc, rec, rep); err != nil {
		rep.Err = err
		s.log.Warnf("sequence for %s interrupted: %v", rec.ID, err)
	}
	return rep
}

func (s *Sequencer) run(ctx context.Context, doc dom.Document, rec *intent.Record, rep *Report) error {
	s.enter(rep, StateWaitingReady)
	ready, err := s.readiness.Wait(ctx, doc)
	rep.Ready = ready
	if err != nil {
		return err
	}

	s.enter(rep, StateOpeningForm)
	if err := s.openForm(ctx, doc, rep); err != nil {
		return err
	}

	if rec.HasProject() {
		s.enter(rep, StateSelectingProject)
		if err := s.pick(ctx, doc, rep, FieldProject, s.locator.ProjectPicker, rec.TargetProjectKey); err != nil {
			return err
		}
		rep.PreSummaryDelay += s.timings.PickerStepDelay
	} else {
		rep.Fields[FieldProject] = FieldOutcome{Skipped: true, Note: "no target project"}
	}

	if rec.HasIssueType() {
		s.enter(rep, StateSelectingType)
		if err := s.pick(ctx, doc, rep, FieldIssueType, s.locator.TypePicker, rec.IssueType); err != nil {
			return err
		}
		rep.PreSummaryDelay += s.timings.PickerStepDelay
	} else {
		rep.Fields[FieldIssueType] = FieldOutcome{Skipped: true, Note: "no issue type"}
	}

	s.enter(rep, StateFillingSummary)
	rep.Fields[FieldSummary] = s.fill(ctx, s.locator.SummaryInput(ctx, doc), rec.Summary, "summary")
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := Sleep(ctx, s.timings.URLAfterSummary); err != nil {
		return err
	}

	s.enter(rep, StateFillingURL)
	field := s.locator.ExternalURLField(ctx, doc)
	outcome := s.fill(ctx, field, rec.SourceURL, "external url")
	if !field.Found() && s.clipboard != nil {
		if err := s.clipboard.WriteAll(rec.SourceURL); err != nil {
			s.log.Warnf("failed to copy source url to clipboard: %v", err)
		} else {
			rep.CopiedToClipboard = true
			outcome.Note = "copied source url to clipboard"
			s.log.Infof("Source URL copied to clipboard for manual paste")
		}
	}
	rep.Fields[FieldExternalURL] = outcome
	return ctx.Err()
}

// openForm makes sure the create form is open. An open form is left alone;
// otherwise the trigger is clicked once, and once more at FormRetryAfter if
// the form has not appeared.
func (s *Sequencer) openForm(ctx context.Context, doc dom.Document, rep *Report) error {
	if s.locator.SummaryInput(ctx, doc).Found() {
		s.log.Infof("Create form already open")
		rep.FormOpened, rep.FormAlreadyOpen = true, true
		return Sleep(ctx, s.timings.FormAlreadyOpenSettle)
	}

	click := func(ctx context.Context) bool {
		m := s.locator.CreateTrigger(ctx, doc)
		if !m.Found() {
			return false
		}
		if err := m.Element.Click(ctx); err != nil {
			s.log.Warnf("create trigger click failed: %v", err)
			return false
		}
		rep.TriggerClicks++
		s.log.Infof("Clicked Create button (%s)", m.Strategy)
		return true
	}

	if !click(ctx) {
		s.log.Infof("Create button not found, will keep polling...")
	}

	res, err := WaitFor(ctx, WaitOptions{
		Predicate: func(ctx context.Context) bool {
			return s.locator.SummaryInput(ctx, doc).Found()
		},
		Interval:   s.timings.FormPollInterval,
		Timeout:    s.timings.FormOpenTimeout,
		RetryAfter: s.timings.FormRetryAfter,
		Retry: func(ctx context.Context) {
			if click(ctx) {
				rep.RetryClicked = true
				s.log.Infof("Retried Create button click")
			} else {
				s.log.Infof("Create button still not found at %v", s.timings.FormRetryAfter)
			}
		},
	})
	if err != nil {
		return err
	}

	if res.TimedOut {
		rep.FormTimedOut = true
		s.log.Warnf("Timed out waiting for Create form, proceeding")
		return nil
	}

	rep.FormOpened = true
	s.log.Infof("Create form detected after %v", res.Elapsed.Round(time.Millisecond))
	return Sleep(ctx, s.timings.FormDetectedSettle)
}

// pick fills a picker and clicks an option. The step always occupies
// PickerStepDelay from its start, whether or not the picker was found.
func (s *Sequencer) pick(ctx context.Context, doc dom.Document, rep *Report, field Field, find func(context.Context, dom.Document) Match, value string) error {
	start := time.Now()
	outcome := FieldOutcome{}

	m := find(ctx, doc)
	if !m.Found() {
		outcome.Note = fmt.Sprintf("%s input not found", field)
		s.log.Infof("%s input not found", field)
	} else {
		outcome.Strategy = m.Strategy
		s.log.Infof("Selecting %s %q via %s", field, value, m.Element.Describe(ctx))
		if err := m.Element.Focus(ctx); err != nil {
			s.log.Warnf("%s focus failed: %v", field, err)
		}
		if err := m.Element.SetValue(ctx, value); err != nil {
			outcome.Note = fmt.Sprintf("set value failed: %v", err)
			s.log.Warnf("%s set value failed: %v", field, err)
		} else {
			if err := Sleep(ctx, s.timings.OptionRenderDelay); err != nil {
				rep.Fields[field] = outcome
				return err
			}
			opt := s.locator.Option(ctx, doc, value)
			if !opt.Found() {
				outcome.Note = "no option rendered after filtering"
				s.log.Infof("No %s option found after filtering", field)
			} else {
				text, _ := opt.Element.TextContent(ctx)
				outcome.Option = trimForLog(text)
				if err := opt.Element.Click(ctx); err != nil {
					outcome.Note = fmt.Sprintf("option click failed: %v", err)
					s.log.Warnf("%s option click failed: %v", field, err)
				} else {
					outcome.Filled = true
					s.log.Infof("Clicked %s option: %s", field, outcome.Option)
				}
			}
		}
	}
	rep.Fields[field] = outcome

	return Sleep(ctx, s.timings.PickerStepDelay-time.Since(start))
}

func (s *Sequencer) fill(ctx context.Context, m Match, value, what string) FieldOutcome {
	if !m.Found() {
		s.log.Infof("%s input not found", what)
		return FieldOutcome{Note: what + " input not found"}
	}
	if err := m.Element.SetValue(ctx, value); err != nil {
		s.log.Warnf("%s fill failed: %v", what, err)
		return FieldOutcome{Strategy: m.Strategy, Note: err.Error()}
	}
	s.log.Infof("%s filled (%s)", what, m.Strategy)
	return FieldOutcome{Filled: true, Strategy: m.Strategy}
}

func trimForLog(s string) string {
	const max = 80
	s = intent.NormalizeSummary(s)
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
