package automation

import (
	"bytes"
	"context"
	"sync"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/issuebridge/pkg/intent"
	"github.com/entrhq/issuebridge/pkg/logging"
)

type fakeClipboard struct {
	mu      sync.Mutex
	written []string
}

func (c *fakeClipboard) WriteAll(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, text)
	return nil
}

func newRecord(t *testing.T, project, issueType string) *intent.Record {
	t.Helper()
	rec, err := intent.New("  Fix   login bug ", "https://board.example/projects/222/todos/9", time.Now())
	require.NoError(t, err)
	rec.TargetProjectKey = project
	rec.IssueType = issueType
	return rec
}

func storeWith(t *testing.T, rec *intent.Record) *intent.MemoryStore {
	t.Helper()
	store := intent.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), rec))
	return store
}

func TestSequencerEndToEnd(t *testing.T) {
	ctx := context.Background()
	host := newFakeTracker(t, withShellDelay(100*time.Millisecond))
	rec := newRecord(t, "ABC", "Bug")
	store := storeWith(t, rec)

	var logBuf bytes.Buffer
	var transitions []State
	seq := NewSequencer(store, SequencerOptions{
		Timings:      testTimings(),
		Log:          logging.NewWriterLogger("sequencer", &logBuf),
		OnTransition: func(s State) { transitions = append(transitions, s) },
	})

	rep := seq.Run(ctx, host.doc, rec)
	require.NoError(t, rep.Err)

	want := []State{
		StateIdle, StateWaitingReady, StateOpeningForm, StateSelectingProject,
		StateSelectingType, StateFillingSummary, StateFillingURL, StateDone,
	}
	assert.Equal(t, want, rep.States)
	assert.Equal(t, want, transitions)

	assert.True(t, rep.Ready.Ready)
	assert.False(t, rep.Ready.Immediate)
	assert.True(t, rep.FormOpened)
	assert.Equal(t, 1, rep.TriggerClicks)
	assert.False(t, rep.RetryClicked)

	assert.Equal(t, "ABC", host.selectedProject())
	assert.EqualValues(t, 2, host.rerender.Load(), "both selections re-rendered the form")
	assert.Equal(t, 2*testTimings().PickerStepDelay, rep.PreSummaryDelay)

	// the summary and url land in the re-rendered form
	assert.Equal(t, "Fix login bug", host.value(`input[name="summary"]`))
	assert.Equal(t, rec.SourceURL, host.value(`#ext`))
	assert.Equal(t, "ABC", host.value(`input[id^="project-"]`))
	assert.Equal(t, "Bug", host.value(`input[id^="type-picker-"]`))

	for _, f := range []Field{FieldProject, FieldIssueType, FieldSummary, FieldExternalURL} {
		assert.True(t, rep.Fields[f].Filled, "field %s", f)
	}
	assert.Equal(t, "label", rep.Fields[FieldExternalURL].Strategy)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "slot is empty after the run")
	assert.True(t, rep.Cleared)

	assert.Contains(t, logBuf.String(), logging.Tag+" [sequencer] [INFO] state FillingUrl")
}

func TestSequencerSkipsMissingPickers(t *testing.T) {
	host := newFakeTracker(t, withOpenForm())
	rec := newRecord(t, "", "")
	seq := NewSequencer(storeWith(t, rec), SequencerOptions{Timings: testTimings()})

	start := time.Now()
	rep := seq.Run(context.Background(), host.doc, rec)
	elapsed := time.Since(start)
	require.NoError(t, rep.Err)

	assert.Zero(t, rep.PreSummaryDelay)
	assert.NotContains(t, rep.States, StateSelectingProject)
	assert.NotContains(t, rep.States, StateSelectingType)
	assert.True(t, rep.Fields[FieldProject].Skipped)
	assert.True(t, rep.Fields[FieldIssueType].Skipped)
	assert.Less(t, elapsed, testTimings().ReadySettle+testTimings().FormAlreadyOpenSettle+testTimings().PickerStepDelay+testTimings().URLAfterSummary)
	assert.Equal(t, "Fix login bug", host.value(`input[name="summary"]`))
}

func TestSequencerProjectOnly(t *testing.T) {
	host := newFakeTracker(t, withOpenForm())
	rec := newRecord(t, "ABC", "")
	seq := NewSequencer(storeWith(t, rec), SequencerOptions{Timings: testTimings()})

	rep := seq.Run(context.Background(), host.doc, rec)
	require.NoError(t, rep.Err)

	assert.Equal(t, testTimings().PickerStepDelay, rep.PreSummaryDelay)
	assert.Contains(t, rep.States, StateSelectingProject)
	assert.NotContains(t, rep.States, StateSelectingType)
	assert.Equal(t, "ABC", host.selectedProject())
}

func TestSequencerPickerInputMissingStillWaits(t *testing.T) {
	host := newFakeTracker(t, withoutPickers(), withOpenForm())
	rec := newRecord(t, "ABC", "")
	seq := NewSequencer(storeWith(t, rec), SequencerOptions{Timings: testTimings()})

	start := time.Now()
	rep := seq.Run(context.Background(), host.doc, rec)
	require.NoError(t, rep.Err)

	assert.False(t, rep.Fields[FieldProject].Filled)
	assert.Contains(t, rep.Fields[FieldProject].Note, "not found")
	assert.Equal(t, testTimings().PickerStepDelay, rep.PreSummaryDelay)
	assert.GreaterOrEqual(t, time.Since(start), testTimings().PickerStepDelay)
	assert.True(t, rep.Fields[FieldSummary].Filled)
}

func TestSequencerFormAlreadyOpen(t *testing.T) {
	host := newFakeTracker(t, withOpenForm())
	rec := newRecord(t, "", "")
	seq := NewSequencer(storeWith(t, rec), SequencerOptions{Timings: testTimings()})

	rep := seq.Run(context.Background(), host.doc, rec)
	require.NoError(t, rep.Err)

	assert.True(t, rep.FormAlreadyOpen)
	assert.Zero(t, rep.TriggerClicks)
	assert.Zero(t, host.clicks.Load(), "no click when the form is open")
	assert.True(t, rep.Ready.Immediate)
}

func TestSequencerRetriesTriggerOnce(t *testing.T) {
	host := newFakeTracker(t, withShell(), ignoringFirstClicks(1))
	rec := newRecord(t, "", "")
	seq := NewSequencer(storeWith(t, rec), SequencerOptions{Timings: testTimings()})

	rep := seq.Run(context.Background(), host.doc, rec)
	require.NoError(t, rep.Err)

	assert.Equal(t, 2, rep.TriggerClicks)
	assert.True(t, rep.RetryClicked)
	assert.True(t, rep.FormOpened)
	assert.EqualValues(t, 2, host.clicks.Load())
	assert.Equal(t, "Fix login bug", host.value(`input[name="summary"]`))
}

func TestSequencerFormNeverOpens(t *testing.T) {
	host := newFakeTracker(t, withShell(), ignoringFirstClicks(100))
	rec := newRecord(t, "", "")
	store := storeWith(t, rec)
	seq := NewSequencer(store, SequencerOptions{Timings: testTimings()})

	rep := seq.Run(context.Background(), host.doc, rec)
	require.NoError(t, rep.Err)

	assert.True(t, rep.FormTimedOut)
	assert.False(t, rep.FormOpened)
	assert.Equal(t, 2, rep.TriggerClicks, "one click and exactly one retry")
	assert.False(t, rep.Fields[FieldSummary].Filled)
	assert.Equal(t, StateDone, rep.States[len(rep.States)-1])

	got, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSequencerReadinessTimeout(t *testing.T) {
	host := newFakeTracker(t)
	rec := newRecord(t, "", "")

	timings := testTimings()
	timings.ReadyTimeout = 50 * time.Millisecond
	timings.FormOpenTimeout = 50 * time.Millisecond
	timings.FormRetryAfter = 20 * time.Millisecond
	seq := NewSequencer(storeWith(t, rec), SequencerOptions{Timings: timings})

	rep := seq.Run(context.Background(), host.doc, rec)
	require.NoError(t, rep.Err)
	assert.True(t, rep.Ready.TimedOut)
	assert.False(t, rep.Ready.Ready)
	assert.Contains(t, rep.States, StateOpeningForm, "proceeds after the timeout")
	assert.Zero(t, rep.TriggerClicks)
}

func TestSequencerClipboardFallback(t *testing.T) {
	host := newFakeTracker(t, withoutURLField(), withOpenForm())
	rec := newRecord(t, "", "")
	clip := &fakeClipboard{}
	seq := NewSequencer(storeWith(t, rec), SequencerOptions{Timings: testTimings(), Clipboard: clip})

	rep := seq.Run(context.Background(), host.doc, rec)
	require.NoError(t, rep.Err)

	assert.True(t, rep.CopiedToClipboard)
	assert.False(t, rep.Fields[FieldExternalURL].Filled)
	assert.Equal(t, []string{rec.SourceURL}, clip.written)
}

func TestSequencerCancelStillClears(t *testing.T) {
	host := newFakeTracker(t, withShell())
	rec := newRecord(t, "ABC", "Bug")
	store := storeWith(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	seq := NewSequencer(store, SequencerOptions{
		Timings: testTimings(),
		OnTransition: func(s State) {
			if s == StateSelectingProject {
				cancel()
			}
		},
	})

	rep := seq.Run(ctx, host.doc, rec)
	assert.ErrorIs(t, rep.Err, context.Canceled)
	assert.Equal(t, StateDone, rep.States[len(rep.States)-1])
	assert.NotContains(t, rep.States, StateFillingSummary)

	got, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSequencerKeepsIntentWrittenDuringRun(t *testing.T) {
	ctx := context.Background()
	host := newFakeTracker(t, withOpenForm())
	rec := newRecord(t, "", "")
	store := storeWith(t, rec)

	newer, err := intent.New("Second issue", "https://board.example/projects/111/todos/3", time.Now())
	require.NoError(t, err)

	seq := NewSequencer(store, SequencerOptions{
		Timings: testTimings(),
		OnTransition: func(s State) {
			if s == StateFillingSummary {
				require.NoError(t, store.Put(ctx, newer))
			}
		},
	})

	rep := seq.Run(ctx, host.doc, rec)
	require.NoError(t, rep.Err)
	assert.Equal(t, StateDone, rep.States[len(rep.States)-1])

	got, err := store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got, "the newer intent must survive the run")
	assert.Equal(t, newer.ID, got.ID)
	assert.False(t, rep.Cleared)
	assert.True(t, rep.Superseded)
}

func TestTrimForLog(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short", in: "  Platform   (PLAT) ", want: "Platform (PLAT)"},
		{name: "ascii cut", in: strings.Repeat("a", 100), want: strings.Repeat("a", 80) + "..."},
		{name: "multibyte cut", in: strings.Repeat("é", 79) + "日本語", want: strings.Repeat("é", 79) + "日..."},
		{name: "multibyte fits", in: strings.Repeat("日", 80), want: strings.Repeat("日", 80)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trimForLog(tt.in)
			assert.True(t, utf8.ValidString(got))
			assert.Equal(t, tt.want, got)
		})
	}
}
