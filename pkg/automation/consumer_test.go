package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/issuebridge/pkg/config"
	"github.com/entrhq/issuebridge/pkg/intent"
)

func trackerMatcher(t *testing.T) *config.URLMatcher {
	t.Helper()
	m, err := config.NewURLMatcher(config.DefaultURLPatterns("https://acme.atlassian.net"))
	require.NoError(t, err)
	return m
}

func TestConsumerNoPending(t *testing.T) {
	host := newFakeTracker(t, withOpenForm())
	c := NewConsumer(intent.NewMemoryStore(), ConsumerOptions{Timings: testTimings(), Matcher: trackerMatcher(t)})

	res, err := c.ProcessPending(context.Background(), host.doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoPending, res.Outcome)
	assert.Nil(t, res.Report)
}

func TestConsumerPurgesStaleIntent(t *testing.T) {
	ctx := context.Background()
	host := newFakeTracker(t, withShell())
	rec := newRecord(t, "ABC", "")
	store := storeWith(t, rec)

	var transitions []State
	c := NewConsumer(store, ConsumerOptions{
		Timings:      testTimings(),
		Matcher:      trackerMatcher(t),
		Now:          func() time.Time { return rec.CreatedAt.Add(intent.DefaultStalenessWindow + time.Second) },
		OnTransition: func(s State) { transitions = append(transitions, s) },
	})

	res, err := c.ProcessPending(ctx, host.doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.Empty(t, transitions, "no fill sequence for an expired intent")
	assert.Zero(t, host.clicks.Load())

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsumerKeepsIntentOnForeignPage(t *testing.T) {
	ctx := context.Background()
	host := newFakeTracker(t, withOpenForm())
	host.doc.SetURL("https://board.example/projects/222")
	rec := newRecord(t, "", "")
	store := storeWith(t, rec)

	c := NewConsumer(store, ConsumerOptions{Timings: testTimings(), Matcher: trackerMatcher(t)})
	res, err := c.ProcessPending(ctx, host.doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWrongPage, res.Outcome)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
}

func TestConsumerDropsWakeUpWhileBusy(t *testing.T) {
	host := newFakeTracker(t, withOpenForm())
	rec := newRecord(t, "", "")
	store := storeWith(t, rec)
	c := NewConsumer(store, ConsumerOptions{Timings: testTimings(), Matcher: trackerMatcher(t)})

	c.busy.Store(true)
	res, err := c.ProcessPending(context.Background(), host.doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBusy, res.Outcome)

	got, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got, "a dropped wake-up leaves the intent alone")
}

func TestConsumerProcessesFreshIntent(t *testing.T) {
	ctx := context.Background()
	host := newFakeTracker(t, withShell())
	rec := newRecord(t, "ABC", "")
	store := storeWith(t, rec)
	c := NewConsumer(store, ConsumerOptions{Timings: testTimings(), Matcher: trackerMatcher(t)})

	res, err := c.ProcessPending(ctx, host.doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.NotNil(t, res.Report)
	assert.Equal(t, rec.ID, res.Report.RecordID)
	assert.False(t, c.Busy())

	assert.Equal(t, "Fix login bug", host.value(`input[name="summary"]`))
	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	res, err = c.ProcessPending(ctx, host.doc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoPending, res.Outcome, "a record is consumed once")
}

func TestConsumerWakesOnSlotChange(t *testing.T) {
	ctx := context.Background()
	host := newFakeTracker(t, withOpenForm())
	slot := intent.NewSlot(intent.NewMemoryStore())
	c := NewConsumer(slot.Store(), ConsumerOptions{Timings: testTimings(), Matcher: trackerMatcher(t)})

	results := make(chan Result, 1)
	unsubscribe := slot.OnChange(func(*intent.Record) {
		go func() {
			res, _ := c.ProcessPending(ctx, host.doc)
			results <- res
		}()
	})
	defer unsubscribe()

	require.NoError(t, slot.Put(ctx, newRecord(t, "", "")))

	select {
	case res := <-results:
		assert.Equal(t, OutcomeProcessed, res.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer was not woken by the slot change")
	}
	assert.Equal(t, "Fix login bug", host.value(`input[name="summary"]`))
}
