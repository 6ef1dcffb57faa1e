package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entrhq/issuebridge/pkg/config"
	"github.com/entrhq/issuebridge/pkg/dom/htmldom"
)

const trackerURL = "https://acme.atlassian.net/jira/your-work"

const shellMarkup = `<nav aria-label="Primary">
  <button data-testid="atlassian-navigation--create-button">Create</button>
</nav>
<main id="app"></main>`

// testTimings keeps the production ratios at a tenth of the duration.
func testTimings() config.Timings {
	return config.DefaultTimings().Scaled(0.1)
}

// fakeTracker plays the Tracker page on top of an htmldom document: it can
// mount its shell late, renders the create form some time after a trigger
// click, renders dropdown options when a picker receives input and tears the
// form down and re-renders it after an option is chosen.
type fakeTracker struct {
	t   *testing.T
	doc *htmldom.Document

	formDelay     time.Duration
	rerenderDelay time.Duration
	ignoreClicks  int32
	withURLField  bool
	withPickers   bool

	mu       sync.Mutex
	project  string
	itype    string
	clicks   atomic.Int32
	rerender atomic.Int32
	timers   []*time.Timer
}

type hostOption func(*fakeTracker)

func withShellDelay(d time.Duration) hostOption {
	return func(h *fakeTracker) {
		h.after(d, func() { h.mustSet("body", shellMarkup) })
	}
}

func withShell() hostOption {
	return func(h *fakeTracker) { h.mustSet("body", shellMarkup) }
}

func withOpenForm() hostOption {
	return func(h *fakeTracker) {
		h.mustSet("body", shellMarkup)
		h.renderForm()
	}
}

func ignoringFirstClicks(n int32) hostOption {
	return func(h *fakeTracker) { h.ignoreClicks = n }
}

func withoutURLField() hostOption {
	return func(h *fakeTracker) { h.withURLField = false }
}

func withoutPickers() hostOption {
	return func(h *fakeTracker) { h.withPickers = false }
}

func newFakeTracker(t *testing.T, opts ...hostOption) *fakeTracker {
	t.Helper()
	doc, err := htmldom.ParseString(trackerURL, `<html><body><div id="loading">Loading…</div></body></html>`)
	require.NoError(t, err)

	h := &fakeTracker{
		t:             t,
		doc:           doc,
		formDelay:     60 * time.Millisecond,
		rerenderDelay: 40 * time.Millisecond,
		withURLField:  true,
		withPickers:   true,
	}
	t.Cleanup(h.stop)

	require.NoError(t, doc.OnClick(`[data-testid="atlassian-navigation--create-button"]`, func(*htmldom.Element) {
		n := h.clicks.Add(1)
		if n <= h.ignoreClicks {
			return
		}
		h.after(h.formDelay, h.renderForm)
	}))

	require.NoError(t, doc.OnClick(`[role="option"]`, func(el *htmldom.Element) {
		text, _ := el.TextContent(context.Background())
		key := strings.TrimSpace(text)
		h.mu.Lock()
		if strings.HasPrefix(key, "Type:") {
			h.itype = strings.TrimPrefix(key, "Type:")
		} else {
			h.project = key
		}
		h.mu.Unlock()

		// the selection unmounts the form and mounts a fresh one
		_, _ = h.doc.Remove("#create")
		h.after(h.rerenderDelay, func() {
			h.rerender.Add(1)
			h.renderForm()
		})
	}))

	doc.AddEventListener(nil, "input", func(ev htmldom.Event) {
		id, _, _ := ev.Target.Attribute(context.Background(), "id")
		value, _ := ev.Target.Value(context.Background())
		switch {
		case strings.HasPrefix(id, "project-"):
			h.mustSet("#options", fmt.Sprintf(
				`<div role="option">ENG</div><div role="option">%s</div>`, strings.ToUpper(value)))
		case strings.HasPrefix(id, "type-picker-"):
			h.mustSet("#options", fmt.Sprintf(`<div role="option">Type:%s</div>`, value))
		}
	})

	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *fakeTracker) after(d time.Duration, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timers = append(h.timers, time.AfterFunc(d, fn))
}

func (h *fakeTracker) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.timers {
		t.Stop()
	}
}

func (h *fakeTracker) mustSet(selector, markup string) {
	if _, err := h.doc.SetInnerHTML(selector, markup); err != nil {
		h.t.Errorf("set %s: %v", selector, err)
	}
}

func (h *fakeTracker) renderForm() {
	h.mu.Lock()
	project, itype := h.project, h.itype
	h.mu.Unlock()

	var b strings.Builder
	b.WriteString(`<form id="create">`)
	if h.withPickers {
		fmt.Fprintf(&b, `<input id="project-field-1" value=%q>`, project)
		fmt.Fprintf(&b, `<input id="type-picker-1" value=%q>`, itype)
	}
	b.WriteString(`<div id="options"></div><input name="summary">`)
	if h.withURLField {
		b.WriteString(`<div data-testid="external-url-field"><label>External URL</label><input id="ext"></div>`)
	}
	b.WriteString(`</form>`)

	if _, err := h.doc.SetInnerHTML("#app", b.String()); err != nil {
		h.t.Errorf("render form: %v", err)
	}
}

func (h *fakeTracker) value(selector string) string {
	h.t.Helper()
	el, err := h.doc.QuerySelector(context.Background(), selector)
	require.NoError(h.t, err)
	require.NotNil(h.t, el, "missing %s", selector)
	v, err := el.Value(context.Background())
	require.NoError(h.t, err)
	return v
}

func (h *fakeTracker) selectedProject() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.project
}
