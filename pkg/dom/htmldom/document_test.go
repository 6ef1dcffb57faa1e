package htmldom

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html><body>
  <nav aria-label="Primary">
    <button data-testid="atlassian-navigation--create-button" class="btn primary">Create</button>
  </nav>
  <main id="main">
    <div data-testid="field-wrap"><label for="link">External URL</label><input id="link" name="customfield"></div>
  </main>
</body></html>`

func parse(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString("https://tracker.example/jira", page)
	require.NoError(t, err)
	return doc
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	doc := parse(t)

	assert.Equal(t, "https://tracker.example/jira", doc.URL())

	btn, err := doc.QuerySelector(ctx, `nav[aria-label="Primary"] button`)
	require.NoError(t, err)
	require.NotNil(t, btn)
	assert.Equal(t, `button.btn.primary[data-testid="atlassian-navigation--create-button"]`, btn.Describe(ctx))

	text, err := btn.TextContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Create", text)

	missing, err := doc.QuerySelector(ctx, "input[name=summary]")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = doc.QuerySelector(ctx, "input[")
	assert.Error(t, err)

	input, err := doc.ElementByID(ctx, "link")
	require.NoError(t, err)
	require.NotNil(t, input)

	wrap, err := input.Closest(ctx, "[data-testid]")
	require.NoError(t, err)
	require.NotNil(t, wrap)
	tid, ok, err := wrap.Attribute(ctx, "data-testid")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "field-wrap", tid)

	parent, err := input.Parent(ctx)
	require.NoError(t, err)
	assert.Equal(t, wrap.Describe(ctx), parent.Describe(ctx))

	inside, err := wrap.QuerySelectorAll(ctx, "input, label")
	require.NoError(t, err)
	assert.Len(t, inside, 2)

	none, err := doc.ElementByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSetValueDispatchesInputAndChangeOnce(t *testing.T) {
	ctx := context.Background()
	doc := parse(t)

	el, err := doc.ElementByID(ctx, "link")
	require.NoError(t, err)
	input := el.(*Element)

	counts := map[string]int{}
	var order []string
	for _, typ := range []string{"focus", "input", "change"} {
		typ := typ
		doc.AddEventListener(input, typ, func(ev Event) {
			counts[typ]++
			order = append(order, typ)
		})
	}
	bubbled := map[string]int{}
	doc.AddEventListener(nil, "input", func(Event) { bubbled["input"]++ })
	doc.AddEventListener(nil, "change", func(Event) { bubbled["change"]++ })
	doc.AddEventListener(nil, "focus", func(Event) { bubbled["focus"]++ })

	require.NoError(t, input.SetValue(ctx, "https://board.example/projects/1/todos/9"))

	assert.Equal(t, map[string]int{"focus": 1, "input": 1, "change": 1}, counts)
	assert.Equal(t, []string{"focus", "input", "change"}, order)
	assert.Equal(t, 1, bubbled["input"])
	assert.Equal(t, 1, bubbled["change"])
	assert.Zero(t, bubbled["focus"], "focus does not bubble")

	v, err := input.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://board.example/projects/1/todos/9", v)
	require.NotNil(t, doc.Focused())
	assert.Equal(t, input.Node(), doc.Focused().Node())
}

func TestOnClickAndMutations(t *testing.T) {
	ctx := context.Background()
	doc := parse(t)

	changes, cancel, err := doc.Observe(ctx)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, doc.OnClick(`[data-testid="atlassian-navigation--create-button"]`, func(*Element) {
		_, err := doc.SetInnerHTML("#main", `<form><input name="summary"></form>`)
		require.NoError(t, err)
	}))

	btn, err := doc.QuerySelector(ctx, "button")
	require.NoError(t, err)
	require.NoError(t, btn.Click(ctx))

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected a mutation notification")
	}

	summary, err := doc.QuerySelector(ctx, `input[name="summary"]`)
	require.NoError(t, err)
	assert.NotNil(t, summary)

	link, err := doc.ElementByID(ctx, "link")
	require.NoError(t, err)
	assert.Nil(t, link, "old children are replaced")

	n, err := doc.Remove("form")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	summary, err = doc.QuerySelector(ctx, `input[name="summary"]`)
	require.NoError(t, err)
	assert.Nil(t, summary)

	out, err := doc.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `<main id="main"></main>`)
}

func TestObserveCancel(t *testing.T) {
	doc := parse(t)
	changes, cancel, err := doc.Observe(context.Background())
	require.NoError(t, err)
	cancel()
	cancel()

	_, err = doc.Remove("nav")
	require.NoError(t, err)

	select {
	case <-changes:
		t.Fatal("cancelled observer must not be notified")
	default:
	}
}
