package producer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/issuebridge/pkg/config"
	"github.com/entrhq/issuebridge/pkg/intent"
)

func settingsWith(t *testing.T, data map[string]interface{}) *config.SettingsSection {
	t.Helper()
	s := config.NewSettingsSection()
	require.NoError(t, s.SetData(data))
	return s
}

func TestCreateResolvesMapping(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := intent.NewMemoryStore()
	p := New(settingsWith(t, map[string]interface{}{
		"base_url":         "acme.atlassian.net/",
		"project_mappings": "111 - ABC\n222 - DEF",
	}), store, Options{Now: func() time.Time { return now }})

	res, err := p.Create(ctx, SourceItem{
		Summary:     "  Fix   login\tbug ",
		URL:         "https://board.example/1/buckets/3/projects/222/todos/9",
		ContextName: " Web team ",
		IssueType:   "Bug",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://acme.atlassian.net", res.TrackerURL)
	assert.Equal(t, "DEF", res.Record.TargetProjectKey)
	assert.Equal(t, "Fix login bug", res.Record.Summary)
	assert.Equal(t, "Web team", res.Record.SourceContextName)
	assert.Equal(t, "Bug", res.Record.IssueType)
	assert.Equal(t, now, res.Record.CreatedAt)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, res.Record.ID, got.ID)
}

func TestCreateWithoutMapping(t *testing.T) {
	p := New(settingsWith(t, map[string]interface{}{
		"base_url":         "https://acme.atlassian.net",
		"project_mappings": "111 - ABC",
	}), intent.NewMemoryStore(), Options{})

	res, err := p.Create(context.Background(), SourceItem{Summary: "A", URL: "https://board.example/projects/999/todos/1"})
	require.NoError(t, err)
	assert.Empty(t, res.Record.TargetProjectKey)
	assert.False(t, res.Record.HasProject())
}

func TestCreateBaseURLMissing(t *testing.T) {
	ctx := context.Background()
	store, err := intent.NewFileStore(filepath.Join(t.TempDir(), "pending.json"))
	require.NoError(t, err)
	p := New(config.NewSettingsSection(), store, Options{})

	_, err = p.Create(ctx, SourceItem{Summary: "A", URL: "https://board.example/projects/1"})
	assert.ErrorIs(t, err, ErrBaseURLMissing)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "no intent is written without a base url")
}

func TestCreateDisabled(t *testing.T) {
	store := intent.NewMemoryStore()
	p := New(settingsWith(t, map[string]interface{}{
		"enabled":  false,
		"base_url": "acme.atlassian.net",
	}), store, Options{})

	_, err := p.Create(context.Background(), SourceItem{Summary: "A", URL: "https://board.example/projects/1"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestCreateStripsTicketKey(t *testing.T) {
	p := New(settingsWith(t, map[string]interface{}{"base_url": "acme.atlassian.net"}),
		intent.NewMemoryStore(), Options{StripTicketKey: true})

	res, err := p.Create(context.Background(), SourceItem{Summary: "[ABC-12] Fix login", URL: "https://board.example/x"})
	require.NoError(t, err)
	assert.Equal(t, "Fix login", res.Record.Summary)
}

func TestCreateRejectsInvalidItem(t *testing.T) {
	p := New(settingsWith(t, map[string]interface{}{"base_url": "acme.atlassian.net"}),
		intent.NewMemoryStore(), Options{})

	_, err := p.Create(context.Background(), SourceItem{Summary: "   ", URL: "https://board.example/x"})
	assert.ErrorIs(t, err, intent.ErrInvalidRecord)

	_, err = p.Create(context.Background(), SourceItem{Summary: "A", URL: "not a url"})
	assert.ErrorIs(t, err, intent.ErrInvalidRecord)
}

func TestSourceProjectID(t *testing.T) {
	id, ok := SourceProjectID("https://board.example/123/projects/456/todos/7")
	assert.True(t, ok)
	assert.Equal(t, "456", id)

	_, ok = SourceProjectID("https://board.example/projects/abc")
	assert.False(t, ok)
}
