package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempLogDir points the package at a fresh directory and session for the
// duration of the test.
func useTempLogDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	prevDir, prevErr, prevID := logDir, initErr, sessionID

	logDir, initErr, sessionID = dir, nil, ""
	initOnce = sync.Once{}
	sessionIDOnce = sync.Once{}

	t.Cleanup(func() {
		logDir, initErr, sessionID = prevDir, prevErr, prevID
		initOnce = sync.Once{}
		sessionIDOnce = sync.Once{}
	})
	return dir
}

func readLog(t *testing.T, l *Logger) string {
	t.Helper()
	b, err := os.ReadFile(l.LogPath())
	require.NoError(t, err)
	return string(b)
}

func TestNewLogger_FilePerRun(t *testing.T) {
	dir := useTempLogDir(t)

	l, err := NewLogger("watch")
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, dir, filepath.Dir(l.LogPath()))
	assert.Equal(t, l.SessionID()+"-issuebridge.log", filepath.Base(l.LogPath()))
	assert.FileExists(t, l.LogPath())

	got, err := GetLogDirectory()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestNewLogger_LevelsAndTag(t *testing.T) {
	useTempLogDir(t)

	l, err := NewLogger("consumer")
	require.NoError(t, err)
	defer l.Close()

	l.Printf("No pending task found")
	l.Debugf("page loaded: %s", "https://acme.atlassian.net/jira")
	l.Infof("Found pending task: %s", "Fix login bug")
	l.Warnf("Timed out waiting for Create form, proceeding")
	l.Errorf("failed to clear pending intent %s", "01J")

	content := readLog(t, l)
	for _, want := range []string{
		Tag + " [consumer] [INFO] No pending task found",
		Tag + " [consumer] [DEBUG] page loaded: https://acme.atlassian.net/jira",
		Tag + " [consumer] [INFO] Found pending task: Fix login bug",
		Tag + " [consumer] [WARN] Timed out waiting for Create form, proceeding",
		Tag + " [consumer] [ERROR] failed to clear pending intent 01J",
	} {
		assert.Contains(t, content, want)
	}
}

func TestNewLogger_ComponentsShareRunFile(t *testing.T) {
	useTempLogDir(t)

	producer, err := NewLogger("producer")
	require.NoError(t, err)
	defer producer.Close()
	watcher, err := NewLogger("watch")
	require.NoError(t, err)
	defer watcher.Close()

	assert.Equal(t, producer.SessionID(), watcher.SessionID())
	assert.Equal(t, producer.LogPath(), watcher.LogPath())
	assert.Equal(t, GetSessionID(), producer.SessionID())

	producer.Infof("Pending intent stored")
	watcher.With("sequencer").Infof("state OpeningForm")

	content := readLog(t, producer)
	assert.Contains(t, content, "[producer] [INFO] Pending intent stored")
	assert.Contains(t, content, "[watch/sequencer] [INFO] state OpeningForm")
}

func TestNewLogger_FallbackWhenDirectoryUnusable(t *testing.T) {
	dir := useTempLogDir(t)
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	logDir = filepath.Join(blocker, "logs")

	l, err := NewLogger("watch")
	require.Error(t, err)
	require.NotNil(t, l)
	assert.Empty(t, l.LogPath())

	// the fallback logger still accepts writes
	l.Infof("still logging")
	assert.NoError(t, l.Close())
}

func TestLoggerClose_Idempotent(t *testing.T) {
	useTempLogDir(t)

	l, err := NewLogger("status")
	require.NoError(t, err)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("sequencer", &buf)

	l.Infof("state %s", "WaitingReady")
	l.With("locator").Warnf("summary input not found")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], Tag+" [sequencer] [INFO] state WaitingReady")
	assert.Contains(t, lines[1], "[sequencer/locator] [WARN] summary input not found")
	assert.Empty(t, l.LogPath())
	assert.Same(t, &buf, l.Writer())
}

func TestWriterLogger_NilWriterDiscards(t *testing.T) {
	l := NewWriterLogger("probe", nil)
	l.Errorf("dropped")
	assert.NoError(t, l.Close())
}
