package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, root string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, RunLogName))
	require.NoError(t, err)
	return string(data)
}

func TestAppendRunLogCreatesFile(t *testing.T) {
	root := t.TempDir()

	err := AppendRunLog(root, RunEntry{
		RunID:    "run-1",
		Started:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Duration: 90 * time.Second,
		Sites: []SiteResult{
			{SiteID: "s1", OK: true, NewAudio: 1, NewSRT: 1, Duration: time.Minute},
		},
	})
	require.NoError(t, err)

	log := readLog(t, root)
	assert.True(t, strings.HasPrefix(log, runLogHeader))
	assert.Contains(t, log, "run-1")
	assert.Contains(t, log, "2026-08-01T10:00:00Z")
	assert.Contains(t, log, "**s1** ok")
}

func TestAppendRunLogPrependsNewestFirst(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, AppendRunLog(root, RunEntry{
		RunID: "older", Started: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, AppendRunLog(root, RunEntry{
		RunID: "newer", Started: time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
	}))

	log := readLog(t, root)

	// One header, newest entry first.
	assert.Equal(t, 1, strings.Count(log, runLogHeader))
	newerAt := strings.Index(log, "newer")
	olderAt := strings.Index(log, "older")
	require.GreaterOrEqual(t, newerAt, 0)
	require.GreaterOrEqual(t, olderAt, 0)
	assert.Less(t, newerAt, olderAt)
}

func TestAppendRunLogRecordsFailures(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, AppendRunLog(root, RunEntry{
		RunID:   "run-1",
		Started: time.Now(),
		Sites: []SiteResult{
			{SiteID: "s1", OK: false, Err: errors.New("feed unreachable")},
		},
	}))

	log := readLog(t, root)
	assert.Contains(t, log, "**s1** FAILED")
	assert.Contains(t, log, "feed unreachable")
	assert.Contains(t, log, "0 ok / 1 total")
}
