package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberbrowser/sentinel/internal/config"
)

func testConfig(t *testing.T) config.AuditLogConfig {
	return config.AuditLogConfig{
		Enabled:       true,
		LogPath:       filepath.Join(t.TempDir(), "audit.log"),
		MaxFileSize:   100 * 1024 * 1024,
		MaxFiles:      10,
		LogCleanScans: false,
		BufferSize:    100,
	}
}

func threatEvent(resource string) Event {
	return Event{
		Type:     EventThreatDetected,
		User:     "test",
		Resource: resource,
		Action:   "evaluate",
		Result:   "blocked",
	}
}

func readLines(t *testing.T, path string) []string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.TrimSuffix(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestLogger_RecordAndFlush(t *testing.T) {
	cfg := testConfig(t)
	l, err := New(cfg)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Record(threatEvent("https://evil.example/a")))

	// Buffered, not yet on disk.
	assert.Empty(t, readLines(t, cfg.LogPath))

	require.NoError(t, l.Flush())
	lines := readLines(t, cfg.LogPath)
	require.Len(t, lines, 1)

	var event Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &event))
	assert.Equal(t, EventThreatDetected, event.Type)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestLogger_BufferFlushesAtCapacity(t *testing.T) {
	cfg := testConfig(t)
	cfg.BufferSize = 5
	l, err := New(cfg)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 4; i++ {
		require.NoError(t, l.Record(threatEvent(fmt.Sprintf("https://evil.example/%d", i))))
	}
	assert.Empty(t, readLines(t, cfg.LogPath))

	require.NoError(t, l.Record(threatEvent("https://evil.example/4")))
	assert.Len(t, readLines(t, cfg.LogPath), 5)
}

func TestLogger_CleanScanGating(t *testing.T) {
	t.Run("clean scans dropped by default", func(t *testing.T) {
		cfg := testConfig(t)
		l, err := New(cfg)
		require.NoError(t, err)
		defer l.Close()

		require.NoError(t, l.Record(Event{Type: EventScanCompleted, Result: "clean"}))
		require.NoError(t, l.Flush())
		assert.Empty(t, readLines(t, cfg.LogPath))

		stats := l.Stats()
		assert.Equal(t, uint64(1), stats.EventsDropped)
		assert.Equal(t, uint64(0), stats.EventsLogged)
	})

	t.Run("clean scans kept when configured", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LogCleanScans = true
		l, err := New(cfg)
		require.NoError(t, err)
		defer l.Close()

		require.NoError(t, l.Record(Event{Type: EventScanCompleted, Result: "clean"}))
		require.NoError(t, l.Flush())
		assert.Len(t, readLines(t, cfg.LogPath), 1)
	})

	t.Run("threat events always kept", func(t *testing.T) {
		cfg := testConfig(t)
		l, err := New(cfg)
		require.NoError(t, err)
		defer l.Close()

		require.NoError(t, l.Record(threatEvent("https://evil.example/a")))
		require.NoError(t, l.Record(Event{Type: EventFileQuarantined, Result: "clean"}))
		require.NoError(t, l.Flush())
		assert.Len(t, readLines(t, cfg.LogPath), 2)
	})

	t.Run("policy lifecycle events are not scan events", func(t *testing.T) {
		cfg := testConfig(t)
		l, err := New(cfg)
		require.NoError(t, err)
		defer l.Close()

		require.NoError(t, l.Record(Event{Type: EventPolicyCreated, Result: "success"}))
		require.NoError(t, l.Flush())
		assert.Len(t, readLines(t, cfg.LogPath), 1)
	})
}

func TestLogger_Rotation(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFileSize = 400
	cfg.MaxFiles = 3
	cfg.BufferSize = 1
	l, err := New(cfg)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 30; i++ {
		require.NoError(t, l.Record(threatEvent(fmt.Sprintf("https://evil.example/%d", i))))
	}
	require.NoError(t, l.Flush())

	// The active file never exceeds the limit by more than one event.
	info, err := os.Stat(cfg.LogPath)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), cfg.MaxFileSize+400)

	// At most max_files rotated files are retained.
	rotated := 0
	for i := 1; i <= cfg.MaxFiles+2; i++ {
		if _, err := os.Stat(fmt.Sprintf("%s.%d", cfg.LogPath, i)); err == nil {
			rotated++
			assert.LessOrEqual(t, i, cfg.MaxFiles)
		}
	}
	assert.GreaterOrEqual(t, rotated, 1)
	assert.LessOrEqual(t, rotated, cfg.MaxFiles)

	stats := l.Stats()
	assert.GreaterOrEqual(t, stats.Rotations, uint64(1))
}

func TestLogger_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false
	l, err := New(cfg)
	require.NoError(t, err)

	assert.NoError(t, l.Record(threatEvent("https://evil.example/a")))
	assert.NoError(t, l.Flush())
	assert.NoError(t, l.Close())

	_, statErr := os.Stat(cfg.LogPath)
	assert.True(t, os.IsNotExist(statErr))
}
