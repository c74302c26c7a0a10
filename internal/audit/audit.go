// Package audit provides the append-only security event log: buffered
// structured entries, size-based rotation, and a bounded set of retained
// rotated files. A logging failure is reported to the caller but never
// blocks or rolls back the decision that triggered it.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/emberbrowser/sentinel/internal/config"
	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/models"
)

// EventType classifies security-relevant actions.
type EventType string

const (
	EventScanInitiated   EventType = "scan_initiated"
	EventScanCompleted   EventType = "scan_completed"
	EventThreatDetected  EventType = "threat_detected"
	EventFileQuarantined EventType = "file_quarantined"
	EventPolicyCreated   EventType = "policy_created"
	EventPolicyUpdated   EventType = "policy_updated"
	EventPolicyDeleted   EventType = "policy_deleted"
	EventAccessDenied    EventType = "access_denied"
	EventRateLimited     EventType = "rate_limited"
)

// threatEvents are always logged regardless of log_clean_scans.
var threatEvents = map[EventType]bool{
	EventThreatDetected:  true,
	EventFileQuarantined: true,
	EventAccessDenied:    true,
}

// Event is one structured audit entry.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp models.UnixMillis `json:"timestamp"`
	User      string            `json:"user"`
	Resource  string            `json:"resource"`
	Action    string            `json:"action"`
	Result    string            `json:"result"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Stats counts logger activity since creation.
type Stats struct {
	EventsLogged   uint64 `json:"eventsLogged"`
	EventsDropped  uint64 `json:"eventsDropped"`
	EventsBuffered int    `json:"eventsBuffered"`
	Flushes        uint64 `json:"flushes"`
	FlushErrors    uint64 `json:"flushErrors"`
	Rotations      uint64 `json:"rotations"`
}

// Logger buffers events and appends them to a rotated JSONL file.
type Logger struct {
	cfg config.AuditLogConfig
	now func() models.UnixMillis

	mu     sync.Mutex
	file   *os.File
	size   int64
	buffer [][]byte
	stats  Stats
}

// New opens (or creates) the audit log at the configured path.
func New(cfg config.AuditLogConfig) (*Logger, error) {
	l := &Logger{cfg: cfg, now: models.Now}
	if !cfg.Enabled {
		return l, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o700); err != nil {
		return nil, fmt.Errorf("ensure audit log directory: %w", err)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open() error {
	f, err := os.OpenFile(l.cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = f
	l.size = info.Size()
	return nil
}

// Record buffers one event. The buffer is flushed once it holds buffer_size
// events. Clean (non-threat) events are dropped unless log_clean_scans is
// set; threat events are always recorded.
func (l *Logger) Record(event Event) error {
	if !l.cfg.Enabled {
		return nil
	}
	if !l.cfg.LogCleanScans && isCleanScan(event) {
		l.mu.Lock()
		l.stats.EventsDropped++
		l.mu.Unlock()
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, line)
	l.stats.EventsLogged++
	if len(l.buffer) >= l.cfg.BufferSize {
		return l.flushLocked()
	}
	return nil
}

// isCleanScan reports whether the event is a scan that found nothing.
// Threat events are never considered clean, whatever their result string.
func isCleanScan(event Event) bool {
	if threatEvents[event.Type] {
		return false
	}
	switch event.Type {
	case EventScanInitiated, EventScanCompleted:
		return event.Result == "" || event.Result == "clean" || event.Result == "allowed"
	}
	return false
}

// Flush forces buffered events to disk.
func (l *Logger) Flush() error {
	if !l.cfg.Enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *Logger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	l.stats.Flushes++
	for _, line := range l.buffer {
		// Rotate before a write that would push the active file past the
		// size limit; a single oversized event still lands in one file, so
		// a file never exceeds max_file_size plus one event.
		if l.size > 0 && l.size+int64(len(line)) > l.cfg.MaxFileSize {
			if err := l.rotateLocked(); err != nil {
				l.stats.FlushErrors++
				l.buffer = nil
				return err
			}
		}
		n, err := l.file.Write(line)
		l.size += int64(n)
		if err != nil {
			l.stats.FlushErrors++
			l.buffer = nil
			return fmt.Errorf("write audit log: %w", err)
		}
	}
	l.buffer = nil
	return nil
}

// rotateLocked shifts audit.log -> audit.log.1 -> ... -> audit.log.N and
// deletes the oldest once max_files rotated files exist.
func (l *Logger) rotateLocked() error {
	if err := l.file.Close(); err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).
			Warn("closing audit log before rotation failed")
	}

	oldest := fmt.Sprintf("%s.%d", l.cfg.LogPath, l.cfg.MaxFiles)
	_ = os.Remove(oldest)
	for i := l.cfg.MaxFiles - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", l.cfg.LogPath, i)
		to := fmt.Sprintf("%s.%d", l.cfg.LogPath, i+1)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
	if err := os.Rename(l.cfg.LogPath, l.cfg.LogPath+".1"); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	l.stats.Rotations++
	return l.open()
}

// Stats returns a snapshot of the logger counters.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.EventsBuffered = len(l.buffer)
	return s
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if !l.cfg.Enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	flushErr := l.flushLocked()
	if l.file != nil {
		if err := l.file.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
		l.file = nil
	}
	return flushErr
}

// SetClock overrides the logger's time source. Tests only.
func (l *Logger) SetClock(now func() models.UnixMillis) {
	l.now = now
}
