// Package execlog writes and reads the append-only JSON-lines execution log.
//
// Files live at <root>/<YYYY-MM>/<DD>-<scheduleID>.jsonl. Each entry is
// written with a single write on an O_APPEND descriptor, so concurrent
// writers never interleave within a line.
package execlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// Event names a significant step in one run
type Event string

const (
	EventStarted          Event = "started"
	EventClaudeInvoked    Event = "claude_invoked"
	EventClaudeCompleted  Event = "claude_completed"
	EventCompleted        Event = "completed"
	EventFailed           Event = "failed"
	EventRetryScheduled   Event = "retry_scheduled"
	EventNotificationSent Event = "notification_sent"
	EventError            Event = "error"
	EventSkipped          Event = "skipped"
)

const (
	partitionLayout = "2006-01"
	dayLayout       = "02"
)

// Fields carries the event-specific payload of an entry
type Fields map[string]any

// Entry is one line of the log
type Entry struct {
	Timestamp time.Time
	Event     Event
	Fields    Fields
}

// MarshalJSON flattens the fields next to timestamp and event
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	out["event"] = string(e.Event)
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat line back into timestamp, event and fields
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if ts, ok := raw["timestamp"].(string); ok {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return errors.Wrapf(err, "parsing timestamp %q", ts)
		}
		e.Timestamp = parsed
	}
	if ev, ok := raw["event"].(string); ok {
		e.Event = Event(ev)
	}
	delete(raw, "timestamp")
	delete(raw, "event")
	e.Fields = raw
	return nil
}

// PathFor returns the log file for a schedule on the day of t
func PathFor(root, scheduleID string, t time.Time) string {
	return filepath.Join(root, t.Format(partitionLayout), t.Format(dayLayout)+"-"+scheduleID+".jsonl")
}

// Log appends entries for one schedule run
type Log struct {
	path string
	now  func() time.Time
}

// Open prepares the log file for the schedule's current day. The clock
// stamps every entry; nil means time.Now.
func Open(root, scheduleID string, now func() time.Time) (*Log, error) {
	if now == nil {
		now = time.Now
	}
	path := PathFor(root, scheduleID, now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "creating log partition %s", filepath.Dir(path)), domain.ErrStoreIO)
	}
	return &Log{path: path, now: now}, nil
}

// Path returns the file entries are appended to
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry
func (l *Log) Append(event Event, fields Fields) error {
	entry := Entry{Timestamp: l.now(), Event: event, Fields: fields}
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrapf(err, "encoding %s entry", event)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "opening log %s", l.path), domain.ErrStoreIO)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return errors.Mark(errors.Wrapf(err, "appending to log %s", l.path), domain.ErrStoreIO)
	}
	return f.Close()
}

// Read parses every entry in a log file
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "log %s", path), domain.ErrNotFound)
		}
		return nil, errors.Mark(errors.Wrapf(err, "opening log %s", path), domain.ErrStoreIO)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return entries, errors.Wrapf(err, "%s line %d", path, lineNo)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, errors.Wrapf(err, "reading log %s", path)
	}
	return entries, nil
}

// FilesFor lists every log file of a schedule, oldest first
func FilesFor(root, scheduleID string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "[0-9][0-9][0-9][0-9]-[0-9][0-9]", "[0-9][0-9]-"+scheduleID+".jsonl"))
	if err != nil {
		return nil, errors.Wrap(err, "listing log files")
	}
	sort.Strings(matches)
	return matches, nil
}

// DeleteFor removes every log file of a schedule and returns how many were
// deleted.
func DeleteFor(root, scheduleID string) (int, error) {
	files, err := FilesFor(root, scheduleID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return deleted, errors.Mark(errors.Wrapf(err, "removing %s", f), domain.ErrStoreIO)
		}
		deleted++
	}
	return deleted, nil
}
