package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType classifies an event in the event stream.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventStep         EventType = "step"
	EventConfirm      EventType = "confirm"
	EventTakeover     EventType = "takeover"
	EventLoopWarning  EventType = "loop_warning"
	EventError        EventType = "error"
	EventSessionEnd   EventType = "session_end"
)

// Event is a single structured event in the event stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data,omitempty"`
}

// EventLogger writes structured JSONL events to a file.
type EventLogger struct {
	mu        sync.Mutex
	file      *os.File
	enc       *json.Encoder
	sessionID string
	logPath   string
}

// NewEventLogger creates a new event logger for the given session.
// Events are written to {dir}/{session_id}.jsonl; an empty dir uses the
// default locations.
func NewEventLogger(dir, sessionID string) (*EventLogger, error) {
	var lastErr error
	for _, d := range eventLogDirs(dir) {
		if err := os.MkdirAll(d, 0755); err != nil {
			lastErr = fmt.Errorf("create events directory %s: %w", d, err)
			continue
		}

		logPath := filepath.Join(d, sessionID+".jsonl")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			lastErr = fmt.Errorf("open event log %s: %w", logPath, err)
			continue
		}

		return &EventLogger{
			file:      f,
			enc:       json.NewEncoder(f),
			sessionID: sessionID,
			logPath:   logPath,
		}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no writable events directory found")
	}
	return nil, lastErr
}

// eventLogDirs returns candidate directories in priority order.
// 1) explicit dir (config)
// 2) PHONECTL_EVENTS_DIR
// 3) ~/.local/share/phonectl/events (default)
// 4) $TMPDIR/phonectl/events (fallback for restricted environments)
func eventLogDirs(explicit string) []string {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	add(explicit)
	add(os.Getenv("PHONECTL_EVENTS_DIR"))

	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".local", "share", "phonectl", "events"))
	}

	add(filepath.Join(os.TempDir(), "phonectl", "events"))
	return dirs
}

// Path returns the log file path.
func (el *EventLogger) Path() string {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.logPath
}

// Log writes an event to the JSONL file. A nil logger is a no-op.
func (el *EventLogger) Log(evtType EventType, data any) {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file == nil {
		return
	}

	evt := Event{
		Type:      evtType,
		Timestamp: time.Now(),
		SessionID: el.sessionID,
		Data:      data,
	}
	_ = el.enc.Encode(evt)
}

// Close flushes and closes the event log file.
func (el *EventLogger) Close() {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.file != nil {
		_ = el.file.Close()
		el.file = nil
	}
}

// ReadEvents reads the last n events of a session (all when n <= 0),
// looking in the same directories NewEventLogger writes to.
func ReadEvents(dir, sessionID string, n int) ([]Event, error) {
	for _, d := range eventLogDirs(dir) {
		path := filepath.Join(d, sessionID+".jsonl")
		if _, err := os.Stat(path); err == nil {
			return readEventFile(path, n)
		}
	}
	return nil, fmt.Errorf("no event log for session %s", sessionID)
}

func readEventFile(path string, n int) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		var evt Event
		if json.Unmarshal(scanner.Bytes(), &evt) == nil {
			events = append(events, evt)
		}
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// FormatEvents formats events for display.
func FormatEvents(events []Event, title string) string {
	if len(events) == 0 {
		return "No events recorded."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d events):\n", title, len(events)))
	for _, evt := range events {
		ts := evt.Timestamp.Format("15:04:05")
		dataStr := ""
		if evt.Data != nil {
			switch d := evt.Data.(type) {
			case string:
				dataStr = truncate(d, 80)
			case map[string]any:
				if act, ok := d["action"].(string); ok {
					dataStr = act
					if st, ok := d["status"].(string); ok {
						dataStr += " -> " + st
					}
				} else if msg, ok := d["message"].(string); ok {
					dataStr = truncate(msg, 80)
				} else if task, ok := d["task"].(string); ok {
					dataStr = truncate(task, 80)
				}
			default:
				raw, _ := json.Marshal(d)
				dataStr = truncate(string(raw), 80)
			}
		}
		if dataStr != "" {
			sb.WriteString(fmt.Sprintf("  %s  %-14s  %s\n", ts, evt.Type, dataStr))
		} else {
			sb.WriteString(fmt.Sprintf("  %s  %s\n", ts, evt.Type))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
