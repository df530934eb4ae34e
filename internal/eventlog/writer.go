// Package eventlog persists engine events as JSON lines in daily rotated
// files, giving headless runs a durable activity journal.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeframe/conductor/internal/events"
)

// Record is the shape of one logged line: the event type alongside the
// event's own JSON payload.
type Record struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// Writer appends events to logs/events-YYYY-MM-DD.jsonl, rotating when the
// date changes. Every line is synced to disk before Write returns, so the
// journal survives a crash mid-run.
type Writer struct {
	logDir      string
	mu          sync.Mutex
	currentFile *os.File
	currentDate string
}

// NewWriter creates a writer rooted at logDir, creating the directory and
// the current day's log file.
func NewWriter(logDir string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &Writer{logDir: logDir}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}
	return w, nil
}

// Write appends one event to the current log file, rotating first if the
// date rolled over since the last write.
func (w *Writer) Write(event events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	line, err := json.Marshal(Record{Type: event.EventType(), Event: payload})
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	if _, err := w.currentFile.Write(line); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if _, err := w.currentFile.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	return nil
}

// Consume drains an event channel into the log until the channel closes.
// Intended to run in its own goroutine fed by Bus.SubscribeAll; a write
// failure is logged and skipped rather than tearing down the subscription.
func (w *Writer) Consume(ch <-chan events.Event) {
	for event := range ch {
		if err := w.Write(event); err != nil {
			log.Printf("WARNING: failed to journal %s event: %v", event.EventType(), err)
		}
	}
}

func (w *Writer) rotateIfNeeded() error {
	date := time.Now().Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}
	return w.rotate(date)
}

func (w *Writer) rotate(date string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	path := filepath.Join(w.logDir, logFileName(date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = date
	return nil
}

// CurrentLogFile returns the path of the active log file, or "" if the
// writer is closed.
func (w *Writer) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}
	return filepath.Join(w.logDir, logFileName(w.currentDate))
}

// Close closes the current log file. A later Write reopens the journal, so
// Close is safe to call while a consumer goroutine is still draining.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	if err != nil {
		return fmt.Errorf("failed to close event log file: %w", err)
	}
	return nil
}

// ReadRecords parses every line of a log file written by Writer.
func ReadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return records, nil
}

func logFileName(date string) string {
	return fmt.Sprintf("events-%s.jsonl", date)
}
