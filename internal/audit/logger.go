package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry represents a single pipeline journal record.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	Component string                 `json:"component"`
	Action    string                 `json:"action"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Outcome   string                 `json:"outcome"`
	Error     string                 `json:"error,omitempty"`
}

// Logger is the append-only JSONL journal of pipeline outcomes: batches
// appended, deltas emitted, cycles skipped. It exists so ingest gaps can be
// reconstructed after the fact without raising the service log level.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
}

// NewLogger creates a journal writing to <logDir>/pipeline.jsonl.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "pipeline.jsonl")

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipeline journal: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
	}, nil
}

// Record appends one journal entry. A nil err records outcome "ok";
// otherwise the outcome is "failed" with the error string preserved.
func (l *Logger) Record(component, action string, detail map[string]interface{}, err error) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Component: component,
		Action:    action,
		Detail:    detail,
		Outcome:   "ok",
	}
	if err != nil {
		entry.Outcome = "failed"
		entry.Error = err.Error()
	}

	l.writeEntry(entry)
}

// writeEntry serializes and appends an entry. Journal write failures are
// swallowed; the journal must never take the pipeline down.
func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.file.Write(append(data, '\n'))
}

// FilePath returns the journal file location.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Close flushes and closes the journal file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	err := l.file.Close()
	l.file = nil
	return err
}
