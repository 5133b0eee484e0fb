// Package audit appends one JSON line per gate outcome to an audit log.
// Forbidden requests leave no approval record, so the audit trail is the only
// place they are visible.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// Event is one audit record written as a single JSON line.
type Event struct {
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	Capability string    `json:"capability,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	RecordID   string    `json:"record_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	CommitSha  string    `json:"commit_sha,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Event types.
const (
	TypeRequest = "request"
	TypeResolve = "resolve"
)

// Writer appends events to a JSONL file, creating it and its directory on
// first use.
type Writer struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewWriter creates an append-only audit writer.
func NewWriter(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

// Append writes one event as one line.  The event time is stamped here when
// unset.
func (w *Writer) Append(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if event.Time.IsZero() {
		event.Time = w.now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(w.path), dirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, fileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	encoded = append(encoded, '\n')
	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
