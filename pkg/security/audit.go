package security

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AccessRecord describes one resource read or tool invocation.
type AccessRecord struct {
	ID        string         `json:"id"`
	Caller    string         `json:"caller,omitempty"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditLog writes access records as JSON lines. All failures are swallowed:
// a broken audit sink must never block the primary response path.
type AuditLog struct {
	mu  sync.Mutex
	out io.Writer
}

// NewAuditLog writes records to out. A nil writer falls back to the standard
// logger.
func NewAuditLog(out io.Writer) *AuditLog {
	return &AuditLog{out: out}
}

// Record emits one access record, best effort.
func (a *AuditLog) Record(caller, name string, params map[string]any) {
	defer func() {
		// A panicking writer or unserializable parameter must not escape
		// into the response path.
		_ = recover()
	}()

	rec := AccessRecord{
		ID:        uuid.NewString(),
		Caller:    caller,
		Name:      name,
		Params:    params,
		Timestamp: time.Now().UTC(),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if a.out == nil {
		log.Printf("access: %s", line)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.out.Write(append(line, '\n'))
}
