// Package audit provides append-only audit logging for the gateway,
// adapted from pkg/verification/audit/logger.go in the teacher repo and
// re-themed from generic "verification events" to the specific event
// vocabulary spec.md's invariants and error taxonomy (§7, §8) call for.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType enumerates the audit events a component may emit. Values are
// deliberately coarse-grained: the Verifier never reveals *why* a request
// was rejected (spec.md §7), so "attestation_rejected" carries no detail
// field an external reader of the log could use as an oracle beyond what
// the operator already has.
type EventType string

const (
	EventNonceIssued         EventType = "nonce_issued"
	EventNonceConsumed       EventType = "nonce_consumed"
	EventNonceRejected       EventType = "nonce_rejected"
	EventAttestationIssued   EventType = "attestation_issued"
	EventAttestationRejected EventType = "attestation_rejected"
	EventAuthSucceeded       EventType = "auth_succeeded"
	EventAuthFailed          EventType = "auth_failed"
	EventQueryExecuted       EventType = "query_executed"
	EventFieldReleased       EventType = "field_released"
	EventFieldRedacted       EventType = "field_redacted"
	EventResultSigned        EventType = "result_signed"
)

// Event is a single audit record.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Actor     string         `json:"actor"`
	Resource  string         `json:"resource,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger records audit events. Implementations must not block the
// request path on slow storage; Log is fire-and-forget from the caller's
// perspective.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// MemoryLogger keeps a bounded ring buffer of recent events, primarily for
// tests and local development, matching the teacher's MemoryLogger.
type MemoryLogger struct {
	mu      sync.RWMutex
	events  []Event
	maxSize int
	log     zerolog.Logger
	closed  bool
}

// NewMemoryLogger builds a MemoryLogger retaining up to maxSize events.
func NewMemoryLogger(maxSize int, log zerolog.Logger) *MemoryLogger {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &MemoryLogger{
		events:  make([]Event, 0, maxSize),
		maxSize: maxSize,
		log:     log.With().Str("component", "audit").Logger(),
	}
}

// Log implements Logger.
func (m *MemoryLogger) Log(_ context.Context, event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if len(m.events) >= m.maxSize {
		m.events = m.events[1:]
	}
	m.events = append(m.events, event)
	m.emit(event)
}

func (m *MemoryLogger) emit(event Event) {
	e := m.log.Info()
	switch event.Type {
	case EventAttestationRejected, EventAuthFailed, EventNonceRejected:
		e = m.log.Warn()
	}
	e.Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("actor", event.Actor).
		Str("resource", event.Resource).
		Interface("details", event.Details).
		Msg("audit event")
}

// Events returns a copy of the retained events, for tests.
func (m *MemoryLogger) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Close implements Logger.
func (m *MemoryLogger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = nil
	return nil
}

var _ Logger = (*MemoryLogger)(nil)

// FileLogger appends each event as one JSON line to a log file, for
// production deployments that ship logs off-box via the usual log
// collector rather than an in-process query API.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	log     zerolog.Logger
	closed  bool
}

// NewFileLogger opens path in append mode and builds a FileLogger.
func NewFileLogger(path string, log zerolog.Logger) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		file:    f,
		encoder: json.NewEncoder(f),
		log:     log.With().Str("component", "audit").Logger(),
	}, nil
}

// Log implements Logger.
func (f *FileLogger) Log(_ context.Context, event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := f.encoder.Encode(event); err != nil {
		f.log.Error().Err(err).Msg("failed to write audit event")
	}
}

// Close implements Logger.
func (f *FileLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}

var _ Logger = (*FileLogger)(nil)
