// Package audit emits structured security events for the authentication
// core. The core only commits to the event shape; sinks range from an
// in-memory buffer in tests to a Postgres table in production, and can be
// fanned out with MultiLogger.
package audit

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Logger is the audit sink interface.
type Logger interface {
	// Log records a security event.
	Log(ctx context.Context, event *Event) error

	// Close flushes any buffered events.
	Close() error
}

// NopLogger discards events. Used when no sink is configured.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }

// NewEvent builds an event with the timestamp and request context filled
// in. r may be nil for events with no HTTP origin.
func NewEvent(eventType EventType, status EventStatus, r *http.Request) *Event {
	e := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
	if r != nil {
		e.IPAddress = clientIP(r)
		e.UserAgent = r.UserAgent()
		e.Method = r.Method
		e.Path = r.URL.Path
		e.RequestID = r.Header.Get("X-Request-ID")
	}
	return e
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// MemoryLogger buffers events in memory, for tests and single-process
// debugging. Safe for concurrent use.
type MemoryLogger struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryLogger creates an empty buffer sink.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(_ context.Context, event *Event) error {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLogger) Close() error { return nil }

// Events returns a snapshot of the buffered events.
func (l *MemoryLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}

// MultiLogger fans events out to several sinks. Log returns the first
// error but still attempts every sink.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger creates a fan-out sink.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

func (l *MultiLogger) Log(ctx context.Context, event *Event) error {
	var first error
	for _, sink := range l.sinks {
		if err := sink.Log(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (l *MultiLogger) Close() error {
	var first error
	for _, sink := range l.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
