// Package testutil provides shared test doubles for KeyIP-Explorer.
package testutil

import (
	"sync"

	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
)

// LogEntry is a single entry captured by MockLogger.  Fields includes any
// fields bound earlier via With, in binding order, followed by the call-site
// fields.
type LogEntry struct {
	Level   string
	Name    string
	Message string
	Fields  []logging.Field
}

// entrySink is shared between a MockLogger and every child created by With or
// Named, so assertions on the root see entries from the whole tree.
type entrySink struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (s *entrySink) append(e LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// MockLogger implements logging.Logger and records every entry for later
// inspection.  Safe for concurrent use.
type MockLogger struct {
	sink  *entrySink
	bound []logging.Field
	name  string
}

// NewMockLogger returns an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{sink: &entrySink{}}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.bound)+len(fields))
	all = append(all, m.bound...)
	all = append(all, fields...)
	m.sink.append(LogEntry{Level: level, Name: m.name, Message: msg, Fields: all})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

// With returns a child sharing this logger's entry store, with fields bound
// to every subsequent entry of the child.
func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	bound := make([]logging.Field, 0, len(m.bound)+len(fields))
	bound = append(bound, m.bound...)
	bound = append(bound, fields...)
	return &MockLogger{sink: m.sink, bound: bound, name: m.name}
}

// Named returns a child sharing this logger's entry store under an extended
// name.
func (m *MockLogger) Named(name string) logging.Logger {
	full := name
	if m.name != "" {
		full = m.name + "." + name
	}
	return &MockLogger{sink: m.sink, bound: m.bound, name: full}
}

// Entries returns a copy of everything logged so far, across this logger and
// all of its With/Named children.
func (m *MockLogger) Entries() []LogEntry {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	out := make([]LogEntry, len(m.sink.entries))
	copy(out, m.sink.entries)
	return out
}

// Clear discards all captured entries.
func (m *MockLogger) Clear() {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	m.sink.entries = m.sink.entries[:0]
}

// HasEntry reports whether an entry with the given level and message was
// captured.
func (m *MockLogger) HasEntry(level, msg string) bool {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	for _, e := range m.sink.entries {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// FieldValue returns the value of the first field with the given key in the
// first entry that carries it, in capture order.
func (m *MockLogger) FieldValue(key string) (interface{}, bool) {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	for _, e := range m.sink.entries {
		for _, f := range e.Fields {
			if f.Key == key {
				return f.Value, true
			}
		}
	}
	return nil, false
}
