// Package testutil provides test doubles shared across packages: a recording
// logger, an in-memory store and a scripted process runner.
package testutil

import (
	"sync"

	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
)

// MockLogger implements logging.Logger and records every entry. Children
// created with With or Named share the parent's record.
type MockLogger struct {
	rec    *record
	fields []logging.Field
	name   string
}

type record struct {
	mu       sync.Mutex
	messages []LogMessage
}

// LogMessage is one captured entry.
type LogMessage struct {
	Level   string
	Logger  string
	Message string
	Fields  []logging.Field
}

// Field returns the value of key, if present.
func (m LogMessage) Field(key string) (interface{}, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func NewMockLogger() *MockLogger {
	return &MockLogger{rec: &record{}}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.fields)+len(fields))
	all = append(all, m.fields...)
	all = append(all, fields...)

	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.rec.messages = append(m.rec.messages, LogMessage{Level: level, Logger: m.name, Message: msg, Fields: all})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	child := *m
	child.fields = append(append([]logging.Field(nil), m.fields...), fields...)
	return &child
}

func (m *MockLogger) Named(name string) logging.Logger {
	child := *m
	if m.name != "" {
		name = m.name + "." + name
	}
	child.name = name
	return &child
}

func (m *MockLogger) Sync() error { return nil }

// GetMessages returns a copy of all logged messages.
func (m *MockLogger) GetMessages() []LogMessage {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	out := make([]LogMessage, len(m.rec.messages))
	copy(out, m.rec.messages)
	return out
}

// Clear removes all logged messages.
func (m *MockLogger) Clear() {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.rec.messages = m.rec.messages[:0]
}

// HasMessage checks if a message with the given level and text was logged.
func (m *MockLogger) HasMessage(level, msg string) bool {
	for _, l := range m.GetMessages() {
		if l.Level == level && l.Message == msg {
			return true
		}
	}
	return false
}

// CountLevel returns the number of entries logged at level.
func (m *MockLogger) CountLevel(level string) int {
	n := 0
	for _, l := range m.GetMessages() {
		if l.Level == level {
			n++
		}
	}
	return n
}
