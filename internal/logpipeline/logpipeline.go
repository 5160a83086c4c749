// Package logpipeline implements the execution log pipeline: structured
// LogEntry records broadcast to a thread-safe list of sinks, each with its
// own enable flag and minimum-level filter, decoupled so a failing sink
// never throws into the engine.
package logpipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is a LogEntry's severity.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

// Category tags a LogEntry's role in the run's lifecycle.
type Category string

const (
	CategoryExecutionStart Category = "EXECUTION_START"
	CategoryExecutionEnd   Category = "EXECUTION_END"
	CategoryNodeStart      Category = "NODE_START"
	CategoryNodeEnd        Category = "NODE_END"
	CategoryError          Category = "ERROR"
	CategoryCustom         Category = "CUSTOM"
)

// LogEntry is one structured record in the execution log pipeline.
type LogEntry struct {
	ID          string
	ExecutionID string
	Timestamp   time.Time
	Level       Level
	Category    Category
	Message     string
	Context     map[string]any
}

// Sink receives LogEntry records. Implementations must not block
// indefinitely and must not panic; Pipeline isolates panics per sink but a
// well-behaved sink should return promptly regardless.
type Sink interface {
	Name() string
	Write(entry LogEntry)
}

type registeredSink struct {
	sink     Sink
	enabled  bool
	minLevel Level
}

// Pipeline fans LogEntry records out to registered sinks.
type Pipeline struct {
	mu    sync.RWMutex
	sinks []*registeredSink
}

// NewPipeline returns an empty Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// AddSink registers sink, enabled, filtering at minLevel and above.
func (p *Pipeline) AddSink(sink Sink, minLevel Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, &registeredSink{sink: sink, enabled: true, minLevel: minLevel})
}

// SetSinkEnabled toggles a previously-registered sink (matched by name) on or off.
func (p *Pipeline) SetSinkEnabled(name string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rs := range p.sinks {
		if rs.sink.Name() == name {
			rs.enabled = enabled
		}
	}
}

// Emit builds a LogEntry and broadcasts it to every enabled sink whose
// minimum level is at or below the entry's level. A panicking sink is
// recovered and does not affect other sinks or the caller.
func (p *Pipeline) Emit(executionID string, level Level, category Category, message string, context map[string]any) {
	entry := LogEntry{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Level:       level,
		Category:    category,
		Message:     message,
		Context:     context,
	}

	p.mu.RLock()
	snapshot := make([]*registeredSink, len(p.sinks))
	copy(snapshot, p.sinks)
	p.mu.RUnlock()

	for _, rs := range snapshot {
		if !rs.enabled || entry.Level < rs.minLevel {
			continue
		}
		dispatch(rs.sink, entry)
	}
}

func dispatch(sink Sink, entry LogEntry) {
	defer func() {
		_ = recover()
	}()
	sink.Write(entry)
}
