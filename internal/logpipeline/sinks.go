package logpipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowbase/workflow-engine/internal/platform/logger"
)

// LoggerSink forwards each LogEntry to the engine's operational logger,
// tagging it with the execution id and category.
type LoggerSink struct {
	log logger.Logger
}

// NewLoggerSink wraps log as a Sink.
func NewLoggerSink(log logger.Logger) *LoggerSink {
	return &LoggerSink{log: log}
}

func (s *LoggerSink) Name() string { return "logger" }

func (s *LoggerSink) Write(entry LogEntry) {
	l := s.log.WithFields(map[string]interface{}{
		"execution_id": entry.ExecutionID,
		"category":     string(entry.Category),
	})
	for k, v := range entry.Context {
		l = l.WithFields(map[string]interface{}{k: v})
	}
	switch entry.Level {
	case LevelTrace, LevelDebug:
		l.Debug(entry.Message)
	case LevelInfo:
		l.Info(entry.Message)
	case LevelWarn:
		l.Warn(entry.Message)
	default:
		l.Error(entry.Message)
	}
}

// MetricsSink counts log entries by level and category, surfacing volume
// of ERROR-category entries to operators without scraping log lines.
type MetricsSink struct {
	counter *prometheus.CounterVec
}

// NewMetricsSink registers the log-entry counter on reg; it panics if a
// counter of the same name is already registered there.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_log_entries_total",
		Help: "Execution log pipeline entries, by level and category.",
	}, []string{"level", "category"})
	reg.MustRegister(counter)
	return &MetricsSink{counter: counter}
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Write(entry LogEntry) {
	s.counter.WithLabelValues(entry.Level.String(), string(entry.Category)).Inc()
}
