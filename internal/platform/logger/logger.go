// Package logger provides the engine's structured, zap-backed operational
// logger. It is distinct from internal/logpipeline's execution LogEntry
// stream, which is domain-level and persisted with the execution.
package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flowbase/workflow-engine/internal/platform/config"
)

// Logger is the engine's operational logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
}

// ZapLogger wraps zap.SugaredLogger with a carried field set.
type ZapLogger struct {
	logger *zap.SugaredLogger
	fields map[string]interface{}
}

// New builds a Logger from cfg.
func New(cfg config.LoggerConfig) Logger {
	var zapConfig zap.Config

	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	switch cfg.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if cfg.OutputPath == "" || cfg.OutputPath == "stdout" {
		zapConfig.OutputPaths = []string{"stdout"}
	} else {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}

	built, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		panic(err)
	}

	return &ZapLogger{
		logger: built.Sugar(),
		fields: make(map[string]interface{}),
	}
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) {
	l.logger.With(l.flattenFields()...).Debugw(msg, fields...)
}

func (l *ZapLogger) Info(msg string, fields ...interface{}) {
	l.logger.With(l.flattenFields()...).Infow(msg, fields...)
}

func (l *ZapLogger) Warn(msg string, fields ...interface{}) {
	l.logger.With(l.flattenFields()...).Warnw(msg, fields...)
}

func (l *ZapLogger) Error(msg string, fields ...interface{}) {
	l.logger.With(l.flattenFields()...).Errorw(msg, fields...)
}

func (l *ZapLogger) Fatal(msg string, fields ...interface{}) {
	l.logger.With(l.flattenFields()...).Fatalw(msg, fields...)
	os.Exit(1)
}

// WithFields returns a new logger carrying fields in addition to the
// receiver's existing field set.
func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &ZapLogger{logger: l.logger, fields: newFields}
}

// WithContext extracts the execution/node correlation values the engine
// stashes on ctx and returns a logger carrying them as fields.
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	fields := make(map[string]interface{})
	if executionID := ctx.Value(ctxKeyExecutionID); executionID != nil {
		fields["execution_id"] = executionID
	}
	if nodeID := ctx.Value(ctxKeyNodeID); nodeID != nil {
		fields["node_id"] = nodeID
	}
	if workflowID := ctx.Value(ctxKeyWorkflowID); workflowID != nil {
		fields["workflow_id"] = workflowID
	}
	return l.WithFields(fields)
}

func (l *ZapLogger) flattenFields() []interface{} {
	fields := make([]interface{}, 0, len(l.fields)*2)
	for k, v := range l.fields {
		fields = append(fields, k, v)
	}
	return fields
}

type ctxKey string

const (
	ctxKeyExecutionID ctxKey = "executionID"
	ctxKeyNodeID      ctxKey = "nodeID"
	ctxKeyWorkflowID  ctxKey = "workflowID"
)

// WithExecutionID returns a context carrying executionID for WithContext to pick up.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ctxKeyExecutionID, executionID)
}

// WithNodeID returns a context carrying nodeID for WithContext to pick up.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, ctxKeyNodeID, nodeID)
}

// WithWorkflowID returns a context carrying workflowID for WithContext to pick up.
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, ctxKeyWorkflowID, workflowID)
}
