package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryJob       LogCategory = "job"       // Job submissions and state changes (JSON)
	CategoryDetection LogCategory = "detection" // Newly recorded media per context (JSON)
	CategoryError     LogCategory = "error"     // Application errors (JSON)
)

// MultiLogger provides categorized logging with separate output files
type MultiLogger struct {
	loggers map[LogCategory]*zap.Logger
	files   []*os.File
	config  MultiLoggerConfig
	mu      sync.RWMutex
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		loggers: make(map[LogCategory]*zap.Logger),
		config:  config,
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	levels := map[LogCategory]zapcore.Level{
		CategoryJob:       level,
		CategoryDetection: level,
		CategoryError:     zapcore.ErrorLevel,
	}
	for category, lvl := range levels {
		l, err := ml.createStructuredLogger(category, lvl)
		if err != nil {
			ml.Close()
			return nil, fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		ml.loggers[category] = l
	}

	return ml, nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, level zapcore.Level) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.CallerKey = ""

	file, err := os.OpenFile(ml.categoryLogPath(category), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	ml.files = append(ml.files, file)

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level)
	return zap.New(core), nil
}

// categoryLogPath generates a log file path for a category with current date
func (ml *MultiLogger) categoryLogPath(category LogCategory) string {
	filename := fmt.Sprintf("%s-%s.log", category, time.Now().Format("20060102"))
	return filepath.Join(ml.config.LogsDir, filename)
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if l, ok := ml.loggers[category]; ok {
		return l
	}
	if l, ok := ml.loggers[CategoryError]; ok {
		return l
	}
	return zap.NewNop()
}

// LogAppError logs an application-level error
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.GetLogger(CategoryError).Error(msg, fields...)
}

// LogJobEvent logs a job lifecycle event with structured data
func (ml *MultiLogger) LogJobEvent(event string, fields ...zap.Field) {
	ml.GetLogger(CategoryJob).Info(event, fields...)
}

// LogDetectionEvent logs a newly recorded media candidate
func (ml *MultiLogger) LogDetectionEvent(event string, fields ...zap.Field) {
	ml.GetLogger(CategoryDetection).Info(event, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, l := range ml.loggers {
		if err := l.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes all loggers and closes their files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, l := range ml.loggers {
		if err := l.Sync(); err != nil {
			lastErr = err
		}
	}
	for _, f := range ml.files {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	ml.files = nil
	return lastErr
}
