package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents log levels
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// LogFormat represents log output formats
type LogFormat string

const (
	JSONFormat LogFormat = "json"
	TextFormat LogFormat = "text"
)

// Config represents logger configuration
type Config struct {
	Level  LogLevel
	Format LogFormat
	Output string // file path or "stdout"
	// Tee also writes to stdout when Output is a file.
	Tee bool
}

var (
	mu       sync.RWMutex
	instance *logrus.Logger
	once     sync.Once
)

// Init initializes the global logger from LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT.
func Init() {
	once.Do(func() {
		l := New(configFromEnv())
		mu.Lock()
		instance = l
		mu.Unlock()
	})
}

// New creates a logger for cfg. File outputs that cannot be opened fall back
// to stdout.
func New(cfg Config) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(parseLevel(cfg.Level))

	if cfg.Format == TextFormat {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "caller",
			},
		})
	}

	out, err := openOutput(cfg)
	if err != nil {
		l.SetOutput(os.Stdout)
		l.WithError(err).Warn("log output unavailable, using stdout")
	} else {
		l.SetOutput(out)
	}

	l.SetReportCaller(cfg.Level == DebugLevel)
	return l
}

// SetOutput redirects the global logger, mainly for tests.
func SetOutput(w io.Writer) {
	get().SetOutput(w)
}

func openOutput(cfg Config) (io.Writer, error) {
	if cfg.Output == "" || cfg.Output == "stdout" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if cfg.Tee {
		return io.MultiWriter(file, os.Stdout), nil
	}
	return file, nil
}

func configFromEnv() Config {
	cfg := Config{
		Level:  InfoLevel,
		Format: JSONFormat,
		Output: "stdout",
		Tee:    os.Getenv("APP_ENV") == "development",
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = LogFormat(strings.ToLower(format))
	}
	if output := os.Getenv("LOG_OUTPUT"); output != "" {
		cfg.Output = output
	}
	return cfg
}

func parseLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// get returns the global logger, or the logrus standard logger before Init.
func get() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if instance != nil {
		return instance
	}
	return logrus.StandardLogger()
}

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }
func Info(args ...interface{})                  { get().Info(args...) }
func Infof(format string, args ...interface{})  { get().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { get().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { get().Fatalf(format, args...) }

func WithField(key string, value interface{}) *logrus.Entry {
	return get().WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return get().WithFields(fields)
}

func WithError(err error) *logrus.Entry {
	return get().WithError(err)
}

// LogRequest logs one HTTP request.
func LogRequest(method, path, ip string, duration time.Duration, statusCode int) {
	entry := WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"ip":          ip,
		"duration_ms": duration.Milliseconds(),
		"status_code": statusCode,
		"type":        "request",
	})
	if statusCode >= 500 {
		entry.Error("HTTP Request")
		return
	}
	entry.Info("HTTP Request")
}

// LogNegotiationEvent logs conversation lifecycle events: messages, toggles,
// agreement and closing.
func LogNegotiationEvent(event, conversationID, userID string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"event":           event,
		"conversation_id": conversationID,
		"user_id":         userID,
		"type":            "negotiation_event",
	}
	for k, v := range metadata {
		fields[k] = v
	}
	WithFields(fields).Info("Negotiation Event")
}

// LogSecurityEvent logs blocked off-platform attempts and suspensions.
func LogSecurityEvent(event, userID, ip string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"event":   event,
		"user_id": userID,
		"type":    "security_event",
	}
	if ip != "" {
		fields["ip"] = ip
	}
	for k, v := range metadata {
		fields[k] = v
	}
	WithFields(fields).Warn("Security Event")
}

// LogAdminAction logs admin actions
func LogAdminAction(adminID, action, target string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"admin_id": adminID,
		"action":   action,
		"target":   target,
		"type":     "admin_action",
	}
	for k, v := range metadata {
		fields[k] = v
	}
	WithFields(fields).Warn("Admin Action")
}

// LogError logs detailed error information
func LogError(err error, context string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"error":   err.Error(),
		"context": context,
		"type":    "error_detail",
	}
	for k, v := range metadata {
		fields[k] = v
	}
	if os.Getenv("APP_ENV") == "development" {
		fields["stack_trace"] = stackTrace()
	}
	WithFields(fields).Error("Application Error")
}

func stackTrace() string {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Close closes a file output.
func Close() error {
	if file, ok := get().Out.(*os.File); ok && file != os.Stdout && file != os.Stderr {
		return file.Close()
	}
	return nil
}
