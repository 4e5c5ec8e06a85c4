// Package logging provides structured logging with zap.
package logging

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
)

var (
	globalLogger *zap.Logger
	globalLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Init initializes the global logger.
func Init(cfg Config) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	if cfg.Format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	globalLevel.SetLevel(level)
	config.Level = globalLevel
	if cfg.OutputPath != "" {
		config.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	globalLogger = logger
	return nil
}

// InitDefault initializes with default production settings.
func InitDefault() {
	logger, _ := zap.NewProduction(zap.AddCallerSkip(1))
	globalLogger = logger
}

// InitNop installs a logger that discards everything. Used by tests.
func InitNop() {
	globalLogger = zap.NewNop()
}

// Sync flushes any buffered log entries.
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// SetLevel changes the global log level at runtime.
func SetLevel(level string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	globalLevel.SetLevel(l)
	return nil
}

// Level returns the current global log level.
func Level() string {
	return globalLevel.Level().String()
}

// L returns the global logger.
func L() *zap.Logger {
	if globalLogger == nil {
		InitDefault()
	}
	return globalLogger
}

// WithContext returns a logger from context, or the global logger.
func WithContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return L()
}

// WithRequestID adds a request ID to the logger and returns a new context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	logger := WithContext(ctx).With(zap.String("request_id", requestID))
	ctx = context.WithValue(ctx, loggerKey, logger)
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Debug logs a debug message.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs an info message.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn logs a warning message.
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs an error message.
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Fatal logs a fatal message and exits.
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}

var requestIDCounter atomic.Uint64

func generateRequestID() string {
	n := requestIDCounter.Add(1)
	return time.Now().UTC().Format("20060102150405") + "-" + strconv.FormatUint(n, 36)
}

// validRequestID admits caller-supplied IDs that are short and printable so
// they cannot forge log lines.
func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture status and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that tags each request with an ID and
// logs its outcome. Server errors log at warn, health checks at debug.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if !validRequestID(requestID) {
			requestID = generateRequestID()
		}

		ctx := WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		logger := WithContext(ctx)
		logger.Debug("request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)

		next.ServeHTTP(rw, r)

		level := zapcore.InfoLevel
		switch {
		case rw.status >= http.StatusInternalServerError:
			level = zapcore.WarnLevel
		case r.URL.Path == "/health":
			level = zapcore.DebugLevel
		}
		if ce := logger.Check(level, "request completed"); ce != nil {
			ce.Write(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", rw.status),
				zap.Int64("size", rw.size),
				zap.Duration("duration", time.Since(start)),
			)
		}
	})
}
