package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// LoggingConfig configures a ProductionLogger's output shape.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "text"
	Output string // "stdout" or "stderr"
}

// DevelopmentConfig relaxes a ProductionLogger for local iteration:
// DisableRateLimit turns off error-rate limiting. Pretty is stored but not
// read by ProductionLogger; output format comes from LoggingConfig.Format.
type DevelopmentConfig struct {
	Pretty         bool
	DisableRateLimit bool
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// ProductionLogger is the structured logger used by every CIRIS component.
// It mirrors the teacher's TelemetryLogger: JSON in production, text for
// local dev, and a rate limiter on the ERROR path so a failure storm never
// floods stdout.
type ProductionLogger struct {
	component string
	level     string
	format    string
	output    *os.File
	mu        sync.Mutex

	errLimiter *errorRateLimiter
	dev        DevelopmentConfig
}

// NewProductionLogger builds a logger for the named component.
func NewProductionLogger(cfg LoggingConfig, dev DevelopmentConfig, component string) *ProductionLogger {
	level := strings.ToUpper(cfg.Level)
	if level == "" {
		level = "INFO"
	}
	format := cfg.Format
	if format == "" {
		format = "text"
	}
	out := os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}
	return &ProductionLogger{
		component:  component,
		level:      level,
		format:     format,
		output:     out,
		errLimiter: newErrorRateLimiter(time.Second, dev.DisableRateLimit),
		dev:        dev,
	}
}

func (l *ProductionLogger) WithComponent(component string) Logger {
	cp := *l
	cp.component = component
	return &cp
}

func (l *ProductionLogger) enabled(level string) bool {
	return levelRank[level] >= levelRank[l.level]
}

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	if !l.enabled(level) {
		return
	}
	if level == "ERROR" && l.errLimiter != nil && !l.errLimiter.allow() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		entry := map[string]interface{}{
			"ts":        time.Now().UTC().Format(time.RFC3339Nano),
			"level":     level,
			"component": l.component,
			"msg":       msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.output, "%s [%s] %s (log marshal error: %v)\n", time.Now().UTC().Format(time.RFC3339), level, msg, err)
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	fmt.Fprintf(l.output, "%s [%s] %s: %s %v\n", time.Now().UTC().Format(time.RFC3339), level, l.component, msg, fields)
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) { l.log("ERROR", msg, fields) }
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) { l.log("DEBUG", msg, fields) }

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("INFO", msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("WARN", msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, withCorrelation(ctx, fields))
}

type correlationIDKey struct{}

// ContextWithCorrelationID attaches a correlation id so every *WithContext
// log line downstream of a dispatch carries it automatically.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext retrieves the id set by ContextWithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey{}).(string)
	return id, ok
}

func withCorrelation(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	id, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return fields
	}
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["correlation_id"] = id
	return out
}

type errorRateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	last     time.Time
	disabled bool
}

func newErrorRateLimiter(window time.Duration, disabled bool) *errorRateLimiter {
	return &errorRateLimiter{window: window, disabled: disabled}
}

func (r *errorRateLimiter) allow() bool {
	if r.disabled {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.last) < r.window {
		return false
	}
	r.last = now
	return true
}

var _ ComponentAwareLogger = (*ProductionLogger)(nil)
