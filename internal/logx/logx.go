package logx

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// Init builds the process logger. Colours and a console encoder are used
// for local/dev environments; anything else gets the JSON production encoder.
func Init(level, env string) error {
	var cfg zap.Config
	if useColor(env) {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	SetLogger(l)
	return nil
}

// SetLogger replaces the backing logger (tests use zap.NewNop()).
func SetLogger(l *zap.Logger) {
	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	_ = l.Sync()
}

func useColor(env string) bool {
	return env == "local" || env == "dev"
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// --- Public API ---

func Debug(component, msg string, args ...any) {
	logGeneric(zapcore.DebugLevel, component, "", msg, args...)
}

func Info(component, msg string, args ...any) {
	logGeneric(zapcore.InfoLevel, component, "", msg, args...)
}

func Warn(component, msg string, args ...any) {
	logGeneric(zapcore.WarnLevel, component, "", msg, args...)
}

func Error(component, msg string, args ...any) {
	logGeneric(zapcore.ErrorLevel, component, "", msg, args...)
}

// L logs a line bound to a consultation id.
func L(id, component, msg string, args ...any) {
	logGeneric(zapcore.InfoLevel, component, id, msg, args...)
}

// G is the id-less variant used for startup logs.
func G(component, msg string, args ...any) {
	logGeneric(zapcore.InfoLevel, component, "", msg, args...)
}

// --- Core ---

func logGeneric(level zapcore.Level, component, id, msg string, args ...any) {
	full := msg
	if len(args) > 0 {
		full = fmt.Sprintf(msg, args...)
	}
	kv := []any{"component", component}
	if id != "" {
		kv = append(kv, "id", id)
	}
	l := current()
	switch level {
	case zapcore.DebugLevel:
		l.Debugw(full, kv...)
	case zapcore.WarnLevel:
		l.Warnw(full, kv...)
	case zapcore.ErrorLevel:
		l.Errorw(full, kv...)
	default:
		l.Infow(full, kv...)
	}
}
