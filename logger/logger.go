package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	Level    string
	Encoding string // "console" or "json"
	FilePath string // optional, rotated with lumberjack
}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  = newCore(Options{Encoding: "console"}).Sugar()
	closer func() error
)

func parseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	}
	return zapcore.InfoLevel, false
}

func newCore(opts Options) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.Encoding == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		sinks = append(sinks, zapcore.AddSync(rotator))
		closer = rotator.Close
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// Init replaces the process logger.
func Init(opts Options) {
	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		closer()
		closer = nil
	}
	if l, ok := parseLevel(opts.Level); ok {
		level.SetLevel(l)
	}
	sugar = newCore(opts).Sugar()
}

// Sync flushes buffered entries and closes the log file, if any.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = sugar.Sync()
	if closer != nil {
		closer()
		closer = nil
	}
}

// SetLogLevel sets the current logging level
func SetLogLevel(s string) {
	l, ok := parseLevel(s)
	if !ok {
		Warn("Unknown log level '%s', defaulting to INFO", s)
	}
	level.SetLevel(l)
}

// GetLogLevel returns the current log level as a string
func GetLogLevel() string {
	return level.Level().CapitalString()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// With returns a structured logger carrying the given key/value pairs.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return current().Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().With(keysAndValues...)
}

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	current().Infof(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	current().Errorf(format, v...)
}
