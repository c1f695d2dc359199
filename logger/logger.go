package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with a service identity.
type Logger struct {
	logger  zerolog.Logger
	service string
}

// Init builds the global logger from cfg. Package-level logging and
// GetGlobalLogger use it afterwards.
func Init(cfg *Config) {
	cfg.ApplyDefaults()
	name := cfg.ServiceName
	if name == "" {
		name = "default"
	}
	globalLogger = New(cfg, name)

	if level, err := zerolog.ParseLevel(cfg.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
}

// New creates a logger from cfg. The level filter applies to this
// logger alone, not to the zerolog global level.
func New(cfg *Config, serviceName string) *Logger {
	zl := zerolog.New(outputWriter(cfg.Output))
	if strings.EqualFold(cfg.Format, "console") {
		zl = newConsoleLogger(cfg, serviceName)
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	lc := zl.Level(level).With()
	if cfg.Timestamp {
		lc = lc.Timestamp()
	}
	if cfg.Caller {
		lc = lc.Caller()
	}
	return &Logger{logger: lc.Logger(), service: serviceName}
}

// NewDefault creates a console logger at info level.
func NewDefault(serviceName string) *Logger {
	return New(&Config{
		Level:     "info",
		Format:    "console",
		Output:    "stdout",
		Timestamp: true,
	}, serviceName)
}

type contextKey string

const executionIDKey = contextKey("execution_id")

// ContextWithExecutionID stores a lifecycle execution ID for
// WithContext to pick up.
func ContextWithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithContext returns a logger that tags every line with the execution
// ID stored in ctx. Without one, the receiver is returned unchanged.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	id, ok := ctx.Value(executionIDKey).(string)
	if !ok || id == "" {
		return l
	}
	tagged := l.logger.With().Str(FieldExecutionID, id).Logger()
	return &Logger{logger: tagged, service: l.service}
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	tagged := l.logger.With().Str(FieldComponent, name).Logger()
	return &Logger{logger: tagged, service: l.service}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.emit(zerolog.DebugLevel, msg, fields)
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.emit(zerolog.InfoLevel, msg, fields)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.emit(zerolog.WarnLevel, msg, fields)
}

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.emit(zerolog.ErrorLevel, msg, fields)
}

// emit writes one line at the given level. Field maps land on the line
// with their keys sorted, so repeated runs produce comparable output.
func (l *Logger) emit(level zerolog.Level, msg string, fields []map[string]interface{}) {
	event := l.logger.WithLevel(level)
	for _, fm := range fields {
		event = event.Fields(fm)
	}
	event.Msg(msg)
}

// --- Global logger ---

var globalLogger *Logger

// GetGlobalLogger returns the global logger. Before Init runs, it
// lazily creates a default console logger.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewDefault("default")
	}
	return globalLogger
}

// Package-level logging delegates to the global logger.

func Debug(msg string, fields ...map[string]interface{}) { GetGlobalLogger().Debug(msg, fields...) }

func Info(msg string, fields ...map[string]interface{}) { GetGlobalLogger().Info(msg, fields...) }

func Warn(msg string, fields ...map[string]interface{}) { GetGlobalLogger().Warn(msg, fields...) }

func Error(msg string, fields ...map[string]interface{}) { GetGlobalLogger().Error(msg, fields...) }

// --- console rendering ---

const ansiReset = "\033[0m"

// levelStyles maps upper-case level names to the compact tag and ANSI
// color the console writer prints.
var levelStyles = map[string]struct{ tag, color string }{
	"DEBUG": {"[DBG]", "\033[36m"},
	"INFO":  {"[INF]", "\033[32m"},
	"WARN":  {"[WRN]", "\033[33m"},
	"ERROR": {"[ERR]", "\033[31m"},
	"FATAL": {"[FTL]", "\033[35m"},
}

func newConsoleLogger(cfg *Config, serviceName string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:              outputWriter(cfg.Output),
		TimeFormat:       "15:04:05",
		NoColor:          cfg.NoColor,
		FormatLevel:      levelFormatter(cfg.NoColor, serviceName),
		FormatMessage:    stringify,
		FormatFieldValue: stringify,
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprint(i) + ":"
		},
	})
}

// levelFormatter renders the "[SVC][LVL]" line prefix. The service tag
// appears only for named loggers; both parts are colored unless
// noColor is set.
func levelFormatter(noColor bool, serviceName string) zerolog.Formatter {
	prefix := ""
	if len(serviceName) >= 3 && serviceName != "default" {
		prefix = "[" + strings.ToUpper(serviceName[:3]) + "]"
		if !noColor {
			prefix = "\033[34m" + prefix + ansiReset
		}
	}
	return func(i interface{}) string {
		lvl := strings.ToUpper(fmt.Sprint(i))
		style, known := levelStyles[lvl]
		switch {
		case !known:
			return prefix + "[" + lvl + "]"
		case noColor:
			return prefix + style.tag
		}
		return prefix + style.color + style.tag + ansiReset
	}
}

func stringify(i interface{}) string {
	if i == nil {
		return ""
	}
	return fmt.Sprint(i)
}

func outputWriter(output string) *os.File {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}
