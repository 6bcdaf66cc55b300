// Package logging provides structured logging for the MedAdhere sync core.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents a log level.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// DefaultRecentSize is the number of entries retained for GetRecentLogs.
const DefaultRecentSize = 200

// Config configures a Logger.
type Config struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	RecentSize int    `yaml:"recent_size"`
}

// Logger wraps a zap logger and keeps the most recent entries in memory.
type Logger struct {
	zl     *zap.Logger
	recent *recentBuffer
}

var (
	globalMu sync.RWMutex
	global   *Logger
)

// ParseLevel maps a config string onto a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a Logger writing to stdout.
func New(cfg Config) *Logger {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter builds a Logger writing encoded entries to out.
func NewWithWriter(out io.Writer, cfg Config) *Logger {
	level := ParseLevel(cfg.Level).zapLevel()

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	size := cfg.RecentSize
	if size <= 0 {
		size = DefaultRecentSize
	}
	recent := newRecentBuffer(size)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(out), level),
		&recentCore{LevelEnabler: level, buf: recent},
	)

	return &Logger{zl: zap.New(core), recent: recent}
}

// Init installs a new global logger built from cfg.
func Init(cfg Config) *Logger {
	l := New(cfg)
	SetGlobal(l)
	return l
}

// SetGlobal replaces the global logger.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// Get returns the global logger instance.
func Get() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(Config{Level: "info"})
	}
	return global
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.zl.Debug(message, toFields(context)...)
}

// Info logs an info message.
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.zl.Info(message, toFields(context)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.zl.Warn(message, toFields(context)...)
}

// Error logs an error message.
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	fields := toFields(context)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.zl.Error(message, fields...)
}

// ErrorWithCode logs an error tagged with a stable error code.
func (l *Logger) ErrorWithCode(message, code string, err error, context ...map[string]interface{}) {
	fields := append(toFields(context), zap.String("code", code))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.zl.Error(message, fields...)
}

// Recent returns up to n of the most recent entries, oldest first.
// n <= 0 returns everything retained.
func (l *Logger) Recent(n int) []LogEntry {
	return l.recent.last(n)
}

// toFields merges context maps into zap fields with a stable key order.
func toFields(context []map[string]interface{}) []zap.Field {
	if len(context) == 0 {
		return nil
	}
	merged := context[0]
	if len(context) > 1 {
		merged = make(map[string]interface{})
		for _, c := range context {
			for k, v := range c {
				merged[k] = v
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, merged[k]))
	}
	return fields
}

// Convenience functions using global logger

func Debug(message string, context ...map[string]interface{}) {
	Get().Debug(message, context...)
}

func Info(message string, context ...map[string]interface{}) {
	Get().Info(message, context...)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...map[string]interface{}) {
	Get().Error(message, err, context...)
}

func ErrorWithCode(message, code string, err error, context ...map[string]interface{}) {
	Get().ErrorWithCode(message, code, err, context...)
}

// Recent returns the global logger's most recent entries.
func Recent(n int) []LogEntry {
	return Get().Recent(n)
}

// LogEntry represents a retained log entry.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// recentCore is a zapcore.Core that copies entries into a ring buffer.
type recentCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
	buf    *recentBuffer
}

func (c *recentCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &recentCore{
		LevelEnabler: c.LevelEnabler,
		fields:       make([]zapcore.Field, 0, len(c.fields)+len(fields)),
		buf:          c.buf,
	}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *recentCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *recentCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	entry := LogEntry{
		Timestamp: ent.Time.UTC().Format(time.RFC3339),
		Level:     ent.Level.CapitalString(),
		Message:   ent.Message,
	}
	if v, ok := enc.Fields["error"]; ok {
		entry.Error = fmt.Sprint(v)
		delete(enc.Fields, "error")
	}
	if len(enc.Fields) > 0 {
		entry.Context = enc.Fields
	}

	c.buf.add(entry)
	return nil
}

func (c *recentCore) Sync() error {
	return nil
}

// recentBuffer is a fixed-capacity ring of log entries.
type recentBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

func newRecentBuffer(size int) *recentBuffer {
	return &recentBuffer{entries: make([]LogEntry, size)}
}

func (b *recentBuffer) add(e LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

func (b *recentBuffer) last(n int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ordered []LogEntry
	if b.full {
		ordered = append(ordered, b.entries[b.next:]...)
		ordered = append(ordered, b.entries[:b.next]...)
	} else {
		ordered = append(ordered, b.entries[:b.next]...)
	}
	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
