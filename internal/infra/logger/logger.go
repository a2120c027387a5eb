package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

type Logger struct {
	sink          *sink
	level         Level
	includeStdout bool
	fields        string
}

// sink is shared by a logger and every child created with With.
type sink struct {
	mu     sync.Mutex
	file   *log.Logger
	stdout io.Writer
	closer io.Closer
}

// New writes to filePath when set and mirrors Info and above to stdout
// when includeStdout is true.
func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	s := &sink{stdout: os.Stdout}

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		s.file = log.New(f, "", 0)
		s.closer = f
	}

	return &Logger{
		sink:          s,
		level:         level,
		includeStdout: includeStdout || filePath == "",
	}, nil
}

// NewWriter logs every level at or above level to w.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{sink: &sink{file: log.New(w, "", 0)}, level: level}
}

// NewNop discards everything.
func NewNop() *Logger {
	return NewWriter(io.Discard, LevelFatal+1)
}

// With returns a child logger that prefixes every message with key=value.
func (l *Logger) With(key string, value any) *Logger {
	child := *l
	child.fields = fmt.Sprintf("%s%s=%v ", l.fields, key, value)
	return &child
}

func (l *Logger) Close() error {
	if l.sink.closer == nil {
		return nil
	}
	return l.sink.closer.Close()
}

func (l *Logger) log(lvl Level, prefix string, format string, v ...interface{}) {
	if lvl < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	fullMsg := fmt.Sprintf("%s [%s] %s%s", timestamp, prefix, l.fields, msg)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file != nil {
		l.sink.file.Println(fullMsg)
	}

	// Debug stays in the file so stdout is readable under Docker
	if l.includeStdout && lvl >= LevelInfo && l.sink.stdout != nil {
		fmt.Fprintln(l.sink.stdout, fullMsg)
	}
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, "DEBUG", f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, "INFO", f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, "WARN", f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, "ERROR", f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, "FATAL", f, v...); os.Exit(1) }

func (l *Logger) Write(p []byte) (n int, err error) {
	// Echo and other libraries often include a newline at the end
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
