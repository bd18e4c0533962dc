// pkg/logger/logger.go

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log levels
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// Options configures a Logger. An empty FilePath logs to stdout only.
type Options struct {
	FilePath   string
	Level      string
	Debug      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Logger struct {
	log       *logrus.Logger
	file      *lumberjack.Logger
	logLevel  string
	debugMode bool
}

func NewLogger(opts Options) *Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     opts.Debug,
	})
	l.SetLevel(toLogrusLevel(opts.Level))

	var file *lumberjack.Logger
	var out io.Writer = os.Stdout
	if opts.FilePath != "" {
		file = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
			LocalTime:  true,
		}
		out = io.MultiWriter(os.Stdout, file)
	}
	l.SetOutput(out)

	return &Logger{
		log:       l,
		file:      file,
		logLevel:  strings.ToUpper(opts.Level),
		debugMode: opts.Debug,
	}
}

// NewDiscard returns a logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{log: l, logLevel: LevelError}
}

func toLogrusLevel(level string) logrus.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.log.Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.log.Fatal(fmt.Sprintf(format, v...))
}

// WithComponent returns an entry tagged with the component name.
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.log.WithField("component", component)
}

// Status prints a boxed block of key/value pairs (startup summary).
func (l *Logger) Status(title string, stats map[string]string) {
	out := l.log.Out
	fmt.Fprintln(out, strings.Repeat("─", 50))
	fmt.Fprintln(out, "📊 "+title)
	for key, value := range stats {
		fmt.Fprintf(out, "   %-20s: %s\n", key, value)
	}
	fmt.Fprintln(out, strings.Repeat("─", 50))
}

func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}
