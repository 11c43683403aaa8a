// Package log is the process-wide logger. It wraps logrus so call sites can
// write log.Infof(...) the same way they would with the standard library.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger output.
type Options struct {
	Level      string // logrus level name, e.g. "info", "debug"
	File       string // optional rotating log file; empty logs to stderr only
	MaxSizeMB  int
	MaxBackups int
}

var std = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Setup applies the given options to the package logger.
func Setup(o Options) error {
	if o.Level != "" {
		lvl, err := logrus.ParseLevel(o.Level)
		if err != nil {
			return err
		}
		std.SetLevel(lvl)
	}
	if o.File == "" {
		std.SetOutput(os.Stderr)
		return nil
	}

	maxSize := o.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	backups := o.MaxBackups
	if backups <= 0 {
		backups = 5
	}
	std.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   o.File,
		MaxSize:    maxSize,
		MaxBackups: backups,
	}))
	return nil
}

// Logger returns the underlying logrus logger.
func Logger() *logrus.Logger { return std }

// SetOutput redirects log output; tests use it to silence or capture logs.
func SetOutput(w io.Writer) { std.SetOutput(w) }

func WithField(key string, value any) *logrus.Entry { return std.WithField(key, value) }

func WithFields(fields logrus.Fields) *logrus.Entry { return std.WithFields(fields) }

func Debug(args ...any)                 { std.Debug(args...) }
func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func Info(args ...any)                  { std.Info(args...) }
func Infof(format string, args ...any)  { std.Infof(format, args...) }
func Warn(args ...any)                  { std.Warn(args...) }
func Warnf(format string, args ...any)  { std.Warnf(format, args...) }
func Error(args ...any)                 { std.Error(args...) }
func Errorf(format string, args ...any) { std.Errorf(format, args...) }
func Fatalf(format string, args ...any) { std.Fatalf(format, args...) }
