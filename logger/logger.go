// Package logger handles structured logging for the submission pipeline.
// Messages take a message string followed by key-value pairs, and land on
// logrus with a "ns" (namespace) field identifying the subsystem.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/sirupsen/logrus"
)

// Logger is responsible for logging messages from code.
type Logger struct {
	logrus *logrus.Logger
	entry  *logrus.Entry
}

// New returns a new Logger instance for the given namespace, with the
// default configuration applied. Arguments after the namespace are base
// key-value pairs included in every message.
func New(ns string, args ...interface{}) *Logger {
	log := logrus.New()
	f := fields(args...)
	f["ns"] = ns
	l := &Logger{logrus: log, entry: log.WithFields(f)}
	l.Configure(DefaultConfig())
	return l
}

// Sub returns a new sub-logger instance in the given namespace. The child
// shares the parent's level, formatter and output.
func (l *Logger) Sub(ns string, args ...interface{}) *Logger {
	f := fields(args...)
	f["ns"] = ns
	return &Logger{logrus: l.logrus, entry: l.entry.WithFields(f)}
}

// WithFields returns a new Logger instance with the given fields added to
// all log messages.
func (l *Logger) WithFields(args ...interface{}) *Logger {
	return &Logger{logrus: l.logrus, entry: l.entry.WithFields(fields(args...))}
}

// Debug logs a debug message.
//
// After the first argument, arguments are key-value pairs which are written
// as structured logs.
//
//	log.Debug("some message here", "key1", value1, "key2", value2)
func (l *Logger) Debug(msg string, args ...interface{}) {
	defer recoverLogErr()
	l.entry.WithFields(fields(args...)).Debug(msg)
}

// Info logs an info message.
//
// After the first argument, arguments are key-value pairs which are written
// as structured logs.
//
//	log.Info("some message here", "key1", value1, "key2", value2)
func (l *Logger) Info(msg string, args ...interface{}) {
	defer recoverLogErr()
	l.entry.WithFields(fields(args...)).Info(msg)
}

// Warn logs a warning message.
//
// After the first argument, arguments are key-value pairs which are written
// as structured logs.
//
//	log.Warn("some message here", "key1", value1, "key2", value2)
func (l *Logger) Warn(msg string, args ...interface{}) {
	defer recoverLogErr()
	l.entry.WithFields(fields(args...)).Warn(msg)
}

// Error logs an error message.
//
// After the first argument, arguments are key-value pairs which are written
// as structured logs.
//
//	log.Error("some message here", "key1", value1, "key2", value2)
//
// Error has a two-argument version that can be used as a shortcut.
//
//	err := submitBatch()
//	log.Error("couldn't submit batch", err)
func (l *Logger) Error(msg string, args ...interface{}) {
	defer recoverLogErr()
	l.entry.WithFields(fields(args...)).Error(msg)
}

// SetLevel sets the level of logging.
func (l *Logger) SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		l.logrus.SetLevel(logrus.DebugLevel)
	case "info":
		l.logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		l.logrus.SetLevel(logrus.WarnLevel)
	case "error":
		l.logrus.SetLevel(logrus.ErrorLevel)
	default:
		l.logrus.SetLevel(logrus.InfoLevel)
	}
}

// SetFormatter sets the log output formatter.
func (l *Logger) SetFormatter(f logrus.Formatter) {
	l.logrus.SetFormatter(f)
}

// SetOutput sets the logging output destination.
func (l *Logger) SetOutput(w io.Writer) {
	l.logrus.SetOutput(w)
}

// Discard configures the logger to discard all logs.
func (l *Logger) Discard() {
	l.SetOutput(io.Discard)
}

// recoverLogErr is used to recover from any panics during logging.
// Panics aren't expected of course, but logging should never crash
// a program, so this failsafe tries to prevent those crashes.
func recoverLogErr() {
	if r := recover(); r != nil {
		fmt.Println("Recovered from logging panic", r)
	}
}

// PrintSimpleError prints out an error message with a red "ERROR:" prefix.
func PrintSimpleError(err error) {
	fmt.Fprintln(os.Stderr, aurora.Red("ERROR:"), err.Error())
}

func fields(args ...interface{}) map[string]interface{} {
	f := make(map[string]interface{}, len(args)/2)

	if len(args) == 1 {
		if err, ok := args[0].(error); ok {
			f["error"] = err
		} else {
			f["unknown"] = args[0]
		}
		return f
	}

	if len(args)%2 != 0 {
		f["unknown"] = args[len(args)-1]
		args = args[:len(args)-1]
	}

	for i := 0; i < len(args); i += 2 {
		k := fmt.Sprintf("%v", args[i])
		f[k] = args[i+1]
	}

	return f
}
