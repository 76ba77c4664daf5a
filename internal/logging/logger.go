// Package logging provides structured logging for the offline layer.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. Format is "json" or "text".
func Init(out io.Writer, level string, format string) {
	once.Do(func() {
		global = logrus.New()
		global.SetOutput(out)

		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		global.SetLevel(lvl)

		if format == "text" {
			global.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			global.SetFormatter(&logrus.JSONFormatter{})
		}
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info", "json")
	}
	return global
}

// Fields is a shorthand for structured log fields.
type Fields = logrus.Fields

// Convenience functions using the global logger

func Debug(message string, fields Fields) {
	Get().WithFields(fields).Debug(message)
}

func Info(message string, fields Fields) {
	Get().WithFields(fields).Info(message)
}

func Warn(message string, fields Fields) {
	Get().WithFields(fields).Warn(message)
}

func Error(message string, err error, fields Fields) {
	entry := Get().WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
