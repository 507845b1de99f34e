package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logger with JSON output and an environment-driven level.
func New() *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})

	log.SetOutput(os.Stdout)
	SetLevel(log, os.Getenv("LOG_LEVEL"))

	return log
}

// SetLevel applies a level name to an existing logger. Unknown names fall
// back to info.
func SetLevel(log *logrus.Logger, level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}

// SetFormat switches between JSON and text output.
func SetFormat(log *logrus.Logger, format string) {
	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
