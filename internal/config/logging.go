package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. An unknown level falls back to info with a warning.
func (c LogConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", c.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
