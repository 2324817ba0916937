// Package logging also exposes Config/NewLogger, the one
// construction path pipelinectl and its tests use to build the
// *logrus.Logger handed to the scheduler and workflow executor.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Level is one of logrus's level names, taken from config/flags/env.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config configures the logger NewLogger builds.
type Config struct {
	Level      Level
	Format     string // "json" or "text"
	AddCaller  bool
	TimeFormat string
}

// DefaultConfig returns a Config with sensible defaults for local runs.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds a *logrus.Logger from cfg, routed through
// OutputSplitter regardless of format.
func NewLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: cfg.TimeFormat, FullTimestamp: true})
	}

	logger.SetReportCaller(cfg.AddCaller)
	logger.SetOutput(&OutputSplitter{})
	return logger
}
