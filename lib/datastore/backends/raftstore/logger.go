package raftstore

import (
	"strings"
	"sync"

	dblogger "github.com/lni/dragonboat/v4/logger"
	"github.com/sirupsen/logrus"
)

// --------------------------------------------------------------------------
// Dragonboat Logger Adapter (implements dragonboat's logger.ILogger)
// --------------------------------------------------------------------------

// raftLogger routes dragonboat's internal logging through logrus so the
// backend logs look like the rest of the application.
type raftLogger struct {
	entry *logrus.Entry
	level dblogger.LogLevel
}

func (l *raftLogger) SetLevel(level dblogger.LogLevel) {
	l.level = level
}

func (l *raftLogger) Debugf(format string, args ...interface{}) {
	if l.level >= dblogger.DEBUG {
		l.entry.Debugf(format, args...)
	}
}

func (l *raftLogger) Infof(format string, args ...interface{}) {
	if l.level >= dblogger.INFO {
		l.entry.Infof(format, args...)
	}
}

func (l *raftLogger) Warningf(format string, args ...interface{}) {
	if l.level >= dblogger.WARNING {
		l.entry.Warnf(format, args...)
	}
}

func (l *raftLogger) Errorf(format string, args ...interface{}) {
	if l.level >= dblogger.ERROR {
		l.entry.Errorf(format, args...)
	}
}

func (l *raftLogger) Panicf(format string, args ...interface{}) {
	if l.level >= dblogger.CRITICAL {
		l.entry.Panicf(format, args...)
	}
}

// createLogger implements the dragonboat logger factory interface.
func createLogger(pkgName string) dblogger.ILogger {
	return &raftLogger{
		entry: logrus.WithField("component", pkgName),
		level: dblogger.WARNING,
	}
}

var loggerSetupOnce sync.Once

// initLoggers installs the logrus adapter as dragonboat's logger factory
// and sets the level on every subsystem dragonboat logs through. Called
// once per process, before the first NodeHost is created.
func initLoggers(level string) {
	loggerSetupOnce.Do(func() {
		dblogger.SetLoggerFactory(createLogger)

		parsed := parseLogLevel(level)
		for _, name := range []string{
			"raft", "raftdb", "rsm", "transport",
			"dragonboat", "grpc", "util", "logdb", "config",
		} {
			dblogger.GetLogger(name).SetLevel(parsed)
		}
	})
}

// parseLogLevel converts a string level to dragonboat's LogLevel. Unknown
// levels fall back to WARNING so a typo never makes the backend chatty.
func parseLogLevel(level string) dblogger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return dblogger.DEBUG
	case "info":
		return dblogger.INFO
	case "warning", "warn", "":
		return dblogger.WARNING
	case "error":
		return dblogger.ERROR
	case "critical":
		return dblogger.CRITICAL
	default:
		logrus.Warnf("unknown raft log level %q, using warning", level)
		return dblogger.WARNING
	}
}
