package core

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// logger is a process-wide singleton: every package in this module logs
// through core.Log*, never by constructing its own *log.Logger, so the
// level set by a config reload applies everywhere at once.
type logger struct {
	*log.Logger
}

var (
	once      sync.Once
	singleton *logger
)

func getLogger() *logger {
	once.Do(func() {
		l := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "FrameGraph 🧩 ",
			Level:           log.InfoLevel,
		})
		singleton = &logger{l}
	})
	return singleton
}

// SetLevel adjusts the global log verbosity; called by ConfigWatcher when
// it first loads its config file and again on every hot-reload.
func SetLevel(level log.Level) {
	getLogger().SetLevel(level)
}

// LogDebug and LogInfo cover the steady-state, expected-to-be-noisy path:
// per-command translation detail, per-frame bookkeeping.
func LogDebug(msg string, args ...interface{}) { getLogger().Debugf(msg, args...) }
func LogInfo(msg string, args ...interface{})  { getLogger().Infof(msg, args...) }

// LogWarn, LogError, and LogFatal cover conditions worth an operator's
// attention: recoverable anomalies, propagated errors, and unrecoverable
// ones, respectively.
func LogWarn(msg string, args ...interface{})  { getLogger().Warnf(msg, args...) }
func LogError(msg string, args ...interface{}) { getLogger().Errorf(msg, args...) }
func LogFatal(msg string, args ...interface{}) { getLogger().Fatalf(msg, args...) }
