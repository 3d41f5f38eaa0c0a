// Package config holds the ambient process configuration: logging
// setup and the comma-separated environment-variable convention the
// subsystem Config types are parsed from.
package config

import (
	stdlog "log"
	"log/syslog"
	"os"

	"github.com/op/go-logging"
)

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
)
var stderrFormat = logging.MustStringFormatter(
	`%{color}%{module} ▶ %{message}%{color:reset}`,
)

// SetupLogging selects a syslog or stderr backend with a colorized
// stderr formatter. The prefix is caller-supplied and the level comes
// from DIRECT_LOG_LEVEL, so an embedder can run multiple independent
// Managers with separate log streams rather than relying on one
// process-global logger.
func SetupLogging(prefix string, defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	log := logging.MustGetLogger(prefix)

	var backend logging.Backend
	if trySyslog {
		var err error
		backend, err = logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
		if err == nil {
			logging.SetFormatter(syslogFormat)
			if sb, ok := backend.(*logging.SyslogBackend); ok {
				stdlog.SetOutput(sb.Writer)
			}
		} else {
			backend = nil
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	switch os.Getenv("DIRECT_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, prefix)
	case "ERROR":
		leveled.SetLevel(logging.ERROR, prefix)
	case "WARNING":
		leveled.SetLevel(logging.WARNING, prefix)
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, prefix)
	case "INFO":
		leveled.SetLevel(logging.INFO, prefix)
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, prefix)
	default:
		leveled.SetLevel(defaultLevel, prefix)
	}

	logging.SetBackend(leveled)
	return log
}
