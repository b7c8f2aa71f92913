// Package logutils configures the global logrus logger of the bundleota binaries.
package logutils

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Levels and Formats are the accepted values of the log flags.
var (
	Levels  = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "trace", "debug", "info", "warn", "error"}
	Formats = []string{"TEXT", "JSON", "text", "json"}
)

// UTCFormatter wraps a formatter and converts entry timestamps to UTC.
type UTCFormatter struct {
	log.Formatter
}

func (u *UTCFormatter) Format(e *log.Entry) ([]byte, error) {
	e.Time = e.Time.UTC()
	return u.Formatter.Format(e)
}

// NewFormatter returns the UTC formatter for the named format, unknown names fall back to text.
func NewFormatter(format string) log.Formatter {
	if strings.EqualFold(format, "JSON") {
		return &UTCFormatter{Formatter: &log.JSONFormatter{}}
	}
	return &UTCFormatter{Formatter: &log.TextFormatter{FullTimestamp: true}}
}

func SetLogFormat(format string) {
	log.SetFormatter(NewFormatter(format))
}

// SetLogLevel sets the global level, case-insensitively. Unknown levels keep the current one.
func SetLogLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warnf("keeping log level %s", log.GetLevel())
		return
	}
	log.SetLevel(lvl)
}

// SetupTestLogging logs everything down to debug in text format.
func SetupTestLogging() {
	log.SetLevel(log.DebugLevel)
	SetLogFormat("TEXT")
}
