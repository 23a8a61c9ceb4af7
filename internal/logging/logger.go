// Package logging builds the charmbracelet logger shared by the idioms
// commands. Flags and the IDIOMS_LOG_* environment both feed it; a flag
// wins over the environment.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Environment variables read when the matching Options field is empty.
const (
	EnvLevel  = "IDIOMS_LOG_LEVEL"
	EnvPrefix = "IDIOMS_LOG_PREFIX"
	EnvToFile = "IDIOMS_LOG_TO_FILE"
)

// LoggerCloser is a logger that owns its output file, if any.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the log file. Loggers writing to a terminal stream have
// nothing to close.
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Debugging reports whether debug records are emitted.
func (lc *LoggerCloser) Debugging() bool {
	return lc.GetLevel() <= log.DebugLevel
}

// Options selects verbosity, prefix and destination.
type Options struct {
	// Debug forces the debug level, as the --debug flag does.
	Debug bool
	// Level is one of debug, info, warn or error.
	Level string
	// Prefix defaults to "idioms ".
	Prefix string
	// File, when set, receives the log instead of stderr.
	File string
}

// FromEnv fills the empty fields of o from the environment.
func (o Options) FromEnv() Options {
	if o.Level == "" {
		o.Level = os.Getenv(EnvLevel)
	}
	if o.Prefix == "" {
		o.Prefix = os.Getenv(EnvPrefix)
	}
	if o.File == "" && os.Getenv(EnvToFile) == "1" {
		o.File = fmt.Sprintf("idioms-%s-debug.log", time.Now().Format("20060102-150405"))
	}
	return o
}

func (o Options) level() log.Level {
	if o.Debug {
		return ParseLevel("debug")
	}
	return ParseLevel(o.Level)
}

// ParseLevel maps a level name onto a log level. Unknown names log at info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// New returns a logger writing to w. w is closed by Close unless it is
// stdout or stderr.
func New(w io.Writer, opts Options) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           opts.level(),
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "idioms "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}
	return &LoggerCloser{Logger: lg.WithPrefix(prefix), closer: closer}
}

// Open resolves opts against the environment and opens the destination.
// When the log file cannot be created the logger falls back to stderr and
// the error is returned alongside it.
func Open(opts Options) (*LoggerCloser, error) {
	opts = opts.FromEnv()
	if opts.File == "" {
		return New(os.Stderr, opts), nil
	}
	f, err := os.OpenFile(opts.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return New(os.Stderr, opts), fmt.Errorf("open log file: %w", err)
	}
	return New(f, opts), nil
}
