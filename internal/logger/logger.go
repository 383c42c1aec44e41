// Package logger builds the leveled logger shared by the CLI and its clients.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Option configures a logger created with New.
type Option func(*log.Options, *io.Writer)

// WithDebug lowers the level to debug.
func WithDebug(debug bool) Option {
	return func(o *log.Options, _ *io.Writer) {
		if debug {
			o.Level = log.DebugLevel
		} else {
			o.Level = log.InfoLevel
		}
	}
}

// WithWriter overrides the output writer. Defaults to os.Stderr so that log
// lines never mix with the generated letter on stdout.
func WithWriter(w io.Writer) Option {
	return func(_ *log.Options, dst *io.Writer) {
		*dst = w
	}
}

// WithTimestamp includes the time of each record.
func WithTimestamp(enabled bool) Option {
	return func(o *log.Options, _ *io.Writer) {
		o.ReportTimestamp = enabled
	}
}

func New(opts ...Option) *log.Logger {
	options := log.Options{
		Level:  log.InfoLevel,
		Prefix: "coverletter",
	}
	var w io.Writer = os.Stderr
	for _, opt := range opts {
		opt(&options, &w)
	}
	return log.NewWithOptions(w, options)
}

// Discard returns a logger that drops every record.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
