// Package logger builds the structured logger shared by deltasync components.
// Components receive a logrus.FieldLogger explicitly; there is no global logger.
// In verbose mode debug messages are emitted to help follow a pipeline run.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Options configures a logger.
type Options struct {
	// Verbose enables debug level output.
	Verbose bool

	// Format is "text" (default), "json", or "auto" for text on a
	// terminal and JSON otherwise.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a logger from options.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	format := strings.ToLower(opts.Format)
	if format == "auto" {
		format = "json"
		if isTerminal(out) {
			format = "text"
		}
	}

	switch format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.Verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Discard returns a logger that drops everything. Useful for tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Section logs a section header at debug level.
func Section(log logrus.FieldLogger, name string) {
	log.Debugf("=== %s ===", name)
}
