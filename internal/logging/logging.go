// Package logging builds the process logger on rs/zerolog and bridges it to
// the func(level, msg string) callbacks the worker components accept.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error (default info)
	Level string

	// Format is json, console or auto (console when Out is a terminal)
	Format string

	// Component is added to every entry
	Component string

	// Out defaults to os.Stderr
	Out io.Writer
}

// New creates a logger.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	if useConsole(opts.Format, out) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}
	return ctx.Logger()
}

func useConsole(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "console":
		return true
	case "json":
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// LogFn adapts logger to the level/message callback used by the runner,
// sources and handlers. "success" is logged at info level with
// outcome=success; unknown levels log at info.
func LogFn(logger zerolog.Logger) func(level, msg string) {
	return func(level, msg string) {
		msg = strings.TrimSpace(strings.TrimLeft(msg, " -"))
		switch level {
		case "debug":
			logger.Debug().Msg(msg)
		case "warning", "warn":
			logger.Warn().Msg(msg)
		case "error":
			logger.Error().Msg(msg)
		case "success":
			logger.Info().Str("outcome", "success").Msg(msg)
		default:
			logger.Info().Msg(msg)
		}
	}
}
