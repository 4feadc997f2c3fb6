package reporting

import (
	"io"
	"log/slog"

	"github.com/johanjanssens/taskcore/reporting/suggest"
)

// ConsoleReporter renders reported errors through a structured logger.
// Wiring a github.com/lmittmann/tint handler into that logger (as
// cmd/taskcoredemo does) is what produces a colorized terminal summary.
type ConsoleReporter struct {
	logger       *slog.Logger
	registry     *suggest.Registry
	includeStack bool
}

// ConsoleOption configures a ConsoleReporter.
type ConsoleOption func(*ConsoleReporter)

// WithConsoleLogger injects the logger used for output.
func WithConsoleLogger(l *slog.Logger) ConsoleOption {
	return func(c *ConsoleReporter) { c.logger = l }
}

// WithConsoleStack enables capturing and printing a stack trace.
func WithConsoleStack(include bool) ConsoleOption {
	return func(c *ConsoleReporter) { c.includeStack = include }
}

// NewConsoleReporter constructs a ConsoleReporter backed by registry for
// suggestion lookups.
func NewConsoleReporter(registry *suggest.Registry, opts ...ConsoleOption) *ConsoleReporter {
	c := &ConsoleReporter{registry: registry}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Report builds a ReportedError and prints a summary plus any matched
// suggestions, severity-ordered, through the injected logger.
func (c *ConsoleReporter) Report(err error, ctx ErrorContext) (ReportedError, error) {
	re := build(err, ctx, c.registry, true, c.includeStack)

	attrs := []any{
		"type", re.TypeName,
		"operation", re.Context.Operation,
		"component", re.Context.Component,
	}
	if re.Stack != "" {
		attrs = append(attrs, "stack", re.Stack)
	}
	c.logger.Error(re.Message, attrs...)

	for _, s := range re.Suggestions {
		c.logger.Warn(s.Message,
			"severity", s.Severity.String(),
			"category", string(s.Category),
			"steps", s.Steps,
		)
	}
	return re, nil
}
