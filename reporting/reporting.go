// Package reporting enriches raw errors with actionable suggestions and
// renders them to a console logger or to timestamped report files.
package reporting

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/johanjanssens/taskcore/reporting/suggest"
)

// ErrReportWrite wraps a failure to persist a report file.
var ErrReportWrite = errors.New("reporting: failed to write report")

// ErrorContext carries the circumstances surrounding a reported error.
type ErrorContext struct {
	Timestamp   time.Time
	Operation   string
	Component   string
	UserAction  string
	Environment map[string]string
	Inputs      map[string]any
}

// ReportedError is the enriched view of a raw error.
type ReportedError struct {
	TypeName    string                         `json:"type"`
	Message     string                         `json:"message"`
	Stack       string                         `json:"stack,omitempty"`
	Context     ErrorContext                   `json:"context"`
	Suggestions []suggest.ActionableSuggestion `json:"suggestions,omitempty"`

	original error
}

// Unwrap exposes the original error for errors.Is/errors.As.
func (r ReportedError) Unwrap() error { return r.original }

func (r ReportedError) Error() string { return r.Message }

// Reporter renders a raw error, with context, into a ReportedError.
type Reporter interface {
	Report(err error, ctx ErrorContext) (ReportedError, error)
}

func build(err error, ctx ErrorContext, registry *suggest.Registry, includeSuggestions, captureStack bool) ReportedError {
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = time.Now()
	}
	re := ReportedError{
		TypeName: fmt.Sprintf("%T", err),
		Message:  err.Error(),
		Context:  ctx,
		original: err,
	}
	if captureStack {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		re.Stack = string(buf[:n])
	}
	if includeSuggestions && registry != nil {
		re.Suggestions = registry.GetSuggestions(err)
	}
	return re
}
