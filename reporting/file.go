package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/johanjanssens/taskcore/reporting/suggest"
)

// Format selects the file reporter's on-disk encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "txt"
)

// FileReporter writes reported errors to timestamped files in a
// configured output directory, following the layout
// <output_dir>/error_<ErrorType>_<YYYYMMDD_HHMMSS>.<json|txt>.
type FileReporter struct {
	dir          string
	format       Format
	registry     *suggest.Registry
	includeStack bool
	index        *BoltIndex
}

// FileOption configures a FileReporter.
type FileOption func(*FileReporter)

// WithFileStack enables capturing a stack trace in written reports.
func WithFileStack(include bool) FileOption {
	return func(f *FileReporter) { f.includeStack = include }
}

// WithBoltIndex attaches an optional side-index recording which files
// were written for each error type, for fast lookup without scanning
// the output directory.
func WithBoltIndex(idx *BoltIndex) FileOption {
	return func(f *FileReporter) { f.index = idx }
}

// NewFileReporter creates dir if necessary and returns a FileReporter
// that writes reports there in the given format.
func NewFileReporter(dir string, format Format, registry *suggest.Registry, opts ...FileOption) (*FileReporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportWrite, err)
	}
	f := &FileReporter{dir: dir, format: format, registry: registry}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Report builds a ReportedError and writes it to a new file named per
// the mandated layout.
func (f *FileReporter) Report(err error, ctx ErrorContext) (ReportedError, error) {
	re := build(err, ctx, f.registry, true, f.includeStack)

	path, werr := f.write(re)
	if werr != nil {
		return re, werr
	}
	if f.index != nil {
		_ = f.index.Record(re.TypeName, path)
	}
	return re, nil
}

func (f *FileReporter) write(re ReportedError) (string, error) {
	name := fmt.Sprintf("error_%s_%s.%s", sanitizeTypeName(re.TypeName), time.Now().Format("20060102_150405"), f.format)
	path := filepath.Join(f.dir, name)

	var data []byte
	var err error
	switch f.format {
	case FormatJSON:
		data, err = json.MarshalIndent(re, "", "  ")
	default:
		data = []byte(renderText(re))
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportWrite, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportWrite, err)
	}
	return path, nil
}

// sanitizeTypeName replaces every non-alphanumeric rune with "_", per
// the mandated file-error-report layout.
func sanitizeTypeName(typeName string) string {
	var b strings.Builder
	for _, r := range typeName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func renderText(re ReportedError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error Type: %s\n", re.TypeName)
	fmt.Fprintf(&b, "Message: %s\n", re.Message)
	fmt.Fprintf(&b, "Timestamp: %s\n", re.Context.Timestamp.Format(time.RFC3339))
	if re.Context.Operation != "" {
		fmt.Fprintf(&b, "Operation: %s\n", re.Context.Operation)
	}
	if re.Context.Component != "" {
		fmt.Fprintf(&b, "Component: %s\n", re.Context.Component)
	}
	if re.Context.UserAction != "" {
		fmt.Fprintf(&b, "User Action: %s\n", re.Context.UserAction)
	}
	if re.Stack != "" {
		fmt.Fprintf(&b, "\nStack:\n%s\n", re.Stack)
	}
	if len(re.Suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for i, s := range re.Suggestions {
			fmt.Fprintf(&b, "  %d. [%s/%s] %s\n", i+1, s.Severity.String(), s.Category, s.Message)
			for _, step := range s.Steps {
				fmt.Fprintf(&b, "     - %s\n", step)
			}
		}
	}
	return b.String()
}
