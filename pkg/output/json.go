package output

import (
	"encoding/json"
	"io"

	"github.com/edp1096/toy-pv/pkg/analysis"
)

// JSONFormatter formats reports as JSON.
type JSONFormatter struct {
	writer io.Writer
	indent bool
}

// NewJSONFormatter creates a new JSON formatter.
// If indent is true, the output will be pretty-printed with indentation.
func NewJSONFormatter(w io.Writer, indent bool) *JSONFormatter {
	return &JSONFormatter{writer: w, indent: indent}
}

func (f *JSONFormatter) FormatSweep(report analysis.Report) error {
	return f.write(report)
}

func (f *JSONFormatter) FormatReduction(report *analysis.ReductionReport) error {
	return f.write(report)
}

func (f *JSONFormatter) write(v any) error {
	enc := json.NewEncoder(f.writer)
	if f.indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
