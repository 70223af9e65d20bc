package output

import (
	"fmt"
	"io"

	"github.com/edp1096/toy-pv/pkg/analysis"
)

// Formatter renders analysis reports.
type Formatter interface {
	FormatSweep(report analysis.Report) error
	FormatReduction(report *analysis.ReductionReport) error
}

// NewFormatter returns a formatter for the given format name.
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "table":
		return NewTableFormatter(w), nil
	case "json":
		return NewJSONFormatter(w, true), nil
	case "yaml":
		return NewYAMLFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: %v)", format, SupportedFormats())
	}
}

// SupportedFormats returns list of available format names.
func SupportedFormats() []string {
	return []string{"table", "json", "yaml"}
}
