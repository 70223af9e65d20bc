package output

import (
	"io"

	"github.com/goccy/go-yaml"

	"github.com/edp1096/toy-pv/pkg/analysis"
)

// YAMLFormatter formats reports as YAML.
type YAMLFormatter struct {
	writer io.Writer
}

func NewYAMLFormatter(w io.Writer) *YAMLFormatter {
	return &YAMLFormatter{writer: w}
}

func (f *YAMLFormatter) FormatSweep(report analysis.Report) error {
	return f.write(report)
}

func (f *YAMLFormatter) FormatReduction(report *analysis.ReductionReport) error {
	return f.write(report)
}

func (f *YAMLFormatter) write(v any) error {
	enc := yaml.NewEncoder(f.writer, yaml.Indent(2))
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
