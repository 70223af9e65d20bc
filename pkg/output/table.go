package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/edp1096/toy-pv/pkg/analysis"
	"github.com/edp1096/toy-pv/pkg/util"
)

// TableFormatter formats reports as human-readable tables.
type TableFormatter struct {
	writer io.Writer
}

func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

func (f *TableFormatter) FormatSweep(report analysis.Report) error {
	fmt.Fprintf(f.writer, "Array: %s %s\n", report.Array, report.Structure)
	if report.Reduced {
		fmt.Fprintln(f.writer, "Reduced: yes")
	}
	fmt.Fprintln(f.writer)

	if len(report.Points) == 0 {
		fmt.Fprintln(f.writer, "No points solved.")
		return nil
	}

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "IRRAD\tTEMP\tV\tI\tV(I)\tP\t")
	for _, p := range report.Points {
		fmt.Fprintf(tw, "%s\t%.1f C\t%s\t%s\t%s\t%s\t\n",
			util.FormatValueFactor(p.Irradiance, "W/m2"),
			p.Temperature,
			util.FormatValueFactor(p.Voltage, "V"),
			util.FormatValueFactor(p.Current, "A"),
			util.FormatValueFactor(p.VoltageBack, "V"),
			util.FormatPower(p.Power))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(f.writer, strings.Repeat("-", 72))
	for _, mp := range report.MaxPower {
		fmt.Fprintf(f.writer, "MPP @ %s, %.1f C: V=%s I=%s P=%s\n",
			util.FormatValueFactor(mp.Irradiance, "W/m2"), mp.Temperature,
			util.FormatValueFactor(mp.Voltage, "V"),
			util.FormatValueFactor(mp.Current, "A"),
			util.FormatPower(mp.Power))
	}
	fmt.Fprintf(f.writer, "Total power: %.6f W\n", report.TotalPower)
	return nil
}

func (f *TableFormatter) FormatReduction(report *analysis.ReductionReport) error {
	fmt.Fprintf(f.writer, "Array:   %s (%d elements)\n", report.Array, report.Elements)
	fmt.Fprintf(f.writer, "Origin:  %s\n", report.Structure)
	fmt.Fprintf(f.writer, "Reduced: %s (%d elements)\n", report.Reduced, report.ReducedElements)
	fmt.Fprintln(f.writer)

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REDUCED\tORIGIN")
	for k, origins := range report.ReducedToOrigin {
		idx := make([]string, len(origins))
		for j, o := range origins {
			idx[j] = fmt.Sprint(o)
		}
		fmt.Fprintf(tw, "%d\t%s\n", k, strings.Join(idx, ", "))
	}
	return tw.Flush()
}
