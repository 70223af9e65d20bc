package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/edp1096/toy-pv/internal/config"
	"github.com/edp1096/toy-pv/pkg/analysis"
)

// reduceCmd represents the reduce command
var reduceCmd = &cobra.Command{
	Use:   "reduce <netlist>",
	Short: "Print the reduced topology of a netlist",
	Long: `Fold equivalent cells of every string and proportional strings of every
array, then print the reduced structure and the index maps between original
and reduced positions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reduceNetlist(cfg, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(reduceCmd)
}

func reduceNetlist(cfg *config.Config, path string, w io.Writer) error {
	ckt, _, err := loadCircuit(cfg, path)
	if err != nil {
		return err
	}

	report, err := analysis.Reduce(ckt)
	if err != nil {
		return err
	}
	logger.V(1).Info("Reduced topology", "array", report.Array,
		"elements", report.Elements, "reduced", report.ReducedElements)

	formatter, err := newFormatter(cfg, w)
	if err != nil {
		return err
	}
	return formatter.FormatReduction(report)
}
