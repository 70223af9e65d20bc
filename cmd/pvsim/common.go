package main

import (
	"fmt"
	"io"
	"os"

	"github.com/edp1096/toy-pv/internal/config"
	"github.com/edp1096/toy-pv/pkg/circuit"
	"github.com/edp1096/toy-pv/pkg/netlist"
	"github.com/edp1096/toy-pv/pkg/output"
)

// loadCircuit parses the netlist at path and builds its circuit. Solver
// settings come from the config, then from .solver lines of the netlist.
func loadCircuit(cfg *config.Config, path string) (*circuit.Circuit, *netlist.NetlistData, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading netlist: %w", err)
	}

	data, err := netlist.Parse(string(content))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing netlist: %w", err)
	}

	ckt := circuit.New(data.Title)
	ckt.Solvers = cfg.Solvers()
	ckt.SetModels(data.Models)
	for level, params := range data.Solvers {
		if err := ckt.SetSolverParameters(level, params); err != nil {
			return nil, nil, err
		}
	}
	if err := ckt.SetupDevices(data.Elements); err != nil {
		return nil, nil, fmt.Errorf("setting up devices: %w", err)
	}
	ckt.SetTop(data.Top)

	return ckt, data, nil
}

func newFormatter(cfg *config.Config, w io.Writer) (output.Formatter, error) {
	return output.NewFormatter(cfg.Output.Format, w)
}
