package analysis

import (
	"fmt"

	"github.com/edp1096/toy-pv/pkg/circuit"
)

// ReductionReport describes the reduced form of the top array.
type ReductionReport struct {
	Array           string  `json:"array" yaml:"array"`
	Structure       string  `json:"structure" yaml:"structure"`
	Reduced         string  `json:"reduced" yaml:"reduced"`
	Elements        int     `json:"elements" yaml:"elements"`
	ReducedElements int     `json:"reduced_elements" yaml:"reduced_elements"`
	OriginToReduced []int   `json:"origin_to_reduced" yaml:"origin_to_reduced"`
	ReducedToOrigin [][]int `json:"reduced_to_origin" yaml:"reduced_to_origin"`
}

func Reduce(ckt *circuit.Circuit) (*ReductionReport, error) {
	top, err := ckt.Top()
	if err != nil {
		return nil, fmt.Errorf("resolving top array: %w", err)
	}

	reduced, o2r, r2o := top.ReduceArray()
	return &ReductionReport{
		Array:           top.Name(),
		Structure:       top.Describe(),
		Reduced:         reduced.Describe(),
		Elements:        top.Len(),
		ReducedElements: reduced.Len(),
		OriginToReduced: o2r,
		ReducedToOrigin: r2o,
	}, nil
}
