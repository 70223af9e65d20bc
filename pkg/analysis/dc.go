package analysis

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-pv/pkg/circuit"
	"github.com/edp1096/toy-pv/pkg/device"
	"github.com/edp1096/toy-pv/pkg/netlist"
)

// Point is one solved voltage of a sweep.
type Point struct {
	Irradiance  float64 `json:"irradiance" yaml:"irradiance"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Voltage     float64 `json:"voltage" yaml:"voltage"`
	Current     float64 `json:"current" yaml:"current"`
	VoltageBack float64 `json:"voltage_back" yaml:"voltage_back"` // VFromI(IFromV(Voltage))
	Power       float64 `json:"power" yaml:"power"`               // VoltageBack * Current
}

// MaxPowerPoint is the best swept point of one condition.
type MaxPowerPoint struct {
	Irradiance  float64 `json:"irradiance" yaml:"irradiance"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Voltage     float64 `json:"voltage" yaml:"voltage"`
	Current     float64 `json:"current" yaml:"current"`
	Power       float64 `json:"power" yaml:"power"`
}

type Report struct {
	Array      string          `json:"array" yaml:"array"`
	Structure  string          `json:"structure" yaml:"structure"`
	Reduced    bool            `json:"reduced" yaml:"reduced"`
	Points     []Point         `json:"points" yaml:"points"`
	MaxPower   []MaxPowerPoint `json:"max_power" yaml:"max_power"`
	TotalPower float64         `json:"total_power" yaml:"total_power"`
}

// Sweep solves every voltage under every condition. Conditions run
// concurrently; rows keep condition-major order.
type Sweep struct {
	*BaseAnalysis
	conditions []device.Conditions
	voltages   []float64
	report     Report
}

func NewSweep(conditions []device.Conditions, voltages []float64, opts ...Option) *Sweep {
	return &Sweep{
		BaseAnalysis: NewBaseAnalysis(opts...),
		conditions:   append([]device.Conditions(nil), conditions...),
		voltages:     append([]float64(nil), voltages...),
	}
}

// NewDCSweep sweeps start..stop by increment, both ends included.
func NewDCSweep(conditions []device.Conditions, start, stop, increment float64, opts ...Option) *Sweep {
	return NewSweep(conditions, netlist.SweepVoltages(start, stop, increment), opts...)
}

func (dc *Sweep) Setup(ckt *circuit.Circuit) error {
	if len(dc.conditions) == 0 {
		return ErrNoConditions
	}
	if len(dc.voltages) == 0 {
		return ErrNoVoltages
	}
	return dc.setup(ckt)
}

type conditionResult struct {
	points []Point
	events []*device.NonConvergence
}

func (dc *Sweep) Execute(ctx context.Context) error {
	if dc.array == nil {
		return ErrNotSetup
	}

	rows := make([]conditionResult, len(dc.conditions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(dc.workers)
	for k, cond := range dc.conditions {
		g.Go(func() error {
			bound := dc.array.Bind(cond.Irradiance, cond.Temperature)
			res := conditionResult{points: make([]Point, 0, len(dc.voltages))}
			for _, v := range dc.voltages {
				if err := ctx.Err(); err != nil {
					return err
				}
				point, events := solvePoint(dc.observer, bound, v)
				point.Irradiance = cond.Irradiance
				point.Temperature = cond.Temperature
				res.points = append(res.points, point)
				res.events = append(res.events, events...)
			}
			rows[k] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sweeping %s: %w", dc.array.Name(), err)
	}

	dc.report = Report{
		Array:     dc.array.Name(),
		Structure: dc.array.Describe(),
		Reduced:   dc.reduce,
	}
	for _, row := range rows {
		dc.events = append(dc.events, row.events...)
		dc.storeCondition(row.points)
	}

	dc.log.Info("Sweep completed", "array", dc.report.Array, "conditions", len(dc.conditions),
		"points", len(dc.report.Points), "totalPower", dc.report.TotalPower, "nonConvergence", len(dc.events))
	return nil
}

func (dc *Sweep) storeCondition(points []Point) {
	powers := make([]float64, len(points))
	for k, p := range points {
		powers[k] = p.Power
		dc.report.TotalPower += p.Power

		dc.StoreResult("IRRAD", p.Irradiance)
		dc.StoreResult("TEMP", p.Temperature)
		dc.StoreResult("SWEEP1", p.Voltage)
		dc.StoreResult("I", p.Current)
		dc.StoreResult("V(I)", p.VoltageBack)
		dc.StoreResult("P", p.Power)
	}
	dc.report.Points = append(dc.report.Points, points...)

	if len(points) == 0 {
		return
	}
	best := points[floats.MaxIdx(powers)]
	dc.report.MaxPower = append(dc.report.MaxPower, MaxPowerPoint{
		Irradiance:  best.Irradiance,
		Temperature: best.Temperature,
		Voltage:     best.VoltageBack,
		Current:     best.Current,
		Power:       best.Power,
	})
}

func (dc *Sweep) Report() Report { return dc.report }

func (dc *Sweep) Voltages() []float64 { return append([]float64(nil), dc.voltages...) }
