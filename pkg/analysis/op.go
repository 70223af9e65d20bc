package analysis

import (
	"context"

	"github.com/edp1096/toy-pv/pkg/circuit"
)

// OperatingPoint solves the top array at one voltage under uniform conditions.
type OperatingPoint struct {
	*BaseAnalysis
	irradiance  float64
	temperature float64
	voltage     float64
	point       Point
}

func NewOP(irradiance, temperature, voltage float64, opts ...Option) *OperatingPoint {
	return &OperatingPoint{
		BaseAnalysis: NewBaseAnalysis(opts...),
		irradiance:   irradiance,
		temperature:  temperature,
		voltage:      voltage,
	}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	return op.setup(ckt)
}

func (op *OperatingPoint) Execute(ctx context.Context) error {
	if op.array == nil {
		return ErrNotSetup
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bound := op.array.Bind(op.irradiance, op.temperature)
	point, events := solvePoint(op.observer, bound, op.voltage)
	point.Irradiance = op.irradiance
	point.Temperature = op.temperature
	op.point = point
	op.events = append(op.events, events...)

	op.StoreResult("V", point.Voltage)
	op.StoreResult("I", point.Current)
	op.StoreResult("V(I)", point.VoltageBack)
	op.StoreResult("P", point.Power)

	op.log.V(1).Info("Operating point solved", "array", op.array.Name(),
		"voltage", point.Voltage, "current", point.Current, "power", point.Power)
	return nil
}

func (op *OperatingPoint) Point() Point { return op.point }
