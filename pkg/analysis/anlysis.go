package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-logr/logr"

	"github.com/edp1096/toy-pv/pkg/circuit"
	"github.com/edp1096/toy-pv/pkg/device"
)

var (
	ErrNotSetup     = errors.New("analysis: circuit not set")
	ErrNoConditions = errors.New("analysis: no conditions")
	ErrNoVoltages   = errors.New("analysis: no voltages")
)

type Analysis interface {
	Setup(ckt *circuit.Circuit) error
	Execute(ctx context.Context) error
	GetResults() map[string][]float64
}

type Option func(*BaseAnalysis)

// WithObserver routes solver calls and non-convergence events to ob.
func WithObserver(ob device.Observer) Option {
	return func(a *BaseAnalysis) { a.observer = ob }
}

func WithLogger(log logr.Logger) Option {
	return func(a *BaseAnalysis) { a.log = log }
}

// WithReduction solves the reduced topology instead of the declared one.
func WithReduction(reduce bool) Option {
	return func(a *BaseAnalysis) { a.reduce = reduce }
}

// WithWorkers bounds the number of conditions solved at once. Zero or less
// uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(a *BaseAnalysis) { a.workers = n }
}

type BaseAnalysis struct {
	Circuit  *circuit.Circuit
	array    circuit.Array
	observer device.Observer
	log      logr.Logger
	reduce   bool
	workers  int
	events   []*device.NonConvergence
	results  map[string][]float64 // key: variable name, value: result by point
}

func NewBaseAnalysis(opts ...Option) *BaseAnalysis {
	ba := &BaseAnalysis{
		observer: device.Nop,
		log:      logr.Discard(),
		results:  make(map[string][]float64),
	}
	for _, opt := range opts {
		opt(ba)
	}
	if ba.observer == nil {
		ba.observer = device.Nop
	}
	if ba.workers <= 0 {
		ba.workers = runtime.GOMAXPROCS(0)
	}
	return ba
}

// setup resolves the top array of ckt, reduced when requested.
func (a *BaseAnalysis) setup(ckt *circuit.Circuit) error {
	top, err := ckt.Top()
	if err != nil {
		return fmt.Errorf("resolving top array: %w", err)
	}
	a.Circuit = ckt

	if a.reduce {
		reduced, _, _ := top.ReduceArray()
		a.log.V(1).Info("Reduced topology", "array", top.Name(),
			"elements", top.Len(), "reduced", reduced.Len(), "structure", reduced.Describe())
		top = reduced
	}
	a.array = top
	return nil
}

func (a *BaseAnalysis) Array() circuit.Array { return a.array }

// Events returns the non-convergence events surfaced by the top array.
func (a *BaseAnalysis) Events() []*device.NonConvergence { return a.events }

func (a *BaseAnalysis) StoreResult(name string, values ...float64) {
	if _, exists := a.results[name]; !exists {
		a.results[name] = make([]float64, 0, len(values))
	}
	a.results[name] = append(a.results[name], values...)
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}

// solvePoint solves the top array at v and reads the voltage back from the
// resulting current.
func solvePoint(ob device.Observer, op circuit.Operator, v float64) (Point, []*device.NonConvergence) {
	var events []*device.NonConvergence

	i, ev := op.IFromV(ob, v)
	if ev != nil {
		events = append(events, ev)
	}
	v2, ev := op.VFromI(ob, i)
	if ev != nil {
		events = append(events, ev)
	}

	return Point{Voltage: v, Current: i, VoltageBack: v2, Power: v2 * i}, events
}
