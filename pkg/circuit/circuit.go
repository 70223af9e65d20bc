package circuit

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/edp1096/toy-pv/pkg/device"
	"github.com/edp1096/toy-pv/pkg/netlist"
)

var (
	ErrInvalidSolver   = errors.New("circuit: invalid solver settings")
	ErrConditionCount  = errors.New("circuit: conditions do not match elements")
	ErrUnknownElement  = errors.New("circuit: unknown element")
	ErrDuplicateName   = errors.New("circuit: duplicate element name")
	ErrNoTopology      = errors.New("circuit: no series or parallel element defined")
	ErrEmptyArray      = errors.New("circuit: array has no cells")
	ErrUnknownModel    = errors.New("circuit: unknown model")
	ErrUnsupportedType = errors.New("circuit: unsupported element type")
)

func observe(ob device.Observer) device.Observer {
	if ob == nil {
		return device.Nop
	}
	return ob
}

// Array is a solvable topology: a Series or a Parallel.
type Array interface {
	Name() string
	Len() int
	Describe() string
	// Bind computes the states for uniform conditions.
	Bind(irradiance, cellTemp float64) Operator
	ReduceArray() (Array, []int, [][]int)
}

// Operator solves operating points on a topology bound to one set of states.
type Operator interface {
	IFromV(ob device.Observer, v float64) (float64, *device.NonConvergence)
	VFromI(ob device.Observer, i float64) (float64, *device.NonConvergence)
}

type seriesOperator struct {
	s      *Series
	states []device.CellState
}

func (o seriesOperator) IFromV(ob device.Observer, v float64) (float64, *device.NonConvergence) {
	return o.s.IFromV(ob, o.states, v)
}

func (o seriesOperator) VFromI(ob device.Observer, i float64) (float64, *device.NonConvergence) {
	return o.s.VFromI(ob, o.states, i)
}

func (s *Series) Bind(irradiance, cellTemp float64) Operator {
	return seriesOperator{s: s, states: s.UniformStates(irradiance, cellTemp)}
}

func (s *Series) ReduceArray() (Array, []int, [][]int) {
	r := s.Reduce()
	return r.Reduced, r.OriginToReduced, r.ReducedToOrigin
}

type parallelOperator struct {
	p      *Parallel
	states [][]device.CellState
}

func (o parallelOperator) IFromV(ob device.Observer, v float64) (float64, *device.NonConvergence) {
	return o.p.IFromV(ob, o.states, v)
}

func (o parallelOperator) VFromI(ob device.Observer, i float64) (float64, *device.NonConvergence) {
	return o.p.VFromI(ob, o.states, i)
}

func (p *Parallel) Bind(irradiance, cellTemp float64) Operator {
	return parallelOperator{p: p, states: p.UniformStates(irradiance, cellTemp)}
}

func (p *Parallel) ReduceArray() (Array, []int, [][]int) {
	r := p.Reduce()
	return r.Reduced, r.OriginToReduced, r.ReducedToOrigin
}

// Solvers holds the solver settings applied to every element of a circuit.
type Solvers struct {
	Cell     device.CellSolver
	Series   SeriesSolver
	Parallel ParallelSolver
}

func DefaultSolvers() Solvers {
	return Solvers{
		Cell:     device.DefaultCellSolver(),
		Series:   DefaultSeriesSolver(),
		Parallel: DefaultParallelSolver(),
	}
}

// Circuit owns the named elements declared by a netlist.
type Circuit struct {
	name      string
	Models    map[string]device.ModelParam
	Solvers   Solvers
	cells     map[string]device.Cell
	series    map[string]*Series
	parallels map[string]*Parallel
	arrays    []string // Series and parallel names in declaration order
	top       string
}

func New(name string) *Circuit {
	return &Circuit{
		name:      name,
		Models:    make(map[string]device.ModelParam),
		Solvers:   DefaultSolvers(),
		cells:     make(map[string]device.Cell),
		series:    make(map[string]*Series),
		parallels: make(map[string]*Parallel),
	}
}

func (c *Circuit) Name() string { return c.name }

func (c *Circuit) SetModels(models map[string]device.ModelParam) {
	c.Models = models
}

// SetSolverParameters overrides solver settings of one level from
// netlist style keys (maxiter, itol, vtol, ming).
func (c *Circuit) SetSolverParameters(level string, params map[string]float64) error {
	maxIter := func(cur int) int {
		if v, ok := params["maxiter"]; ok {
			return int(v)
		}
		return cur
	}
	value := func(key string, cur float64) float64 {
		if v, ok := params[key]; ok {
			return v
		}
		return cur
	}

	switch strings.ToLower(level) {
	case "cell":
		s := &c.Solvers.Cell
		s.MaxIter = maxIter(s.MaxIter)
		s.ITol = value("itol", s.ITol)
		s.VTol = value("vtol", s.VTol)
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSolver, err)
		}
	case "series":
		s := &c.Solvers.Series
		s.MaxIter = maxIter(s.MaxIter)
		s.VTol = value("vtol", s.VTol)
		s.MinGain = value("ming", s.MinGain)
		return s.Validate()
	case "parallel":
		s := &c.Solvers.Parallel
		s.MaxIter = maxIter(s.MaxIter)
		s.ITol = value("itol", s.ITol)
		s.MinGain = value("ming", s.MinGain)
		return s.Validate()
	default:
		return fmt.Errorf("%w: solver level %s", ErrUnsupportedType, level)
	}
	return nil
}

// SetupDevices instantiates cells, strings and arrays in declaration order.
// Members must be declared before the element that uses them.
func (c *Circuit) SetupDevices(elements []netlist.Element) error {
	for _, elem := range elements {
		if c.exists(elem.Name) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, elem.Name)
		}

		switch elem.Type {
		case "X":
			cell, err := c.createCell(elem)
			if err != nil {
				return fmt.Errorf("creating cell %s: %w", elem.Name, err)
			}
			c.cells[elem.Name] = cell

		case "S":
			s := NewSeries(elem.Name)
			s.SetSolver(c.Solvers.Series)
			for _, m := range elem.Members {
				cell, ok := c.cells[m]
				if !ok {
					return fmt.Errorf("%w: series %s member %s", ErrUnknownElement, elem.Name, m)
				}
				s.Push(cell)
			}
			c.series[elem.Name] = s
			c.arrays = append(c.arrays, elem.Name)

		case "P":
			p := NewParallel(elem.Name)
			p.SetSolver(c.Solvers.Parallel)
			for _, m := range elem.Members {
				s, ok := c.series[m]
				if !ok {
					return fmt.Errorf("%w: parallel %s member %s", ErrUnknownElement, elem.Name, m)
				}
				p.Push(s)
			}
			c.parallels[elem.Name] = p
			c.arrays = append(c.arrays, elem.Name)

		default:
			return fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, elem.Type, elem.Name)
		}
	}
	return nil
}

func (c *Circuit) exists(name string) bool {
	_, isCell := c.cells[name]
	_, isSeries := c.series[name]
	_, isParallel := c.parallels[name]
	return isCell || isSeries || isParallel
}

func (c *Circuit) createCell(elem netlist.Element) (device.Cell, error) {
	model, ok := c.Models[elem.Model]
	if !ok {
		return device.Cell{}, fmt.Errorf("%w: %s", ErrUnknownModel, elem.Model)
	}

	opts := []device.Option{device.WithName(elem.Name), device.WithSolver(c.Solvers.Cell)}
	for key, raw := range elem.Params {
		val, err := netlist.ParseValue(raw)
		if err != nil {
			return device.Cell{}, fmt.Errorf("parameter %s: %w", key, err)
		}
		if (key == "ns" || key == "np") && val != math.Trunc(val) {
			return device.Cell{}, fmt.Errorf("%w: %s must be an integer, got %s", device.ErrInvalidParameter, key, raw)
		}
		switch key {
		case "ns":
			opts = append(opts, device.WithSeriesCount(int(val)))
		case "np":
			opts = append(opts, device.WithParallelCount(int(val)))
		case "shading":
			opts = append(opts, device.WithShading(val))
		default:
			return device.Cell{}, fmt.Errorf("%w: unknown instance parameter %s", device.ErrInvalidParameter, key)
		}
	}
	return device.NewCellFromModel(model, opts...)
}

// AddSeries registers a programmatically built string. The circuit keeps
// a copy.
func (c *Circuit) AddSeries(s *Series) error {
	if c.exists(s.Name()) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, s.Name())
	}
	if s.Len() == 0 {
		return fmt.Errorf("%w: series %s", ErrEmptyArray, s.Name())
	}
	c.series[s.Name()] = s.Clone()
	c.arrays = append(c.arrays, s.Name())
	return nil
}

// AddParallel registers a programmatically built array. The circuit keeps
// a copy.
func (c *Circuit) AddParallel(p *Parallel) error {
	if c.exists(p.Name()) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name())
	}
	if p.hasEmpty() {
		return fmt.Errorf("%w: parallel %s", ErrEmptyArray, p.Name())
	}
	c.parallels[p.Name()] = p.Clone()
	c.arrays = append(c.arrays, p.Name())
	return nil
}

func (c *Circuit) SetTop(name string) { c.top = name }

// Top returns the array named by SetTop, or the last declared one.
func (c *Circuit) Top() (Array, error) {
	name := c.top
	if name == "" {
		if len(c.arrays) == 0 {
			return nil, ErrNoTopology
		}
		name = c.arrays[len(c.arrays)-1]
	}
	if s, ok := c.series[name]; ok {
		return s, nil
	}
	if p, ok := c.parallels[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: top %s", ErrUnknownElement, name)
}

func (c *Circuit) GetCell(name string) (device.Cell, bool) {
	cell, ok := c.cells[name]
	return cell, ok
}

func (c *Circuit) GetSeries(name string) (*Series, bool) {
	s, ok := c.series[name]
	return s, ok
}

func (c *Circuit) GetParallel(name string) (*Parallel, bool) {
	p, ok := c.parallels[name]
	return p, ok
}
