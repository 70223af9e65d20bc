package circuit

import (
	"fmt"
	"math"
	"strings"

	"github.com/edp1096/toy-pv/pkg/device"
)

// ParallelSolver configures the voltage search of an array.
type ParallelSolver struct {
	MaxIter int
	ITol    float64 // Current tolerance (A)
	MinGain float64 // Gain floor of the damped search (ohm)
}

func DefaultParallelSolver() ParallelSolver {
	return ParallelSolver{MaxIter: 1000, ITol: 0.1, MinGain: 0.00001}
}

func (p ParallelSolver) Validate() error {
	if p.MaxIter < 1 {
		return fmt.Errorf("%w: parallel maxiter must be at least 1, got %d", ErrInvalidSolver, p.MaxIter)
	}
	if !(p.ITol > 0) {
		return fmt.Errorf("%w: parallel itol must be positive, got %g", ErrInvalidSolver, p.ITol)
	}
	if !(p.MinGain >= 0) {
		return fmt.Errorf("%w: parallel min gain must not be negative, got %g", ErrInvalidSolver, p.MinGain)
	}
	return nil
}

// Parallel is an ordered set of strings sharing one voltage.
type Parallel struct {
	name     string
	elements []*Series
	solver   ParallelSolver
}

// NewParallel clones the given strings; later changes to them do not affect the array.
func NewParallel(name string, branches ...*Series) *Parallel {
	elements := make([]*Series, len(branches))
	for k, s := range branches {
		elements[k] = s.Clone()
	}
	return &Parallel{
		name:     name,
		elements: elements,
		solver:   DefaultParallelSolver(),
	}
}

func (p *Parallel) Name() string { return p.name }

func (p *Parallel) Len() int { return len(p.elements) }

func (p *Parallel) Solver() ParallelSolver { return p.solver }

func (p *Parallel) SetSolver(solver ParallelSolver) { p.solver = solver }

// Series returns a copy of the k-th string.
func (p *Parallel) Series(k int) *Series { return p.elements[k].Clone() }

func (p *Parallel) Push(s *Series) {
	p.elements = append(p.elements, s.Clone())
}

func (p *Parallel) Clone() *Parallel {
	elements := make([]*Series, len(p.elements))
	for k, s := range p.elements {
		elements[k] = s.Clone()
	}
	return &Parallel{name: p.name, elements: elements, solver: p.solver}
}

func (p *Parallel) UniformStates(irradiance, cellTemp float64) [][]device.CellState {
	states := make([][]device.CellState, len(p.elements))
	for k, s := range p.elements {
		states[k] = s.UniformStates(irradiance, cellTemp)
	}
	return states
}

// States computes the states for per-string, per-cell conditions.
func (p *Parallel) States(conds [][]device.Conditions) ([][]device.CellState, error) {
	if len(conds) != len(p.elements) {
		return nil, fmt.Errorf("%w: parallel %s has %d strings, got %d condition sets",
			ErrConditionCount, p.name, len(p.elements), len(conds))
	}
	states := make([][]device.CellState, len(p.elements))
	for k, s := range p.elements {
		st, err := s.States(conds[k])
		if err != nil {
			return nil, err
		}
		states[k] = st
	}
	return states, nil
}

// IsFromV returns the current of every string at voltage v.
func (p *Parallel) IsFromV(ob device.Observer, states [][]device.CellState, v float64) ([]float64, *device.NonConvergence) {
	var first *device.NonConvergence
	currents := make([]float64, len(p.elements))
	for k, s := range p.elements {
		i, ev := s.IFromV(ob, states[k], v)
		if ev != nil && first == nil {
			first = ev
		}
		currents[k] = i
	}
	return currents, first
}

// IFromV returns the array current at voltage v.
func (p *Parallel) IFromV(ob device.Observer, states [][]device.CellState, v float64) (float64, *device.NonConvergence) {
	ob = observe(ob)
	ob.SolverCall(device.LevelParallel)

	currents, ev := p.IsFromV(ob, states, v)
	sum := 0.0
	for _, i := range currents {
		sum += i
	}
	return sum, ev
}

// VFromI returns the array voltage at current i. It mirrors the string
// current search with the roles of voltage and current swapped.
func (p *Parallel) VFromI(ob device.Observer, states [][]device.CellState, i float64) (float64, *device.NonConvergence) {
	ob = observe(ob)
	ob.SolverCall(device.LevelParallel)
	if p.hasEmpty() {
		return 0, nil
	}

	vocMin := math.Inf(1)
	iscSum := 0.0
	for _, s := range p.elements {
		voc := 0.0
		il := math.Inf(1)
		for _, c := range s.elements {
			voc += c.VocRef * float64(c.Ns)
			il = math.Min(il, c.IlRef*float64(c.Np))
		}
		vocMin = math.Min(vocMin, voc)
		iscSum += il
	}
	r := vocMin / iscSum

	v0 := 0.0
	di1 := 0.0
	for range p.solver.MaxIter {
		i0, _ := p.IsFromV(ob, states, v0)
		di := -i
		for _, ik := range i0 {
			di += ik
		}
		if math.Abs(di) < p.solver.ITol {
			return v0, nil
		}
		if di*di1 < 0.0 {
			r /= 2.0
		}
		r = math.Max(r, p.solver.MinGain)
		v0 += di * r
		di1 = di
	}

	ev := device.NewNonConvergence(device.LevelParallel, "VFromI", p.name, i, p.solver.ITol, p.solver.MaxIter, v0)
	ob.NonConvergence(ev)
	return v0, ev
}

// hasEmpty reports whether the array or one of its strings has no cells.
func (p *Parallel) hasEmpty() bool {
	if len(p.elements) == 0 {
		return true
	}
	for _, s := range p.elements {
		if len(s.elements) == 0 {
			return true
		}
	}
	return false
}

// Reduce first reduces every string, then folds strings that carry
// proportional currents by adding their parallel counts position-wise.
// The receiver is left untouched.
func (p *Parallel) Reduce() Reduction[*Parallel] {
	branches, o2r, r2o := reduce(p.elements,
		func(s *Series) *Series { return s.Reduce().Reduced },
		func(rep, s *Series) bool { return rep.IsParallelEquivalent(s) },
		func(rep **Series, s *Series) {
			for k := range (*rep).elements {
				(*rep).elements[k].Np += s.elements[k].Np
			}
		},
	)
	return Reduction[*Parallel]{
		Reduced:         &Parallel{name: p.name, elements: branches, solver: p.solver},
		OriginToReduced: o2r,
		ReducedToOrigin: r2o,
	}
}

func (p *Parallel) Describe() string {
	parts := make([]string, len(p.elements))
	for k, s := range p.elements {
		parts[k] = s.Describe()
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

func (p *Parallel) String() string {
	return fmt.Sprintf("Parallel %s %s", p.name, p.Describe())
}
