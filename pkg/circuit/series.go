package circuit

import (
	"fmt"
	"math"
	"strings"

	"github.com/edp1096/toy-pv/pkg/device"
)

// SeriesSolver configures the current search of a string.
type SeriesSolver struct {
	MaxIter int
	VTol    float64 // Voltage tolerance (V)
	MinGain float64 // Gain floor of the damped search (A/V)
}

func DefaultSeriesSolver() SeriesSolver {
	return SeriesSolver{MaxIter: 1000, VTol: 0.1, MinGain: 0.00001}
}

func (s SeriesSolver) Validate() error {
	if s.MaxIter < 1 {
		return fmt.Errorf("%w: series maxiter must be at least 1, got %d", ErrInvalidSolver, s.MaxIter)
	}
	if !(s.VTol > 0) {
		return fmt.Errorf("%w: series vtol must be positive, got %g", ErrInvalidSolver, s.VTol)
	}
	if !(s.MinGain >= 0) {
		return fmt.Errorf("%w: series min gain must not be negative, got %g", ErrInvalidSolver, s.MinGain)
	}
	return nil
}

// Series is an ordered string of cells carrying one current.
type Series struct {
	name     string
	elements []device.Cell
	solver   SeriesSolver
}

func NewSeries(name string, cells ...device.Cell) *Series {
	elements := make([]device.Cell, len(cells))
	copy(elements, cells)
	return &Series{
		name:     name,
		elements: elements,
		solver:   DefaultSeriesSolver(),
	}
}

func (s *Series) Name() string { return s.name }

func (s *Series) Len() int { return len(s.elements) }

func (s *Series) Solver() SeriesSolver { return s.solver }

func (s *Series) SetSolver(solver SeriesSolver) { s.solver = solver }

// Cell returns a copy of the k-th cell.
func (s *Series) Cell(k int) device.Cell { return s.elements[k] }

// Cells returns a copy of the cells.
func (s *Series) Cells() []device.Cell {
	cells := make([]device.Cell, len(s.elements))
	copy(cells, s.elements)
	return cells
}

func (s *Series) Push(cell device.Cell) {
	s.elements = append(s.elements, cell)
}

func (s *Series) Clone() *Series {
	return &Series{
		name:     s.name,
		elements: s.Cells(),
		solver:   s.solver,
	}
}

// UniformStates computes one state per cell for shared conditions.
func (s *Series) UniformStates(irradiance, cellTemp float64) []device.CellState {
	states := make([]device.CellState, len(s.elements))
	for k := range s.elements {
		states[k] = s.elements[k].ComputeState(irradiance, cellTemp)
	}
	return states
}

// States computes the states for per-cell conditions.
func (s *Series) States(conds []device.Conditions) ([]device.CellState, error) {
	if len(conds) != len(s.elements) {
		return nil, fmt.Errorf("%w: series %s has %d cells, got %d conditions",
			ErrConditionCount, s.name, len(s.elements), len(conds))
	}
	states := make([]device.CellState, len(s.elements))
	for k := range s.elements {
		states[k] = s.elements[k].ComputeState(conds[k].Irradiance, conds[k].Temperature)
	}
	return states, nil
}

// VsFromI returns the voltage of every cell at string current i. The first
// non-convergence among the cells is returned.
func (s *Series) VsFromI(ob device.Observer, states []device.CellState, i float64) ([]float64, *device.NonConvergence) {
	var first *device.NonConvergence
	voltages := make([]float64, len(s.elements))
	for k := range s.elements {
		v, ev := s.elements[k].VFromI(ob, states[k], i)
		if ev != nil && first == nil {
			first = ev
		}
		voltages[k] = v
	}
	return voltages, first
}

// VFromI returns the string voltage at current i.
func (s *Series) VFromI(ob device.Observer, states []device.CellState, i float64) (float64, *device.NonConvergence) {
	var first *device.NonConvergence
	sum := 0.0
	for k := range s.elements {
		v, ev := s.elements[k].VFromI(ob, states[k], i)
		if ev != nil && first == nil {
			first = ev
		}
		sum += v
	}
	return sum, first
}

// searchResult is the outcome of the damped current search.
type searchResult struct {
	current    float64
	iterations int
	minGain    float64 // Smallest gain applied to a correction step
	converged  bool
}

// IFromV returns the string current at voltage vStr.
func (s *Series) IFromV(ob device.Observer, states []device.CellState, vStr float64) (float64, *device.NonConvergence) {
	ob = observe(ob)
	ob.SolverCall(device.LevelSeries)
	if len(s.elements) == 0 {
		return 0, nil
	}

	res := s.search(ob, states, vStr)
	if res.converged {
		return res.current, nil
	}
	ev := device.NewNonConvergence(device.LevelSeries, "IFromV", s.name, vStr, s.solver.VTol, s.solver.MaxIter, res.current)
	ob.NonConvergence(ev)
	return res.current, ev
}

// search runs a damped iteration on the string current. The gain is a
// linearized conductance halved whenever the voltage error changes sign.
func (s *Series) search(ob device.Observer, states []device.CellState, vStr float64) searchResult {
	sumVoc := 0.0
	il := math.Inf(1)
	i0 := math.Inf(1)
	for k := range s.elements {
		cell := &s.elements[k]
		sumVoc += cell.VocRef * float64(cell.Ns)
		il = math.Min(il, cell.IlRef*float64(cell.Np))
		isc, _ := cell.SolveI(ob, states[k], 0.0)
		i0 = math.Min(i0, isc)
	}
	g := il / sumVoc

	res := searchResult{minGain: math.Inf(1)}
	dv1 := 0.0
	for iter := range s.solver.MaxIter {
		res.iterations = iter + 1
		v0, _ := s.VFromI(ob, states, i0)
		dv := v0 - vStr
		if math.Abs(dv) < s.solver.VTol {
			res.current = i0
			res.converged = true
			return res
		}
		// Sign change means the last step overshot
		if dv*dv1 < 0.0 {
			g /= 2.0
		}
		g = math.Max(g, s.solver.MinGain)
		res.minGain = math.Min(res.minGain, g)
		i0 += dv * g
		dv1 = dv
	}

	res.current = i0
	return res
}

// IsParallelEquivalent reports whether other carries a current proportional
// to s at every voltage: same length, cells pairwise parallel equivalent and
// parallel counts in the same ratio at every position.
func (s *Series) IsParallelEquivalent(other *Series) bool {
	if len(s.elements) != len(other.elements) {
		return false
	}
	if len(s.elements) == 0 {
		return true
	}
	a0, b0 := s.elements[0].Np, other.elements[0].Np
	for k := range s.elements {
		a, b := &s.elements[k], &other.elements[k]
		if !a.IsParallelEquivalent(b) {
			return false
		}
		if a.Np*b0 != b.Np*a0 {
			return false
		}
	}
	return true
}

// Find returns the position of the first cell other can be folded into.
func (s *Series) Find(other *device.Cell) (int, bool) {
	for k := range s.elements {
		if s.elements[k].IsSeriesEquivalent(other) {
			return k, true
		}
	}
	return -1, false
}

// Reduce folds series equivalent cells into one cell with the summed Ns.
// The receiver is left untouched.
func (s *Series) Reduce() Reduction[*Series] {
	cells, o2r, r2o := reduce(s.elements,
		func(c device.Cell) device.Cell { return c },
		func(rep, c device.Cell) bool { return rep.IsSeriesEquivalent(&c) },
		func(rep *device.Cell, c device.Cell) { rep.Ns += c.Ns },
	)
	return Reduction[*Series]{
		Reduced:         &Series{name: s.name, elements: cells, solver: s.solver},
		OriginToReduced: o2r,
		ReducedToOrigin: r2o,
	}
}

// Describe renders the {ns,np} structure of the string.
func (s *Series) Describe() string {
	parts := make([]string, len(s.elements))
	for k, c := range s.elements {
		parts[k] = c.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (s *Series) String() string {
	return fmt.Sprintf("Series %s %s", s.name, s.Describe())
}
