package device

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/edp1096/toy-pv/internal/consts"
)

// CellSolver configures the Newton iterations of a single cell.
type CellSolver struct {
	MaxIter int     // Max number of iterations
	ITol    float64 // Current tolerance (A)
	VTol    float64 // Voltage tolerance (V)
}

func DefaultCellSolver() CellSolver {
	return CellSolver{MaxIter: 100, ITol: 0.001, VTol: 0.01}
}

func (s CellSolver) Validate() error {
	var err error
	if s.MaxIter < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: maxiter must be at least 1, got %d", ErrInvalidParameter, s.MaxIter))
	}
	if !(s.ITol > 0) || math.IsInf(s.ITol, 0) {
		err = multierr.Append(err, fmt.Errorf("%w: itol must be positive, got %g", ErrInvalidParameter, s.ITol))
	}
	if !(s.VTol > 0) || math.IsInf(s.VTol, 0) {
		err = multierr.Append(err, fmt.Errorf("%w: vtol must be positive, got %g", ErrInvalidParameter, s.VTol))
	}
	return err
}

// BasicParams are the single-diode coefficients at reference conditions.
type BasicParams struct {
	A       float64 // Modified ideality factor (V)
	IoRef   float64 // Diode saturation current (A)
	IlRef   float64 // Light current (A)
	Rs      float64 // Series resistance (ohm)
	RshRef  float64 // Shunt resistance (ohm)
	AlphaSc float64 // Short circuit current temperature coefficient (A/K)
	VocRef  float64 // Open circuit voltage (V)
}

// ExtendedParams adds the bypass diode and band gap description.
type ExtendedParams struct {
	BasicParams
	VBypass float64 // Bypass diode onset voltage (V)
	RBypass float64 // Bypass diode resistance (ohm)
	EgRef   float64 // Band gap energy (eV). Si: 1.121, CdTe: 1.475
	DEgDT   float64 // Band gap temperature coefficient (1/K). Si: -0.0002677, CdTe: -0.0003
}

// DefaultExtended completes basic parameters with a silicon module bypass setup.
func DefaultExtended(p BasicParams) ExtendedParams {
	return ExtendedParams{
		BasicParams: p,
		VBypass:     -0.65 * 3.0,
		RBypass:     0.1,
		EgRef:       1.121,
		DEgDT:       -0.0002677,
	}
}

// CellState holds the coefficients derived from one set of conditions.
type CellState struct {
	Gsh float64 // Shunt conductance (S)
	Ra  float64 // Thermal voltage reciprocal (1/V)
	Io  float64 // Saturation current (A)
	Il  float64 // Light current (A)
}

// Cell is a group of Ns x Np identical modules. Cell is a value type;
// copies share nothing.
type Cell struct {
	ExtendedParams
	Shading float64 // Occluded fraction of irradiance
	Ns      int     // Number of modules in series
	Np      int     // Number of modules in parallel
	Solver  CellSolver
	Name    string
}

// Option customizes a Cell at construction.
type Option func(*Cell)

func WithSeriesCount(ns int) Option { return func(c *Cell) { c.Ns = ns } }
func WithParallelCount(np int) Option { return func(c *Cell) { c.Np = np } }
func WithShading(shading float64) Option { return func(c *Cell) { c.Shading = shading } }
func WithSolver(solver CellSolver) Option { return func(c *Cell) { c.Solver = solver } }
func WithName(name string) Option { return func(c *Cell) { c.Name = name } }

// NewCell builds a cell from basic parameters with default bypass and band gap values.
func NewCell(p BasicParams, opts ...Option) (Cell, error) {
	return NewExtendedCell(DefaultExtended(p), opts...)
}

func NewExtendedCell(p ExtendedParams, opts ...Option) (Cell, error) {
	c := Cell{
		ExtendedParams: p,
		Ns:             1,
		Np:             1,
		Solver:         DefaultCellSolver(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Cell{}, err
	}
	return c, nil
}

// NewCellFromModel builds a cell from a PV model card. Physics values have no
// defaults: a card missing one of them fails validation.
func NewCellFromModel(model ModelParam, opts ...Option) (Cell, error) {
	c := Cell{Ns: 1, Np: 1, Solver: DefaultCellSolver()}
	c.setDefaultParameters()
	c.SetModelParameters(model.Params)
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Cell{}, fmt.Errorf("model %s: %w", model.Name, err)
	}
	return c, nil
}

func (c *Cell) GetType() string { return "X" }

func (c *Cell) setDefaultParameters() {
	nan := math.NaN()
	c.BasicParams = BasicParams{A: nan, IoRef: nan, IlRef: nan, Rs: nan, RshRef: nan, AlphaSc: nan, VocRef: nan}
	c.VBypass = -0.65 * 3.0 // Three bypassed substrings
	c.RBypass = 0.1
	c.EgRef = 1.121 // Silicon band gap
	c.DEgDT = -0.0002677
}

func (c *Cell) SetModelParameters(params map[string]float64) {
	if a, ok := params["a"]; ok {
		c.A = a
	}
	if io, ok := params["io"]; ok {
		c.IoRef = io
	}
	if il, ok := params["il"]; ok {
		c.IlRef = il
	}
	if rs, ok := params["rs"]; ok {
		c.Rs = rs
	}
	if rsh, ok := params["rsh"]; ok {
		c.RshRef = rsh
	}
	if alpha, ok := params["alpha"]; ok {
		c.AlphaSc = alpha
	}
	if voc, ok := params["voc"]; ok {
		c.VocRef = voc
	}
	if vbyp, ok := params["vbyp"]; ok {
		c.VBypass = vbyp
	}
	if rbyp, ok := params["rbyp"]; ok {
		c.RBypass = rbyp
	}
	if eg, ok := params["eg"]; ok {
		c.EgRef = eg
	}
	if degdt, ok := params["degdt"]; ok {
		c.DEgDT = degdt
	}
}

// Validate reports every parameter outside its physical range.
func (c *Cell) Validate() error {
	var err error
	positive := func(name string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			err = multierr.Append(err, fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidParameter, name, v))
		}
	}
	nonNegative := func(name string, v float64) {
		if !(v >= 0) || math.IsInf(v, 0) {
			err = multierr.Append(err, fmt.Errorf("%w: %s must not be negative, got %g", ErrInvalidParameter, name, v))
		}
	}
	finite := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			err = multierr.Append(err, fmt.Errorf("%w: %s must be finite, got %g", ErrInvalidParameter, name, v))
		}
	}

	positive("a", c.A)
	positive("io", c.IoRef)
	nonNegative("il", c.IlRef)
	nonNegative("rs", c.Rs)
	positive("rsh", c.RshRef)
	finite("alpha", c.AlphaSc)
	positive("voc", c.VocRef)
	finite("vbyp", c.VBypass)
	positive("rbyp", c.RBypass)
	finite("eg", c.EgRef)
	finite("degdt", c.DEgDT)
	if !(c.Shading >= 0 && c.Shading <= 1) {
		err = multierr.Append(err, fmt.Errorf("%w: shading must be within [0, 1], got %g", ErrInvalidParameter, c.Shading))
	}
	if c.Ns < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: ns must be at least 1, got %d", ErrInvalidParameter, c.Ns))
	}
	if c.Np < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: np must be at least 1, got %d", ErrInvalidParameter, c.Np))
	}
	return multierr.Append(err, c.Solver.Validate())
}

// ComputeState projects ambient conditions onto the diode coefficients.
func (c *Cell) ComputeState(irradiance, cellTemp float64) CellState {
	irrad := irradiance * (1.0 - c.Shading)
	tj := cellTemp + consts.KELVIN
	eg := c.EgRef * (1.0 + c.DEgDT*(tj-consts.TREF))

	return CellState{
		Gsh: irrad / (c.RshRef * consts.SREF),
		Ra:  consts.TREF / (c.A * tj),
		Io:  c.IoRef * math.Pow(tj/consts.TREF, 3) * math.Exp(consts.QK*(c.EgRef/consts.TREF-eg/tj)),
		Il:  (c.IlRef + c.AlphaSc*(tj-consts.TREF)) * irrad / consts.SREF,
	}
}

// residual is the KVL balance of one module carrying current i at voltage v.
func (c *Cell) residual(st CellState, v, i float64) (float64, float64) {
	vd := v + i*c.Rs
	e := math.Exp(vd * st.Ra)
	return st.Il - i - st.Io*(e-1.0) - vd*st.Gsh, e
}

// SolveI returns the terminal current at terminal voltage vPnl.
func (c *Cell) SolveI(ob Observer, st CellState, vPnl float64) (float64, *NonConvergence) {
	ob = observer(ob)
	ob.SolverCall(LevelCell)

	i := 0.0
	v := vPnl / float64(c.Ns)

	converged := false
	for range c.Solver.MaxIter {
		f, e := c.residual(st, v, i)
		den := -1.0 - st.Io*e*c.Rs*st.Ra - c.Rs*st.Gsh
		d := f / den
		i -= d
		if math.Abs(d) < c.Solver.ITol {
			converged = true
			break
		}
	}

	// Reverse bias through the bypass diode is linear
	if v < c.VBypass {
		i += (c.VBypass - v) / c.RBypass
	}
	i *= float64(c.Np)

	if converged {
		return i, nil
	}
	ev := NewNonConvergence(LevelCell, "SolveI", c.Name, vPnl, c.Solver.ITol, c.Solver.MaxIter, i)
	ob.NonConvergence(ev)
	return i, ev
}

// VFromI returns the terminal voltage at terminal current iPnl.
func (c *Cell) VFromI(ob Observer, st CellState, iPnl float64) (float64, *NonConvergence) {
	ob = observer(ob)
	ob.SolverCall(LevelCell)

	v := c.VocRef
	i := iPnl / float64(c.Np)

	converged := false
	for range c.Solver.MaxIter {
		f, e := c.residual(st, v, i)
		den := -st.Io*e*st.Ra - st.Gsh
		d := f / den
		v -= d
		if math.Abs(d) < c.Solver.VTol {
			converged = true
			break
		}
	}

	if v < c.VBypass {
		// Anchor the breakdown line where the forward solution enters bypass
		ir, _ := c.SolveI(ob, st, c.VBypass)
		ir /= float64(c.Np)
		v = c.VBypass - (i-ir)*c.RBypass
	}
	v *= float64(c.Ns)

	if converged {
		return v, nil
	}
	ev := NewNonConvergence(LevelCell, "VFromI", c.Name, iPnl, c.Solver.VTol, c.Solver.MaxIter, v)
	ob.NonConvergence(ev)
	return v, ev
}

func (c *Cell) paramsEqual(other *Cell) bool {
	return c.ExtendedParams == other.ExtendedParams && c.Shading == other.Shading
}

// IsSeriesEquivalent reports whether other can be folded into c by adding Ns.
func (c *Cell) IsSeriesEquivalent(other *Cell) bool {
	return c.paramsEqual(other) && c.Np == other.Np
}

// IsParallelEquivalent reports whether other can be folded into c by adding Np.
func (c *Cell) IsParallelEquivalent(other *Cell) bool {
	return c.paramsEqual(other) && c.Ns == other.Ns
}

func (c Cell) String() string {
	return fmt.Sprintf("{%d,%d}", c.Ns, c.Np)
}
