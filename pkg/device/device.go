package device

// Level identifies which layer of the topology issued a solve.
type Level int

const (
	LevelCell Level = iota
	LevelSeries
	LevelParallel
)

func (l Level) String() string {
	switch l {
	case LevelCell:
		return "cell"
	case LevelSeries:
		return "series"
	case LevelParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Observer receives solver activity. Implementations shared between
// goroutines must be safe for concurrent use.
type Observer interface {
	SolverCall(level Level)
	NonConvergence(ev *NonConvergence)
}

type nopObserver struct{}

func (nopObserver) SolverCall(Level)               {}
func (nopObserver) NonConvergence(*NonConvergence) {}

// Nop discards all solver activity.
var Nop Observer = nopObserver{}

func observer(ob Observer) Observer {
	if ob == nil {
		return Nop
	}
	return ob
}

// Conditions are the ambient conditions seen by one element.
type Conditions struct {
	Irradiance  float64 // Effective irradiance (W/m^2)
	Temperature float64 // Cell temperature (degC)
}

type ModelParam struct {
	Type   string
	Name   string
	Params map[string]float64
}
