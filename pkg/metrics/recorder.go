package metrics

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/edp1096/toy-pv/pkg/device"
)

const namespace = "pvsim"

// Recorder counts solver activity and logs non-convergence events. It is
// safe for concurrent use.
type Recorder struct {
	calls          *prometheus.CounterVec
	nonConvergence *prometheus.CounterVec
	log            logr.Logger
}

var _ device.Observer = (*Recorder)(nil)

// NewRecorder registers the solver counters on reg.
func NewRecorder(reg prometheus.Registerer, log logr.Logger) (*Recorder, error) {
	r := &Recorder{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_calls_total",
			Help:      "Number of solver invocations by topology level.",
		}, []string{"level"}),
		nonConvergence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_nonconvergence_total",
			Help:      "Number of solves that exhausted their iteration budget.",
		}, []string{"level", "severity"}),
		log: log,
	}

	for _, c := range []prometheus.Collector{r.calls, r.nonConvergence} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering solver metrics: %w", err)
		}
	}
	return r, nil
}

func (r *Recorder) SolverCall(level device.Level) {
	r.calls.WithLabelValues(level.String()).Inc()
}

func (r *Recorder) NonConvergence(ev *device.NonConvergence) {
	r.nonConvergence.WithLabelValues(ev.Level.String(), ev.Severity.String()).Inc()

	kv := []any{
		"severity", ev.Severity.String(),
		"level", ev.Level.String(),
		"op", ev.Op,
		"element", ev.Element,
		"input", ev.Input,
		"tol", ev.Tolerance,
		"maxIter", ev.MaxIter,
		"result", ev.Result,
	}
	if ev.Severity == device.SeverityError {
		r.log.Error(ev, "Solver returned a non-normal value", kv...)
		return
	}
	r.log.Info("Solver did not converge", kv...)
}

// Calls returns the number of solver calls recorded for level.
func (r *Recorder) Calls(level device.Level) float64 {
	return counterValue(r.calls.WithLabelValues(level.String()))
}

// NonConvergences returns the number of events recorded for level and severity.
func (r *Recorder) NonConvergences(level device.Level, severity device.Severity) float64 {
	return counterValue(r.nonConvergence.WithLabelValues(level.String(), severity.String()))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
