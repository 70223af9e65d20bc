package device

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNonConvergence is matched by every *NonConvergence.
	ErrNonConvergence = errors.New("device: solver did not converge")

	// ErrInvalidParameter is wrapped by construction and validation failures.
	ErrInvalidParameter = errors.New("device: invalid parameter")
)

// Severity classifies the value returned by a solver that ran out of iterations.
type Severity int

const (
	// SeverityWarning means the best-effort value is a normal float.
	SeverityWarning Severity = iota
	// SeverityError means the value is NaN, infinite, zero or subnormal.
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// NonConvergence describes one solve that exhausted its iteration budget.
// The solve still returns its last iterate; this value only carries the
// diagnostic.
type NonConvergence struct {
	Level     Level
	Op        string  // Solver entry point, e.g. "SolveI"
	Element   string  // Name of the element that was solved
	Input     float64 // Requested voltage or current
	Tolerance float64
	MaxIter   int
	Result    float64
	Severity  Severity
}

func (e *NonConvergence) Error() string {
	return fmt.Sprintf("%s %s.%s(%e) did not converge (tol=%e, max_iter=%d) -> %g",
		e.Severity, e.Element, e.Op, e.Input, e.Tolerance, e.MaxIter, e.Result)
}

func (e *NonConvergence) Is(target error) bool {
	return target == ErrNonConvergence
}

// IsNormal reports whether x is finite, non-zero and not subnormal.
func IsNormal(x float64) bool {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return false
	}
	return math.Abs(x) >= 0x1p-1022
}

// Classify returns the severity of a best-effort result.
func Classify(x float64) Severity {
	if IsNormal(x) {
		return SeverityWarning
	}
	return SeverityError
}

// NewNonConvergence builds a classified event for a solve that returned result.
func NewNonConvergence(level Level, op, element string, input, tol float64, maxIter int, result float64) *NonConvergence {
	return &NonConvergence{
		Level:     level,
		Op:        op,
		Element:   element,
		Input:     input,
		Tolerance: tol,
		MaxIter:   maxIter,
		Result:    result,
		Severity:  Classify(result),
	}
}
