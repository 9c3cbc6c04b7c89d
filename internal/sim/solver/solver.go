// Package solver defines the boundary to the numeric economic model and ships
// a deterministic reference model.
package solver

import (
	"errors"
	"fmt"
	"maps"
	"sort"
)

// ErrNoConvergence marks a solve that hit its iteration limit or produced
// non-finite values. It is terminal for the timeline that hit it.
var ErrNoConvergence = errors.New("solver did not converge")

type NonConvergenceError struct {
	Year       int
	Iterations int
	Residual   float64
	Variable   string
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("year %d: %s did not converge after %d iterations (residual %g)", e.Year, e.Variable, e.Iterations, e.Residual)
}

func (e *NonConvergenceError) Unwrap() error { return ErrNoConvergence }

// Solver advances the economy one year. Step must be deterministic: the same
// params and previous snapshot always give the same result.
type Solver interface {
	Initial(params map[string]float64) Snapshot
	Step(params map[string]float64, prev Snapshot) (Snapshot, error)
}

// Snapshot is the full economic state after one year. Treat it as read-only;
// accessors hand out copies.
type Snapshot struct {
	Year   int                `json:"year"`
	Values map[string]float64 `json:"values"`
	Lagged map[string]float64 `json:"lagged,omitempty"`
}

func (s Snapshot) Get(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Value returns the named variable, or 0 when absent.
func (s Snapshot) Value(name string) float64 { return s.Values[name] }

// Lag returns the prior year's value of a variable.
func (s Snapshot) Lag(name string) (float64, bool) {
	v, ok := s.Lagged[name]
	return v, ok
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{Year: s.Year, Values: maps.Clone(s.Values), Lagged: maps.Clone(s.Lagged)}
}

func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Values))
	for k := range s.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
