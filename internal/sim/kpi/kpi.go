// Package kpi derives headline indicators from a solver snapshot and checks
// character objectives against them.
package kpi

import (
	"fmt"
	"sort"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/solver"
)

const (
	GDPIndex     = "gdp_index"
	Unemployment = "unemployment"
	Inflation    = "inflation"
	DebtGDP      = "debt_gdp"
)

// Kind decides how two values of an indicator are compared.
type Kind int

const (
	// Index indicators compare as a ratio.
	Index Kind = iota
	// Rate indicators are percentages and compare as a point difference.
	Rate
)

var kinds = map[string]Kind{
	GDPIndex:     Index,
	Unemployment: Rate,
	Inflation:    Rate,
	DebtGDP:      Rate,
}

func KindOf(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// Names lists the indicators in a stable order.
func Names() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Indicators is keyed by the constants above. Rates are in percent.
type Indicators map[string]float64

// Compute derives indicators from a snapshot. baseYk is the real output the
// GDP index is normalized to 100 against.
func Compute(s solver.Snapshot, baseYk float64) Indicators {
	ind := Indicators{
		Unemployment: (1 - s.Value("ER")) * 100,
		Inflation:    s.Value("PI") * 100,
	}
	if baseYk != 0 {
		ind[GDPIndex] = s.Value("Yk") / baseYk * 100
	}
	if y := s.Value("Y"); y != 0 {
		ind[DebtGDP] = s.Value("GD") / y * 100
	}
	return ind
}

type Result struct {
	Objective catalogs.Objective `json:"objective"`
	Actual    float64            `json:"actual"`
	Met       bool               `json:"met"`
}

// Evaluate checks each objective. An objective on an unknown indicator or
// with an unknown condition is reported as an error.
func Evaluate(objectives []catalogs.Objective, ind Indicators) ([]Result, bool, error) {
	out := make([]Result, 0, len(objectives))
	all := true
	for _, o := range objectives {
		actual, ok := ind[o.Key]
		if !ok {
			return nil, false, fmt.Errorf("kpi: objective on unknown indicator %q", o.Key)
		}
		met, err := compare(actual, o.Condition, o.Target)
		if err != nil {
			return nil, false, err
		}
		all = all && met
		out = append(out, Result{Objective: o, Actual: actual, Met: met})
	}
	return out, all, nil
}

func compare(actual float64, cond string, target float64) (bool, error) {
	switch cond {
	case ">=":
		return actual >= target, nil
	case "<=":
		return actual <= target, nil
	case ">":
		return actual > target, nil
	case "<":
		return actual < target, nil
	default:
		return false, fmt.Errorf("kpi: unknown condition %q", cond)
	}
}

// Diff compares a real value with a counterfactual one: percent difference
// for index indicators, percentage points for rates. ok is false when a
// ratio is undefined.
func Diff(name string, real, counterfactual float64) (float64, bool) {
	k, known := KindOf(name)
	if !known {
		return 0, false
	}
	if k == Rate {
		return real - counterfactual, true
	}
	if counterfactual == 0 {
		return 0, false
	}
	return (real/counterfactual - 1) * 100, true
}
