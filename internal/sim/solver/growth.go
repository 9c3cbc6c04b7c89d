package solver

import (
	"fmt"
	"maps"
	"math"
	"sort"
)

// Spread weights on bank capital and reserve requirements in the lending rate.
const (
	capitalSpreadWeight = 0.1
	reserveSpreadWeight = 0.1
)

// GrowthModel is a compact stock-flow growth model. Output, consumption,
// disposable income and new borrowing are solved simultaneously by
// fixed-point iteration; everything else follows recursively from the
// previous year.
type GrowthModel struct {
	MaxIterations int
	Threshold     float64
}

func NewGrowthModel(maxIterations int, threshold float64) *GrowthModel {
	return &GrowthModel{MaxIterations: maxIterations, Threshold: threshold}
}

// Parameters lists every parameter Step reads.
func (m *GrowthModel) Parameters() []string {
	out := []string{
		"alpha1", "alpha2", "theta", "eta0", "deltarep", "delta",
		"gamma0", "gammar", "gammau", "sigmak",
		"Rbbar", "ADDbl", "NPLk", "ro", "NCAR", "RA",
		"GRg", "GRpr", "omega0", "omega1", "omega2", "ERn", "phi", "Nfe",
	}
	sort.Strings(out)
	return out
}

func lendingRate(p map[string]float64) float64 {
	return p["Rbbar"] + p["ADDbl"] + p["NPLk"] + capitalSpreadWeight*p["NCAR"] + reserveSpreadWeight*p["ro"]
}

// Initial returns the year 0 state: a stylized economy indexed so that real
// output is 100.
func (m *GrowthModel) Initial(params map[string]float64) Snapshot {
	const yk = 100.0
	pr := 1.0
	n := yk / pr
	p := 1.0
	nfe := params["Nfe"]
	er := 0.0
	if nfe != 0 {
		er = n / nfe
	}
	return Snapshot{
		Year: 0,
		Values: map[string]float64{
			"Yk": yk, "Ck": 66, "Ik": 15.2, "Gk": 18.5, "K": 110,
			"YDk": 76, "NLk": 2.7,
			"PR": pr, "N": n, "ER": er,
			"W": p * pr / (1 + params["phi"]), "P": p, "PI": 0.02,
			"Y": yk * p, "T": 23.3, "PSBR": 0, "GD": 60,
			"Lhs": 30, "V": 120,
			"Rb": params["Rbbar"], "Rl": lendingRate(params),
			"U": 1, "GRk": 0.03, "GRy": 0.03,
		},
	}
}

func (m *GrowthModel) Step(params map[string]float64, prev Snapshot) (Snapshot, error) {
	for _, name := range m.Parameters() {
		if _, ok := params[name]; !ok {
			return Snapshot{}, fmt.Errorf("solver: missing parameter %q", name)
		}
	}
	year := prev.Year + 1
	p := params
	lag := prev.Values

	pr := lag["PR"] * (1 + p["GRpr"])
	gk := lag["Gk"] * (1 + p["GRg"])
	rb := p["Rbbar"]
	rl := lendingRate(p)

	grw := p["GRpr"] + p["omega0"] + p["omega1"]*lag["PI"] + p["omega2"]*(lag["ER"]-p["ERn"])
	w := lag["W"] * (1 + grw)
	price := (1 + p["phi"]) * w / pr
	pi := price/lag["P"] - 1

	rrl := (1+rl)/(1+lag["PI"]) - 1
	ske := lag["Yk"] * (1 + lag["GRy"] + p["RA"])
	u := ske / (p["sigmak"] * lag["K"])
	grk := p["gamma0"] + p["gammau"]*(u-1) - p["gammar"]*rrl
	ik := (grk + p["delta"]) * lag["K"]
	k := lag["K"] * (1 + grk)

	interest := rb * lag["GD"] / price
	loanInterest := rl * lag["Lhs"] / price
	repayment := p["deltarep"] * lag["Lhs"] / price
	wealth := lag["V"] / price

	var ydk, nlk, ck float64
	yk := lag["Yk"]
	maxIter := m.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}
	for i := 1; ; i++ {
		ydk = (1-p["theta"])*(yk+interest) - loanInterest
		nlk = p["eta0"]*ydk - repayment
		ck = p["alpha1"]*(ydk+nlk) + p["alpha2"]*wealth
		next := ck + ik + gk
		residual := math.Abs(next - yk)
		yk = next
		if math.IsNaN(yk) || math.IsInf(yk, 0) {
			return Snapshot{}, &NonConvergenceError{Year: year, Iterations: i, Residual: residual, Variable: "Yk"}
		}
		if residual <= m.Threshold*math.Max(1, math.Abs(yk)) {
			break
		}
		if i >= maxIter {
			return Snapshot{}, &NonConvergenceError{Year: year, Iterations: i, Residual: residual, Variable: "Yk"}
		}
	}

	n := yk / pr
	y := yk * price
	t := p["theta"] * (y + rb*lag["GD"])
	g := gk * price
	psbr := g + rb*lag["GD"] - t
	nl := nlk * price

	values := map[string]float64{
		"Yk": yk, "Ck": ck, "Ik": ik, "Gk": gk, "K": k,
		"YDk": ydk, "NLk": nlk,
		"PR": pr, "N": n, "ER": n / p["Nfe"],
		"W": w, "P": price, "PI": pi,
		"Y": y, "T": t, "PSBR": psbr, "GD": lag["GD"] + psbr,
		"Lhs": lag["Lhs"] + nl,
		"V":   lag["V"] + (ydk-ck)*price,
		"Rb":  rb, "Rl": rl,
		"U": u, "GRk": grk, "GRy": yk/lag["Yk"] - 1,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Snapshot{}, &NonConvergenceError{Year: year, Iterations: maxIter, Residual: v, Variable: name}
		}
	}

	return Snapshot{Year: year, Values: values, Lagged: maps.Clone(lag)}, nil
}
