// Package replay re-runs a game from a past year with that year's cards
// withheld, to attribute outcomes to the player's decisions.
package replay

import (
	"errors"
	"fmt"
	"io"
	"log"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/kpi"
	"sfcgrowth.ai/internal/sim/schedule"
	"sfcgrowth.ai/internal/sim/solver"
	"sfcgrowth.ai/internal/sim/turn"
)

var ErrForkOutOfRange = errors.New("fork year out of range")

type Options struct {
	// ReplayLaterCards withholds only the fork year's cards and replays the
	// cards actually played in later years. By default every year from the
	// fork on is played with no cards.
	ReplayLaterCards bool
}

type Engine struct {
	Driver   *turn.Driver
	Schedule schedule.Schedule
	Bonus    catalogs.BonusRule
	Options  Options
	Logger   *log.Logger
}

func (e *Engine) logger() *log.Logger {
	if e.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return e.Logger
}

// RunBaseline forks real at the end of forkYear-1 and advances the fork to
// the real timeline's last solved year using the same event schedule. The
// real timeline is never modified.
func (e *Engine) RunBaseline(real *turn.Timeline, forkYear int) ([]solver.Snapshot, error) {
	last := real.Year()
	if forkYear < 1 || forkYear > last {
		return nil, fmt.Errorf("baseline from year %d (last solved %d): %w", forkYear, last, ErrForkOutOfRange)
	}
	fork, err := real.ForkAt(forkYear, e.Logger)
	if err != nil {
		return nil, err
	}
	out := make([]solver.Snapshot, 0, last-forkYear+1)
	for y := forkYear; y <= last; y++ {
		var cards []string
		if e.Options.ReplayLaterCards && y > forkYear {
			cards = real.History[y-1].Cards
		}
		rec, err := e.Driver.Advance(fork, y, cards, e.Schedule.For(y), e.Bonus)
		if err != nil {
			return nil, fmt.Errorf("baseline from year %d: %w", forkYear, err)
		}
		out = append(out, rec.Snapshot)
	}
	return out, nil
}

// Impact is the effect attributed to one year's decisions. Diff holds real
// minus counterfactual: percent for index indicators, points for rates.
type Impact struct {
	ForkYear       int                `json:"fork_year"`
	Cards          []string           `json:"cards"`
	Available      bool               `json:"available"`
	Error          string             `json:"error,omitempty"`
	Counterfactual kpi.Indicators     `json:"counterfactual,omitempty"`
	Diff           map[string]float64 `json:"diff,omitempty"`
}

type Report struct {
	FinalYear int            `json:"final_year"`
	Real      kpi.Indicators `json:"real"`
	Impacts   []Impact       `json:"impacts"`
}

// Report runs one fork per solved year, sequentially. A fork that fails to
// solve is marked unavailable and the rest still run.
func (e *Engine) Report(real *turn.Timeline) Report {
	last := real.Year()
	base := real.BaseOutput()
	rep := Report{FinalYear: last, Real: kpi.Compute(real.Last(), base)}
	for y := 1; y <= last; y++ {
		imp := Impact{ForkYear: y, Cards: append([]string(nil), real.History[y-1].Cards...)}
		snaps, err := e.RunBaseline(real, y)
		if err != nil {
			e.logger().Printf("replay: fork at year %d unavailable: %v", y, err)
			imp.Error = err.Error()
			rep.Impacts = append(rep.Impacts, imp)
			continue
		}
		cf := kpi.Compute(snaps[len(snaps)-1], base)
		imp.Available = true
		imp.Counterfactual = cf
		imp.Diff = map[string]float64{}
		for _, name := range kpi.Names() {
			if d, ok := kpi.Diff(name, rep.Real[name], cf[name]); ok {
				imp.Diff[name] = d
			}
		}
		rep.Impacts = append(rep.Impacts, imp)
	}
	return rep
}
