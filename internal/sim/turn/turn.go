// Package turn advances one timeline of the economy by a year at a time:
// compose parameters through the ledger, solve, record.
package turn

import (
	"fmt"
	"io"
	"log"
	"maps"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/digest"
	"sfcgrowth.ai/internal/sim/ledger"
	"sfcgrowth.ai/internal/sim/solver"
)

// Record is one solved year as kept in history.
type Record struct {
	Year     int                `json:"year"`
	Snapshot solver.Snapshot    `json:"snapshot"`
	Params   map[string]float64 `json:"params"`
	Cards    []string           `json:"cards"`
	Events   []string           `json:"events"`
	Ledger   ledger.State       `json:"ledger"`
	Digest   string             `json:"digest"`
}

func (r Record) Clone() Record {
	return Record{
		Year:     r.Year,
		Snapshot: r.Snapshot.Clone(),
		Params:   maps.Clone(r.Params),
		Cards:    append([]string(nil), r.Cards...),
		Events:   append([]string(nil), r.Events...),
		Ledger:   r.Ledger.Clone(),
		Digest:   r.Digest,
	}
}

// Timeline owns the ledger and solved history of one continuation of a game.
type Timeline struct {
	Initial solver.Snapshot
	Ledger  *ledger.Ledger
	History []Record
}

func NewTimeline(initial solver.Snapshot, logger *log.Logger) *Timeline {
	return &Timeline{Initial: initial, Ledger: ledger.New(logger)}
}

// Last returns the latest solved snapshot, or the initial state.
func (tl *Timeline) Last() solver.Snapshot {
	if n := len(tl.History); n > 0 {
		return tl.History[n-1].Snapshot
	}
	return tl.Initial
}

// Year is the last solved year; 0 before the first solve.
func (tl *Timeline) Year() int { return tl.Last().Year }

func (tl *Timeline) Clone() *Timeline {
	out := &Timeline{
		Initial: tl.Initial.Clone(),
		Ledger:  tl.Ledger.Clone(),
		History: make([]Record, len(tl.History)),
	}
	for i, r := range tl.History {
		out.History[i] = r.Clone()
	}
	return out
}

// ForkAt returns an independent timeline as it stood at the end of year-1.
// Year 1 forks from the initial state with an empty ledger.
func (tl *Timeline) ForkAt(year int, logger *log.Logger) (*Timeline, error) {
	if year < 1 || year > len(tl.History)+1 {
		return nil, fmt.Errorf("fork at year %d: history covers years 1..%d", year, len(tl.History))
	}
	out := &Timeline{Initial: tl.Initial.Clone(), Ledger: ledger.New(logger)}
	for _, r := range tl.History[:year-1] {
		out.History = append(out.History, r.Clone())
	}
	if year > 1 {
		out.Ledger = ledger.FromState(tl.History[year-2].Ledger, logger)
	}
	return out, nil
}

type Driver struct {
	Solver    solver.Solver
	Lookup    ledger.Lookup
	Baseline  map[string]float64
	Tolerance float64
	Logger    *log.Logger
}

func (d *Driver) logger() *log.Logger {
	if d.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return d.Logger
}

// Advance solves year on tl. The ledger and history change only when the
// solve succeeds; a solver error is returned wrapped and tl is untouched.
func (d *Driver) Advance(tl *Timeline, year int, cards, events []string, bonus catalogs.BonusRule) (Record, error) {
	prev := tl.Last()
	if year != prev.Year+1 {
		return Record{}, fmt.Errorf("advance: year %d does not follow %d", year, prev.Year)
	}
	led := tl.Ledger.Clone()
	params := led.Compose(d.Lookup, ledger.Input{
		Baseline: d.Baseline,
		Cards:    cards,
		Events:   events,
		Bonus:    bonus,
	})
	snap, err := d.Solver.Step(params, prev)
	if err != nil {
		return Record{}, fmt.Errorf("advance year %d: %w", year, err)
	}
	led.Normalize(d.Tolerance)

	rec := Record{
		Year:     year,
		Snapshot: snap,
		Params:   params,
		Cards:    append([]string(nil), cards...),
		Events:   append([]string(nil), events...),
		Ledger:   led.State(),
	}
	rec.Digest = RecordDigest(rec)
	tl.Ledger = led
	tl.History = append(tl.History, rec)
	d.logger().Printf("turn: year=%d cards=%d events=%d Yk=%.4f", year, len(cards), len(events), snap.Value("Yk"))
	return rec.Clone(), nil
}

// RecordDigest hashes everything that determines a record's outcome.
func RecordDigest(r Record) string {
	h := digest.New()
	h.Int(r.Year)
	h.FloatMap(r.Snapshot.Values)
	h.FloatMap(r.Params)
	h.Strings(r.Cards)
	h.Strings(r.Events)
	h.FloatMap(r.Ledger.Persistent)
	h.Int(len(r.Ledger.Temporary))
	for _, t := range r.Ledger.Temporary {
		h.String(t.Source)
		h.String(t.Param)
		h.Float(t.Delta)
		h.Int(t.Remaining)
	}
	return h.Sum()
}

// BaseOutput is the real output the GDP index is normalized against: year 1
// once solved, the initial state before that.
func (tl *Timeline) BaseOutput() float64 {
	if len(tl.History) > 0 {
		return tl.History[0].Snapshot.Value("Yk")
	}
	return tl.Initial.Value("Yk")
}
