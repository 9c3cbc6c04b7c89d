// Package ledger tracks the cumulative and time-limited parameter effects of
// cards and events, and composes the parameter set handed to the solver each
// year.
package ledger

import (
	"io"
	"log"
	"maps"
	"math"
	"sort"

	"sfcgrowth.ai/internal/sim/catalogs"
)

// Lookup resolves catalog names. *catalogs.Catalogs satisfies it.
type Lookup interface {
	Card(name string) (catalogs.Card, bool)
	Event(name string) (catalogs.Event, bool)
	HasParameter(name string) bool
}

type SourceKind string

const (
	SourceCard  SourceKind = "card"
	SourceEvent SourceKind = "event"
)

type TemporaryEffect struct {
	Source    string     `json:"source"`
	Kind      SourceKind `json:"kind"`
	Param     string     `json:"param"`
	Delta     float64    `json:"delta"`
	Remaining int        `json:"remaining"`
}

// State is a detached copy of a ledger, stored in turn history.
type State struct {
	Persistent map[string]float64 `json:"persistent"`
	Temporary  []TemporaryEffect  `json:"temporary"`
}

func (s State) Clone() State {
	return State{
		Persistent: maps.Clone(s.Persistent),
		Temporary:  append([]TemporaryEffect(nil), s.Temporary...),
	}
}

type Ledger struct {
	persistent map[string]float64
	temporary  []TemporaryEffect
	log        *log.Logger
}

func New(logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Ledger{
		persistent: map[string]float64{},
		log:        logger,
	}
}

// FromState rebuilds a ledger from a history copy. The state is cloned.
func FromState(s State, logger *log.Logger) *Ledger {
	l := New(logger)
	st := s.Clone()
	if st.Persistent != nil {
		l.persistent = st.Persistent
	}
	l.temporary = st.Temporary
	return l
}

func (l *Ledger) State() State {
	return State{
		Persistent: maps.Clone(l.persistent),
		Temporary:  append([]TemporaryEffect(nil), l.temporary...),
	}
}

func (l *Ledger) Clone() *Ledger {
	return FromState(l.State(), l.log)
}

// Persistent returns the running total for one parameter.
func (l *Ledger) Persistent(param string) float64 { return l.persistent[param] }

// Temporaries returns the live temporary entries in insertion order.
func (l *Ledger) Temporaries() []TemporaryEffect {
	return append([]TemporaryEffect(nil), l.temporary...)
}

type Input struct {
	Baseline map[string]float64
	Cards    []string
	Events   []string
	Bonus    catalogs.BonusRule
}

// Compose produces this year's parameter values and advances the ledger:
// temporaries age by one turn, played cards and active events are folded in.
// Unknown names are logged and skipped; composition never fails.
func (l *Ledger) Compose(lookup Lookup, in Input) map[string]float64 {
	kept := l.temporary[:0]
	for _, t := range l.temporary {
		t.Remaining--
		if t.Remaining > 0 {
			kept = append(kept, t)
		}
	}
	l.temporary = kept

	final := maps.Clone(in.Baseline)
	if final == nil {
		final = map[string]float64{}
	}
	for _, p := range sortedParams(l.persistent) {
		if _, ok := final[p]; !ok {
			l.log.Printf("ledger: persistent total for unknown parameter %q skipped", p)
			continue
		}
		final[p] += l.persistent[p]
	}
	for _, t := range l.temporary {
		if _, ok := final[t.Param]; !ok {
			l.log.Printf("ledger: temporary %q on unknown parameter %q skipped", t.Source, t.Param)
			continue
		}
		final[t.Param] += t.Delta
	}

	for _, name := range in.Cards {
		card, ok := lookup.Card(name)
		if !ok {
			l.log.Printf("ledger: unknown card %q skipped", name)
			continue
		}
		for _, e := range card.Effects {
			if !l.known(lookup, final, e.Param, name) {
				continue
			}
			delta := in.Bonus.Scale(card, e.Delta)
			switch lt := card.Lifetime.(type) {
			case catalogs.Temporary:
				final[e.Param] += delta
				l.temporary = append(l.temporary, TemporaryEffect{
					Source: name, Kind: SourceCard, Param: e.Param, Delta: delta, Remaining: lt.Turns,
				})
			case catalogs.Persistent, nil:
				// final already holds baseline + old total (+ temporaries), so
				// adding the step keeps final == baseline + new total (+ temporaries).
				l.persistent[e.Param] += delta
				final[e.Param] += delta
			}
		}
	}

	for _, name := range in.Events {
		ev, ok := lookup.Event(name)
		if !ok {
			l.log.Printf("ledger: unknown event %q skipped", name)
			continue
		}
		for _, e := range ev.Effects {
			if !l.known(lookup, final, e.Param, name) {
				continue
			}
			final[e.Param] += e.Delta
			if lt, ok := ev.Lifetime.(catalogs.Temporary); ok {
				l.temporary = append(l.temporary, TemporaryEffect{
					Source: name, Kind: SourceEvent, Param: e.Param, Delta: e.Delta, Remaining: lt.Turns,
				})
			}
		}
	}
	return final
}

func (l *Ledger) known(lookup Lookup, final map[string]float64, param, source string) bool {
	if _, ok := final[param]; ok && lookup.HasParameter(param) {
		return true
	}
	l.log.Printf("ledger: %q targets unknown parameter %q; effect skipped", source, param)
	return false
}

// Normalize zeroes persistent totals whose magnitude is below tol.
func (l *Ledger) Normalize(tol float64) {
	for p, v := range l.persistent {
		if math.Abs(v) < tol {
			l.persistent[p] = 0
		}
	}
}

func sortedParams(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
