package dilemma

import (
	"maps"
	"slices"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/supply"
)

// Source is satisfied by *catalogs.Catalogs.
type Source interface {
	DilemmasFor(characterID string) []catalogs.Dilemma
}

// Picker is satisfied by *rand.Rand from math/rand/v2.
type Picker interface {
	IntN(n int) int
}

// Tracker remembers which dilemmas were offered and which cards a dilemma
// removed during one playthrough.
type Tracker struct {
	seen    map[string]bool
	removed map[string]bool
}

func NewTracker() *Tracker {
	return &Tracker{seen: map[string]bool{}, removed: map[string]bool{}}
}

func (t *Tracker) MarkSeen(id string)    { t.seen[id] = true }
func (t *Tracker) Seen(id string) bool   { return t.seen[id] }
func (t *Tracker) Removed(c string) bool { return t.removed[c] }

func (t *Tracker) RecordRemoved(cards ...string) {
	for _, c := range cards {
		t.removed[c] = true
	}
}

func (t *Tracker) SeenIDs() []string {
	ids := make([]string, 0, len(t.seen))
	for id := range t.seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *Tracker) Clone() *Tracker {
	return &Tracker{seen: maps.Clone(t.seen), removed: maps.Clone(t.removed)}
}

// Select picks an unseen dilemma for the character. A dilemma is not offered
// once every card it would remove was taken out by an earlier dilemma and no
// copy is left in p, since neither option could remove anything.
func Select(src Source, characterID string, tr *Tracker, p *supply.Piles, rng Picker) (catalogs.Dilemma, bool) {
	var candidates []catalogs.Dilemma
	for _, d := range src.DilemmasFor(characterID) {
		if tr.Seen(d.ID) || tr.exhausted(d, p) {
			continue
		}
		candidates = append(candidates, d)
	}
	if len(candidates) == 0 {
		return catalogs.Dilemma{}, false
	}
	return candidates[rng.IntN(len(candidates))], true
}

func (t *Tracker) exhausted(d catalogs.Dilemma, p *supply.Piles) bool {
	n := 0
	for _, opt := range []catalogs.DilemmaOption{d.OptionA, d.OptionB} {
		for _, c := range opt.RemoveCards {
			if !t.removed[c] || p.Contains(c) {
				return false
			}
			n++
		}
	}
	return n > 0
}
