// Package schedule pre-rolls the per-year event list for a game. The result
// is fixed at game start and shared by the real timeline and every replay.
package schedule

import (
	"slices"

	"sfcgrowth.ai/internal/sim/catalogs"
)

// Roller is satisfied by *rand.Rand from math/rand/v2.
type Roller interface {
	Float64() float64
	IntN(n int) int
	Perm(n int) []int
}

// Schedule maps year to the ordered event names active in that year.
type Schedule map[int][]string

// For returns a copy of the events for year; missing years have none.
func (s Schedule) For(year int) []string {
	return append([]string(nil), s[year]...)
}

func (s Schedule) Clone() Schedule {
	out := make(Schedule, len(s))
	for y, ev := range s {
		out[y] = append([]string(nil), ev...)
	}
	return out
}

// Generate rolls every event once per year for years 1..endYear. Character
// events are only eligible for their own character. When two events of an
// exclusive group fire together one survivor is kept at random, and years
// with more than maxPerYear events keep a random subset in catalog order.
func Generate(cats *catalogs.Catalogs, characterID string, endYear, maxPerYear int, rng Roller) Schedule {
	out := Schedule{}
	for year := 1; year <= endYear; year++ {
		var fired []string
		for _, name := range cats.Events.Names {
			ev := cats.Events.ByName[name]
			if ev.Character != "" && ev.Character != characterID {
				continue
			}
			if rng.Float64() < ev.Probability {
				fired = append(fired, name)
			}
		}
		fired = resolveExclusive(fired, cats.Events.ExclusiveGroups, rng)
		if maxPerYear >= 0 && len(fired) > maxPerYear {
			fired = capEvents(fired, maxPerYear, rng)
		}
		if len(fired) > 0 {
			out[year] = fired
		}
	}
	return out
}

func resolveExclusive(fired []string, groups [][]string, rng Roller) []string {
	for _, g := range groups {
		var hits []string
		for _, name := range g {
			if slices.Contains(fired, name) {
				hits = append(hits, name)
			}
		}
		if len(hits) < 2 {
			continue
		}
		keep := hits[rng.IntN(len(hits))]
		fired = slices.DeleteFunc(fired, func(name string) bool {
			return name != keep && slices.Contains(hits, name)
		})
	}
	return fired
}

func capEvents(fired []string, n int, rng Roller) []string {
	idx := rng.Perm(len(fired))[:n]
	slices.Sort(idx)
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, fired[i])
	}
	return out
}
