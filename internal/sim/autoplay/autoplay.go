// Package autoplay drives a game session to completion with a fixed
// strategy, for batch runs and tests.
package autoplay

import (
	"fmt"
	"slices"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/dilemma"
	"sfcgrowth.ai/internal/sim/game"
)

type Strategy string

const (
	// None never plays a card and always takes option A.
	None Strategy = "none"
	// First plays the leading cards of the hand and always takes option A.
	First Strategy = "first"
	// Random plays a random subset and picks dilemma options at random.
	Random Strategy = "random"
	// Bonus prefers cards the character's bonus rule scales.
	Bonus Strategy = "bonus"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case None, First, Random, Bonus:
		return st, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Rand is satisfied by *rand.Rand from math/rand/v2.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type Player struct {
	Strategy Strategy
	Cards    dilemma.CardLookup
	Rng      Rand
}

// Run plays until the session ends. A simulation error is returned; the
// session is then in its terminal error phase.
func (p Player) Run(s *game.Session) error {
	for {
		switch s.Phase() {
		case game.PhaseGameOver:
			return nil
		case game.PhaseSimulationError:
			return s.Err()
		}
		if err := p.Year(s); err != nil {
			return err
		}
	}
}

// Year plays exactly one year.
func (p Player) Year(s *game.Session) error {
	d, err := s.BeginYear()
	if err != nil {
		return err
	}
	if d != nil {
		if _, err := s.ChooseDilemma(p.choose()); err != nil {
			return err
		}
	}
	_, err = s.PlayPolicies(p.pick(s.Hand(), s.Tuning().MaxCardsPerYear, s.Character().Bonus))
	return err
}

func (p Player) choose() dilemma.Choice {
	if p.Strategy == Random && p.Rng != nil && p.Rng.IntN(2) == 1 {
		return dilemma.ChoiceB
	}
	return dilemma.ChoiceA
}

func (p Player) pick(hand []string, limit int, bonus catalogs.BonusRule) []string {
	if limit > len(hand) {
		limit = len(hand)
	}
	switch p.Strategy {
	case First:
		return hand[:limit]
	case Random:
		if p.Rng == nil {
			return hand[:limit]
		}
		p.Rng.Shuffle(len(hand), func(i, j int) { hand[i], hand[j] = hand[j], hand[i] })
		return hand[:p.Rng.IntN(limit+1)]
	case Bonus:
		var preferred, rest []string
		for _, name := range hand {
			if c, ok := p.Cards.Card(name); ok && bonus.Matches(c) {
				preferred = append(preferred, name)
			} else {
				rest = append(rest, name)
			}
		}
		return slices.Concat(preferred, rest)[:limit]
	}
	return nil
}
