// Package dilemma applies a player's dilemma choice to their card supply and
// picks which dilemma to offer next.
package dilemma

import (
	"errors"
	"fmt"
	"io"
	"log"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/supply"
)

type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
)

var ErrUnknownChoice = errors.New("unknown dilemma choice")

func OptionFor(d catalogs.Dilemma, c Choice) (catalogs.DilemmaOption, error) {
	switch c {
	case ChoiceA:
		return d.OptionA, nil
	case ChoiceB:
		return d.OptionB, nil
	}
	return catalogs.DilemmaOption{}, fmt.Errorf("%w: %q", ErrUnknownChoice, c)
}

// CardLookup is satisfied by *catalogs.Catalogs.
type CardLookup interface {
	Card(name string) (catalogs.Card, bool)
	GenericFor(stance catalogs.Stance, typ catalogs.PolicyType) (string, bool)
}

type Outcome struct {
	Added string `json:"added,omitempty"`
	// Replaced is the card the addition displaced; empty when it was appended to the deck.
	Replaced string   `json:"replaced,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

// ApplyChoice adds at most one card from the option (swapping out a card of
// the same stance and type when one exists), removes the option's removal
// targets and reshuffles the deck.
func ApplyChoice(opt catalogs.DilemmaOption, p *supply.Piles, lookup CardLookup, rng supply.Shuffler, logger *log.Logger) Outcome {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	var out Outcome

	for _, name := range opt.AddCards {
		card, ok := lookup.Card(name)
		if !ok {
			logger.Printf("dilemma: unknown card %q in %q skipped", name, opt.Name)
			continue
		}
		out.Added = name
		if g, ok := lookup.GenericFor(card.Stance, card.Type); ok && g != name {
			if replaceFirst(p, name, func(c string) bool { return c == g }) {
				out.Replaced = g
				break
			}
		}
		var displaced string
		if replaceFirst(p, name, func(c string) bool {
			if c == name {
				return false
			}
			other, ok := lookup.Card(c)
			if ok && other.Stance == card.Stance && other.Type == card.Type {
				displaced = c
				return true
			}
			return false
		}) {
			out.Replaced = displaced
			break
		}
		p.Deck = append(p.Deck, name)
		break
	}

	for _, name := range opt.RemoveCards {
		if removeFirst(p, name) {
			out.Removed = append(out.Removed, name)
			continue
		}
		out.Missing = append(out.Missing, name)
	}

	p.ShuffleDeck(rng)
	return out
}

// replaceFirst swaps the first card matching pred, searching hand, then deck,
// then discard.
func replaceFirst(p *supply.Piles, with string, pred func(string) bool) bool {
	for _, pile := range [][]string{p.Hand, p.Deck, p.Discard} {
		for i, c := range pile {
			if pred(c) {
				pile[i] = with
				return true
			}
		}
	}
	return false
}

func removeFirst(p *supply.Piles, name string) bool {
	for _, pile := range []*[]string{&p.Hand, &p.Deck, &p.Discard} {
		for i, c := range *pile {
			if c == name {
				*pile = append((*pile)[:i], (*pile)[i+1:]...)
				return true
			}
		}
	}
	return false
}
