// Package supply manages a player's deck, hand and discard pile.
package supply

import (
	"io"
	"log"
	"slices"
)

// Shuffler is satisfied by *rand.Rand from math/rand/v2.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Piles holds card names. Deck is drawn from the end.
type Piles struct {
	Deck    []string `json:"deck"`
	Hand    []string `json:"hand"`
	Discard []string `json:"discard"`
}

func NewPiles(starting []string, rng Shuffler) *Piles {
	p := &Piles{Deck: append([]string(nil), starting...)}
	p.ShuffleDeck(rng)
	return p
}

func (p *Piles) Clone() *Piles {
	return &Piles{
		Deck:    append([]string(nil), p.Deck...),
		Hand:    append([]string(nil), p.Hand...),
		Discard: append([]string(nil), p.Discard...),
	}
}

func (p *Piles) ShuffleDeck(rng Shuffler) {
	if rng == nil {
		return
	}
	rng.Shuffle(len(p.Deck), func(i, j int) { p.Deck[i], p.Deck[j] = p.Deck[j], p.Deck[i] })
}

// DiscardHand moves every hand card to the discard pile.
func (p *Piles) DiscardHand() {
	p.Discard = append(p.Discard, p.Hand...)
	p.Hand = p.Hand[:0]
}

func (p *Piles) InHand(name string) bool { return slices.Contains(p.Hand, name) }

// Contains reports whether any pile holds the card.
func (p *Piles) Contains(name string) bool {
	return slices.Contains(p.Hand, name) || slices.Contains(p.Deck, name) || slices.Contains(p.Discard, name)
}

// Multiset counts cards across all three piles.
func (p *Piles) Multiset() map[string]int {
	out := map[string]int{}
	for _, pile := range [][]string{p.Deck, p.Hand, p.Discard} {
		for _, c := range pile {
			out[c]++
		}
	}
	return out
}

func (p *Piles) Size() int { return len(p.Deck) + len(p.Hand) + len(p.Discard) }

type DrawResult struct {
	Drawn     []string
	Discarded []string
	Reshuffle int
	// Short is set when the piles ran out of distinct qualifying cards
	// before the target was reached.
	Short bool
}

// DrawToTarget draws until the hand holds target distinct qualifying cards.
// Non-qualifying draws and duplicates of cards already in hand go to the
// discard pile. If every distinct card left in deck and discard has been
// examined without reaching the target, the partial hand stands.
func DrawToTarget(p *Piles, target int, qualifies func(string) bool, rng Shuffler, logger *log.Logger) DrawResult {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	var res DrawResult

	inHand := map[string]bool{}
	unique := 0
	for _, c := range p.Hand {
		if qualifies(c) && !inHand[c] {
			unique++
		}
		inHand[c] = true
	}

	// A card identity is seen once popped; identities behave the same on
	// every pop, so a full cycle is every distinct name still in the pool.
	seen := map[string]bool{}
	for unique < target {
		if len(p.Deck) == 0 {
			if len(p.Discard) == 0 {
				break
			}
			p.Deck = append(p.Deck, p.Discard...)
			p.Discard = p.Discard[:0]
			p.ShuffleDeck(rng)
			res.Reshuffle++
		}
		if allSeen(seen, p.Deck, p.Discard) {
			break
		}

		c := p.Deck[len(p.Deck)-1]
		p.Deck = p.Deck[:len(p.Deck)-1]
		seen[c] = true

		if qualifies(c) && !inHand[c] {
			p.Hand = append(p.Hand, c)
			inHand[c] = true
			unique++
			res.Drawn = append(res.Drawn, c)
			continue
		}
		p.Discard = append(p.Discard, c)
		res.Discarded = append(res.Discarded, c)
	}

	if unique < target {
		res.Short = true
		logger.Printf("supply: only %d of %d distinct policy cards available; hand is short", unique, target)
	}
	return res
}

func allSeen(seen map[string]bool, piles ...[]string) bool {
	for _, pile := range piles {
		for _, c := range pile {
			if !seen[c] {
				return false
			}
		}
	}
	return true
}
