package dilemma

import (
	"math/rand/v2"
	"testing"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/supply"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func count(p *supply.Piles, name string) int { return p.Multiset()[name] }

func TestApplyChoice_ReplacesGenericEquivalent(t *testing.T) {
	cats := loadCatalogs(t)
	p := &supply.Piles{
		Hand:    []string{"Interest Rate Cut"},
		Deck:    []string{"Cut Income Tax Rate", "Increase Government Spending"},
		Discard: []string{"Increase Government Spending"},
	}
	opt := catalogs.DilemmaOption{
		AddCards: []string{"Public Employment Corps Initiative", "Public Employment Corps Initiative"},
	}
	out := ApplyChoice(opt, p, cats, nil, nil)

	if out.Added != "Public Employment Corps Initiative" || out.Replaced != "Increase Government Spending" {
		t.Fatalf("outcome: %+v", out)
	}
	if count(p, "Public Employment Corps Initiative") != 1 {
		t.Fatalf("expected exactly one added card: %+v", p)
	}
	// The deck copy is found before the discard copy.
	if count(p, "Increase Government Spending") != 1 || p.Discard[0] != "Increase Government Spending" {
		t.Fatalf("generic not replaced in deck: %+v", p)
	}
	if count(p, "Cut Income Tax Rate") != 1 || p.Size() != 4 {
		t.Fatalf("unexpected piles: %+v", p)
	}
}

func TestApplyChoice_ReplacesSameStanceAndType(t *testing.T) {
	cats := loadCatalogs(t)
	p := &supply.Piles{
		Hand: []string{"Interest Rate Hike"},
		Deck: []string{"Raise Income Tax Rate", "Cut Income Tax Rate"},
	}
	opt := catalogs.DilemmaOption{AddCards: []string{"Public Employment Corps Initiative"}}
	out := ApplyChoice(opt, p, cats, nil, nil)

	if out.Replaced != "Cut Income Tax Rate" {
		t.Fatalf("outcome: %+v", out)
	}
	if count(p, "Cut Income Tax Rate") != 0 || count(p, "Public Employment Corps Initiative") != 1 {
		t.Fatalf("piles: %+v", p)
	}
}

func TestApplyChoice_AppendsWhenNothingMatches(t *testing.T) {
	cats := loadCatalogs(t)
	p := &supply.Piles{Deck: []string{"Increase Government Spending"}}
	opt := catalogs.DilemmaOption{AddCards: []string{"Monetary Shock Therapy"}}
	out := ApplyChoice(opt, p, cats, rand.New(rand.NewPCG(1, 1)), nil)

	if out.Replaced != "" || p.Size() != 2 || count(p, "Monetary Shock Therapy") != 1 {
		t.Fatalf("outcome=%+v piles=%+v", out, p)
	}
}

func TestApplyChoice_SkipsUnknownAddAndRemovesInPileOrder(t *testing.T) {
	cats := loadCatalogs(t)
	p := &supply.Piles{
		Hand:    []string{"Interest Rate Hike"},
		Deck:    []string{"Interest Rate Hike", "Decrease Government Spending"},
		Discard: []string{"Interest Rate Hike"},
	}
	opt := catalogs.DilemmaOption{
		AddCards:    []string{"Not A Card", "Steadfast Rate Increase"},
		RemoveCards: []string{"Interest Rate Hike", "Interest Rate Hike", "Missing Card"},
	}
	out := ApplyChoice(opt, p, cats, nil, nil)

	if out.Added != "Steadfast Rate Increase" || out.Replaced != "Interest Rate Hike" {
		t.Fatalf("outcome: %+v", out)
	}
	// The generic in hand was swapped; removals then hit the deck and discard copies.
	if p.Hand[0] != "Steadfast Rate Increase" || count(p, "Interest Rate Hike") != 0 {
		t.Fatalf("piles: %+v", p)
	}
	if len(out.Removed) != 2 || len(out.Missing) != 1 || out.Missing[0] != "Missing Card" {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestSelect_FiltersSeen(t *testing.T) {
	cats := loadCatalogs(t)
	rng := rand.New(rand.NewPCG(5, 5))
	p := supply.NewPiles(nil, rng)
	tr := NewTracker()

	all := cats.DilemmasFor("money_monk")
	if len(all) < 2 {
		t.Fatalf("need at least two dilemmas, got %d", len(all))
	}
	for _, d := range all[1:] {
		tr.MarkSeen(d.ID)
	}
	d, ok := Select(cats, "money_monk", tr, p, rng)
	if !ok || d.ID != all[0].ID {
		t.Fatalf("select: %v %+v", ok, d)
	}

	tr.MarkSeen(all[0].ID)
	if _, ok := Select(cats, "money_monk", tr, p, rng); ok {
		t.Fatalf("expected no dilemma once all are seen")
	}
}

type dilemmaList []catalogs.Dilemma

func (l dilemmaList) DilemmasFor(string) []catalogs.Dilemma { return l }

func TestSelect_SkipsExhaustedDilemmas(t *testing.T) {
	removes := func(cards ...string) catalogs.DilemmaOption {
		return catalogs.DilemmaOption{AddCards: []string{"QE Overdrive"}, RemoveCards: cards}
	}
	src := dilemmaList{
		{ID: "D1", OptionA: removes("Interest Rate Hike"), OptionB: removes("Quantitative Tightening")},
		{ID: "D2", OptionA: removes("Interest Rate Hike"), OptionB: removes("Interest Rate Hike")},
		{ID: "D3", OptionA: removes(), OptionB: removes()},
	}
	rng := rand.New(rand.NewPCG(9, 9))
	tr := NewTracker()
	tr.MarkSeen("D3")
	tr.RecordRemoved("Interest Rate Hike")

	// A copy is left, so D2 can still remove it.
	p := &supply.Piles{Deck: []string{"Interest Rate Hike"}}
	offered := map[string]bool{}
	for i := 0; i < 50; i++ {
		d, ok := Select(src, "x", tr, p, rng)
		if !ok {
			t.Fatalf("no dilemma offered")
		}
		offered[d.ID] = true
	}
	if !offered["D1"] || !offered["D2"] || offered["D3"] {
		t.Fatalf("offered: %v", offered)
	}

	// Last copy gone: D1 stays because its other option has a live target.
	p = &supply.Piles{Discard: []string{"Quantitative Tightening"}}
	for i := 0; i < 20; i++ {
		if d, ok := Select(src, "x", tr, p, rng); !ok || d.ID != "D1" {
			t.Fatalf("select: %v %+v", ok, d)
		}
	}

	tr.RecordRemoved("Quantitative Tightening")
	p = &supply.Piles{}
	if d, ok := Select(src, "x", tr, p, rng); ok {
		t.Fatalf("offered exhausted dilemma %s", d.ID)
	}
}

func TestOptionFor(t *testing.T) {
	d := catalogs.Dilemma{OptionA: catalogs.DilemmaOption{Name: "a"}, OptionB: catalogs.DilemmaOption{Name: "b"}}
	if o, err := OptionFor(d, ChoiceB); err != nil || o.Name != "b" {
		t.Fatalf("option b: %+v %v", o, err)
	}
	if _, err := OptionFor(d, "C"); err == nil {
		t.Fatalf("expected error for unknown choice")
	}
}
