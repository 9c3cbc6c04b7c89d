package ledger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"sfcgrowth.ai/internal/sim/catalogs"
)

type fakeLookup struct {
	cards  map[string]catalogs.Card
	events map[string]catalogs.Event
	params map[string]bool
}

func (f fakeLookup) Card(name string) (catalogs.Card, bool) {
	c, ok := f.cards[name]
	return c, ok
}

func (f fakeLookup) Event(name string) (catalogs.Event, bool) {
	e, ok := f.events[name]
	return e, ok
}

func (f fakeLookup) HasParameter(name string) bool { return f.params[name] }

func testLookup() fakeLookup {
	return fakeLookup{
		cards: map[string]catalogs.Card{
			"Rate Up": {
				Name: "Rate Up", Type: catalogs.PolicyMonetary, Stance: catalogs.StanceContractionary,
				Effects:  []catalogs.EffectSpec{{Param: "rate", Delta: 0.010}},
				Lifetime: catalogs.Persistent{},
			},
			"Spend": {
				Name: "Spend", Type: catalogs.PolicyFiscal, Stance: catalogs.StanceExpansionary,
				Effects:  []catalogs.EffectSpec{{Param: "growth", Delta: 0.004}},
				Lifetime: catalogs.Persistent{},
			},
			"Rebate": {
				Name: "Rebate", Type: catalogs.PolicyFiscal, Stance: catalogs.StanceExpansionary,
				Effects:  []catalogs.EffectSpec{{Param: "growth", Delta: 0.02}},
				Lifetime: catalogs.Temporary{Turns: 3},
			},
			"Broken": {
				Name: "Broken", Type: catalogs.PolicyFiscal, Stance: catalogs.StanceNeutral,
				Effects:  []catalogs.EffectSpec{{Param: "ghost", Delta: 1}},
				Lifetime: catalogs.Persistent{},
			},
		},
		events: map[string]catalogs.Event{
			"Panic": {
				Name: "Panic", Effects: []catalogs.EffectSpec{{Param: "spread", Delta: -0.025}},
				Lifetime: catalogs.Temporary{Turns: 1},
			},
			"Shock": {
				Name: "Shock", Effects: []catalogs.EffectSpec{{Param: "rate", Delta: 0.5}},
				Lifetime: catalogs.Persistent{},
			},
		},
		params: map[string]bool{"rate": true, "spread": true, "growth": true},
	}
}

func baseline() map[string]float64 {
	return map[string]float64{"rate": 0.035, "spread": 0.02, "growth": 0.03}
}

func TestCompose_PersistentCardStaysApplied(t *testing.T) {
	l := New(nil)
	lk := testLookup()

	got := l.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Rate Up"}})
	require.InDelta(t, 0.045, got["rate"], 1e-12)

	for i := 0; i < 4; i++ {
		got = l.Compose(lk, Input{Baseline: baseline()})
		require.InDelta(t, 0.045, got["rate"], 1e-12, "turn %d", i)
	}
	require.InDelta(t, 0.010, l.Persistent("rate"), 1e-12)
}

func TestCompose_TemporaryEventExpiresAfterDuration(t *testing.T) {
	l := New(nil)
	lk := testLookup()

	got := l.Compose(lk, Input{Baseline: baseline(), Events: []string{"Panic"}})
	require.InDelta(t, -0.005, got["spread"], 1e-12)

	got = l.Compose(lk, Input{Baseline: baseline()})
	require.InDelta(t, 0.02, got["spread"], 1e-12)
	require.Empty(t, l.Temporaries())
}

func TestCompose_TemporaryCardContributesExactlyDTurns(t *testing.T) {
	l := New(nil)
	lk := testLookup()

	contributions := 0
	got := l.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Rebate"}})
	for i := 0; i < 6; i++ {
		if got["growth"] > 0.03+1e-12 {
			contributions++
		}
		got = l.Compose(lk, Input{Baseline: baseline()})
	}
	require.Equal(t, 3, contributions)
	require.Zero(t, l.Persistent("growth"))
}

func TestCompose_EventWithoutDurationIsOneShot(t *testing.T) {
	l := New(nil)
	lk := testLookup()

	got := l.Compose(lk, Input{Baseline: baseline(), Events: []string{"Shock"}})
	require.InDelta(t, 0.535, got["rate"], 1e-12)
	require.Zero(t, l.Persistent("rate"))

	got = l.Compose(lk, Input{Baseline: baseline()})
	require.InDelta(t, 0.035, got["rate"], 1e-12)
}

func TestCompose_IdempotentWithoutInputs(t *testing.T) {
	l := New(nil)
	lk := testLookup()
	l.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Rate Up", "Spend"}})
	before := l.State()

	l.Compose(lk, Input{Baseline: baseline()})
	require.Equal(t, before.Persistent, l.State().Persistent)
}

func TestCompose_BonusScalesMatchingCardsOnly(t *testing.T) {
	l := New(nil)
	lk := testLookup()
	bonus := catalogs.BonusRule{
		Criteria:   []catalogs.BonusCriterion{{Stance: catalogs.StanceExpansionary, Type: catalogs.PolicyFiscal}},
		Multiplier: 1.5,
	}

	got := l.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Spend", "Rate Up"}, Bonus: bonus})
	require.InDelta(t, 0.006, l.Persistent("growth"), 1e-12)
	require.InDelta(t, 0.036, got["growth"], 1e-12)
	require.InDelta(t, 0.010, l.Persistent("rate"), 1e-12)

	l.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Rebate"}, Bonus: bonus})
	tmps := l.Temporaries()
	require.Len(t, tmps, 1)
	require.InDelta(t, 0.03, tmps[0].Delta, 1e-12)
}

func TestCompose_PersistentPlusTemporaryOnSameParameter(t *testing.T) {
	l := New(nil)
	lk := testLookup()

	got := l.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Rebate", "Spend"}})
	require.InDelta(t, 0.03+0.02+0.004, got["growth"], 1e-12)

	got = l.Compose(lk, Input{Baseline: baseline()})
	require.InDelta(t, 0.03+0.02+0.004, got["growth"], 1e-12)
}

func TestCompose_UnknownNamesAreLoggedAndSkipped(t *testing.T) {
	var buf bytes.Buffer
	l := New(log.New(&buf, "", 0))
	lk := testLookup()

	got := l.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Nope", "Broken", "Rate Up"}, Events: []string{"Ghost"}})
	require.InDelta(t, 0.045, got["rate"], 1e-12)
	require.NotContains(t, got, "ghost")
	require.Contains(t, buf.String(), `unknown card "Nope"`)
	require.Contains(t, buf.String(), `unknown parameter "ghost"`)
	require.Contains(t, buf.String(), `unknown event "Ghost"`)
}

func TestClone_IsIndependent(t *testing.T) {
	l := New(nil)
	lk := testLookup()
	l.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Rate Up", "Rebate"}})

	c := l.Clone()
	c.Compose(lk, Input{Baseline: baseline(), Cards: []string{"Rate Up"}})

	require.InDelta(t, 0.010, l.Persistent("rate"), 1e-12)
	require.InDelta(t, 0.020, c.Persistent("rate"), 1e-12)
	require.Equal(t, 3, l.Temporaries()[0].Remaining)
	require.Equal(t, 2, c.Temporaries()[0].Remaining)
}

func TestNormalize_ZeroesTinyTotals(t *testing.T) {
	l := FromState(State{Persistent: map[string]float64{"rate": 1e-17, "growth": 0.01}}, nil)
	l.Normalize(1e-15)
	require.Zero(t, l.Persistent("rate"))
	require.Equal(t, 0.01, l.Persistent("growth"))
}
