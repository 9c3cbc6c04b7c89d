package game

import (
	"errors"
	"testing"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/dilemma"
	"sfcgrowth.ai/internal/sim/solver"
	"sfcgrowth.ai/internal/sim/tuning"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func shortTuning(years int) tuning.Tuning {
	tu := tuning.Defaults()
	tu.EndYear = years
	tu.Dilemmas.LastYear = years
	return tu
}

type memTranscript struct {
	header TranscriptHeader
	turns  []TurnLogEntry
}

func (m *memTranscript) WriteHeader(h TranscriptHeader) error {
	m.header = h
	return nil
}

func (m *memTranscript) WriteTurn(e TurnLogEntry) error {
	m.turns = append(m.turns, e)
	return nil
}

// failingSolver fails from failYear on.
type failingSolver struct {
	*solver.GrowthModel
	failYear int
}

func (f failingSolver) Step(params map[string]float64, prev solver.Snapshot) (solver.Snapshot, error) {
	if prev.Year+1 >= f.failYear {
		return solver.Snapshot{}, &solver.NonConvergenceError{Year: prev.Year + 1, Iterations: 1000, Variable: "Yk"}
	}
	return f.GrowthModel.Step(params, prev)
}

// playYear resolves any dilemma with choice and plays up to two cards from
// the front of the hand.
func playYear(t *testing.T, s *Session, choice dilemma.Choice) []string {
	t.Helper()
	d, err := s.BeginYear()
	if err != nil {
		t.Fatalf("begin year %d: %v", s.UpcomingYear(), err)
	}
	if d != nil {
		if _, err := s.ChooseDilemma(choice); err != nil {
			t.Fatalf("choose: %v", err)
		}
	}
	hand := s.Hand()
	if len(hand) > 2 {
		hand = hand[:2]
	}
	rec, err := s.PlayPolicies(hand)
	if err != nil {
		t.Fatalf("play year %d: %v", s.UpcomingYear(), err)
	}
	return []string{rec.Digest}
}

func newSession(t *testing.T, cats *catalogs.Catalogs, seed uint64, years int) *Session {
	t.Helper()
	s, err := New(Config{CharacterID: "demand_side_devotee", Seed: seed, Tuning: shortTuning(years)},
		cats, solver.NewGrowthModel(1000, 1e-6), nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestSession_FullPlaythrough(t *testing.T) {
	cats := loadCatalogs(t)
	s := newSession(t, cats, 42, 5)
	tr := &memTranscript{}
	if err := s.SetTranscript(tr); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if s.Phase() != PhaseYearStart || s.Year() != 0 {
		t.Fatalf("initial phase=%s year=%d", s.Phase(), s.Year())
	}

	for s.Phase() != PhaseGameOver {
		playYear(t, s, dilemma.ChoiceA)
	}
	if len(s.History()) != 5 || s.Year() != 5 {
		t.Fatalf("history=%d year=%d", len(s.History()), s.Year())
	}
	if _, err := s.BeginYear(); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	if tr.header.GameID != s.ID || tr.header.CharacterID != "demand_side_devotee" || len(tr.turns) != 5 {
		t.Fatalf("transcript: %+v turns=%d", tr.header, len(tr.turns))
	}
	for i, e := range tr.turns {
		if e.Year != i+1 || e.Digest != s.History()[i].Digest {
			t.Fatalf("turn %d entry mismatch: %+v", i, e)
		}
	}

	ind := s.Indicators()
	if ind["gdp_index"] <= 0 {
		t.Fatalf("indicators: %+v", ind)
	}
	res, _, err := s.Objectives()
	if err != nil || len(res) != len(s.Character().Objectives) {
		t.Fatalf("objectives: %v %d", err, len(res))
	}
	rep, err := s.ImpactReport()
	if err != nil || len(rep.Impacts) != 5 {
		t.Fatalf("impact report: %v %+v", err, rep)
	}
}

func TestSession_SameSeedSameChoicesSameDigests(t *testing.T) {
	cats := loadCatalogs(t)
	run := func() []string {
		s := newSession(t, cats, 7, 6)
		var out []string
		for s.Phase() != PhaseGameOver {
			out = append(out, playYear(t, s, dilemma.ChoiceB)...)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("year %d digest differs", i+1)
		}
	}
}

func TestSession_FirstHandUsesInitialSize(t *testing.T) {
	cats := loadCatalogs(t)
	s := newSession(t, cats, 3, 3)
	if _, err := s.BeginYear(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	hand := s.Hand()
	if len(hand) == 0 || len(hand) > s.Tuning().InitialHandSize {
		t.Fatalf("hand size %d", len(hand))
	}
	seen := map[string]bool{}
	for _, c := range hand {
		if seen[c] || !cats.Drawable(c) {
			t.Fatalf("bad hand %v", hand)
		}
		seen[c] = true
	}
}

func TestSession_ValidatesPlays(t *testing.T) {
	cats := loadCatalogs(t)
	s := newSession(t, cats, 9, 3)

	if _, err := s.PlayPolicies(nil); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
	if _, err := s.ChooseDilemma(dilemma.ChoiceA); !errors.Is(err, ErrNoDilemma) {
		t.Fatalf("expected ErrNoDilemma, got %v", err)
	}
	if _, err := s.BeginYear(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	hand := s.Hand()
	if len(hand) < 3 {
		t.Skipf("hand too small for this check: %v", hand)
	}
	if _, err := s.PlayPolicies(hand[:3]); !errors.Is(err, ErrTooManyCards) {
		t.Fatalf("expected ErrTooManyCards, got %v", err)
	}
	if _, err := s.PlayPolicies([]string{"Not In Hand"}); !errors.Is(err, ErrCardNotInHand) {
		t.Fatalf("expected ErrCardNotInHand, got %v", err)
	}
	if _, err := s.PlayPolicies([]string{hand[0], hand[0]}); !errors.Is(err, ErrCardNotInHand) {
		t.Fatalf("expected duplicate play rejected, got %v", err)
	}
	if s.Phase() != PhasePolicySelection {
		t.Fatalf("rejected plays changed phase to %s", s.Phase())
	}
	if _, err := s.PlayPolicies(nil); err != nil {
		t.Fatalf("empty play: %v", err)
	}
	if len(s.Hand()) != 0 {
		t.Fatalf("hand not discarded")
	}
}

func TestSession_SimulationErrorIsTerminal(t *testing.T) {
	cats := loadCatalogs(t)
	s, err := New(Config{CharacterID: "money_monk", Seed: 1, Tuning: shortTuning(4)},
		cats, failingSolver{GrowthModel: solver.NewGrowthModel(1000, 1e-6), failYear: 2}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr := &memTranscript{}
	_ = s.SetTranscript(tr)
	playYear(t, s, dilemma.ChoiceA)

	d, err := s.BeginYear()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if d != nil {
		if _, err := s.ChooseDilemma(dilemma.ChoiceA); err != nil {
			t.Fatalf("choose: %v", err)
		}
	}
	_, err = s.PlayPolicies(nil)
	if !errors.Is(err, solver.ErrNoConvergence) {
		t.Fatalf("expected ErrNoConvergence, got %v", err)
	}
	if s.Phase() != PhaseSimulationError || s.Err() == nil {
		t.Fatalf("phase=%s err=%v", s.Phase(), s.Err())
	}
	if _, err := s.BeginYear(); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	if len(s.History()) != 1 || len(tr.turns) != 2 || tr.turns[1].Error == "" {
		t.Fatalf("history=%d turns=%+v", len(s.History()), tr.turns)
	}
}

func TestSession_DilemmaNeverRepeats(t *testing.T) {
	cats := loadCatalogs(t)
	s := newSession(t, cats, 11, 9)
	for s.Phase() != PhaseGameOver {
		playYear(t, s, dilemma.ChoiceA)
	}
	seen := s.SeenDilemmas()
	if len(seen) == 0 {
		t.Fatalf("expected at least one dilemma over 8 eligible years")
	}
	for _, id := range seen {
		if d := cats.Dilemmas.ByID[id]; d.Character != "demand_side_devotee" {
			t.Fatalf("foreign dilemma %s", id)
		}
	}
}

// class_conscious_crusader choosing B never runs its pool dry within a
// seven-year window, whatever order the dilemmas come in.
func TestSession_DilemmaOfferedEveryWindowYear(t *testing.T) {
	cats := loadCatalogs(t)
	tu := tuning.Defaults()
	tu.EndYear = 8
	tu.Dilemmas.FirstYear, tu.Dilemmas.LastYear = 2, 8

	for seed := uint64(1); seed <= 6; seed++ {
		s, err := New(Config{CharacterID: "class_conscious_crusader", Seed: seed, Tuning: tu},
			cats, solver.NewGrowthModel(1000, 1e-6), nil)
		if err != nil {
			t.Fatalf("new session: %v", err)
		}
		for s.Phase() != PhaseGameOver {
			year := s.UpcomingYear()
			d, err := s.BeginYear()
			if err != nil {
				t.Fatalf("seed %d: begin year %d: %v", seed, year, err)
			}
			if tu.Dilemmas.Contains(year) && d == nil {
				t.Fatalf("seed %d: no dilemma in year %d, seen %v", seed, year, s.SeenDilemmas())
			}
			if d != nil {
				if _, err := s.ChooseDilemma(dilemma.ChoiceB); err != nil {
					t.Fatalf("seed %d: choose: %v", seed, err)
				}
			}
			if _, err := s.PlayPolicies(nil); err != nil {
				t.Fatalf("seed %d: play year %d: %v", seed, year, err)
			}
		}
		if got := len(s.SeenDilemmas()); got != 7 {
			t.Fatalf("seed %d: seen %d dilemmas, want 7", seed, got)
		}
	}
}

func TestNew_UnknownCharacter(t *testing.T) {
	cats := loadCatalogs(t)
	_, err := New(Config{CharacterID: "nobody", Tuning: tuning.Defaults()}, cats, solver.NewGrowthModel(10, 1e-6), nil)
	if !errors.Is(err, ErrUnknownCharacter) {
		t.Fatalf("expected ErrUnknownCharacter, got %v", err)
	}
}
