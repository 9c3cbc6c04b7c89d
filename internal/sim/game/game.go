// Package game runs one player's playthrough: the year cycle of dilemma,
// draw, policy play and solve, over a single real timeline.
package game

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"

	"github.com/google/uuid"

	"sfcgrowth.ai/internal/sim/catalogs"
	"sfcgrowth.ai/internal/sim/dilemma"
	"sfcgrowth.ai/internal/sim/kpi"
	"sfcgrowth.ai/internal/sim/replay"
	"sfcgrowth.ai/internal/sim/schedule"
	"sfcgrowth.ai/internal/sim/solver"
	"sfcgrowth.ai/internal/sim/supply"
	"sfcgrowth.ai/internal/sim/tuning"
	"sfcgrowth.ai/internal/sim/turn"
)

type Phase string

const (
	PhaseYearStart       Phase = "YEAR_START"
	PhasePolicySelection Phase = "POLICY_SELECTION"
	PhaseSimulating      Phase = "SIMULATING"
	PhaseGameOver        Phase = "GAME_OVER"
	PhaseSimulationError Phase = "SIMULATION_ERROR"
)

var (
	ErrWrongPhase       = errors.New("action not allowed in current phase")
	ErrTooManyCards     = errors.New("too many cards played")
	ErrCardNotInHand    = errors.New("card not in hand")
	ErrGameOver         = errors.New("game is over")
	ErrNoDilemma        = errors.New("no dilemma pending")
	ErrUnknownCharacter = errors.New("unknown character")
)

// Seed streams. The event schedule draws from its own stream so that it does
// not depend on the player's choices.
const (
	scheduleStream = 0x5eed_0001
	playStream     = 0x5eed_0002
)

type Config struct {
	// ID is generated when empty.
	ID          string
	CharacterID string
	Seed        uint64
	Tuning      tuning.Tuning
	Replay      replay.Options
}

// Transcript receives the header once and one entry per resolved year.
type Transcript interface {
	WriteHeader(TranscriptHeader) error
	WriteTurn(TurnLogEntry) error
}

type TranscriptHeader struct {
	GameID           string            `json:"game_id"`
	CharacterID      string            `json:"character_id"`
	Seed             uint64            `json:"seed"`
	Tuning           tuning.Tuning     `json:"tuning"`
	CatalogDigest    string            `json:"catalog_digest"`
	Schedule         schedule.Schedule `json:"schedule"`
	ReplayLaterCards bool              `json:"replay_later_cards,omitempty"`
}

type TurnLogEntry struct {
	Year    int      `json:"year"`
	Dilemma string   `json:"dilemma,omitempty"`
	Choice  string   `json:"choice,omitempty"`
	Hand    []string `json:"hand"`
	Cards   []string `json:"cards"`
	Events  []string `json:"events,omitempty"`
	Digest  string   `json:"digest,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type Session struct {
	ID        string
	cfg       Config
	cats      *catalogs.Catalogs
	character catalogs.Character
	log       *log.Logger

	rng      *rand.Rand
	phase    Phase
	piles    *supply.Piles
	tracker  *dilemma.Tracker
	pending  *catalogs.Dilemma
	schedule schedule.Schedule
	timeline *turn.Timeline
	driver   *turn.Driver
	engine   *replay.Engine
	err      error

	transcript Transcript
	entry      TurnLogEntry
}

func New(cfg Config, cats *catalogs.Catalogs, s solver.Solver, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	char, ok := cats.Character(cfg.CharacterID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharacter, cfg.CharacterID)
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	baseline := cats.Parameters.Baseline()
	rng := rand.New(rand.NewPCG(cfg.Seed, playStream))
	sched := schedule.Generate(cats, char.ID, cfg.Tuning.EndYear, cfg.Tuning.MaxEventsPerYear,
		rand.New(rand.NewPCG(cfg.Seed, scheduleStream)))

	driver := &turn.Driver{
		Solver:    s,
		Lookup:    cats,
		Baseline:  baseline,
		Tolerance: cfg.Tuning.PersistentTolerance,
		Logger:    logger,
	}
	sess := &Session{
		ID:        cfg.ID,
		cfg:       cfg,
		cats:      cats,
		character: char,
		log:       logger,
		rng:       rng,
		phase:     PhaseYearStart,
		piles:     supply.NewPiles(char.StartingDeck, rng),
		tracker:   dilemma.NewTracker(),
		schedule:  sched,
		timeline:  turn.NewTimeline(s.Initial(baseline), logger),
		driver:    driver,
		engine: &replay.Engine{
			Driver:   driver,
			Schedule: sched,
			Bonus:    char.Bonus,
			Options:  cfg.Replay,
			Logger:   logger,
		},
	}
	logger.Printf("game %s: character=%s seed=%d end_year=%d", sess.ID, char.ID, cfg.Seed, cfg.Tuning.EndYear)
	return sess, nil
}

// SetTranscript attaches t and writes the header immediately.
func (s *Session) SetTranscript(t Transcript) error {
	s.transcript = t
	if t == nil {
		return nil
	}
	return t.WriteHeader(s.TranscriptHeader())
}

func (s *Session) TranscriptHeader() TranscriptHeader {
	return TranscriptHeader{
		GameID:           s.ID,
		CharacterID:      s.character.ID,
		Seed:             s.cfg.Seed,
		Tuning:           s.cfg.Tuning,
		CatalogDigest:    s.cats.Digest(),
		Schedule:         s.schedule.Clone(),
		ReplayLaterCards: s.cfg.Replay.ReplayLaterCards,
	}
}

// BeginYear opens the next year. When a dilemma is offered it is returned
// and must be resolved with ChooseDilemma before the hand is drawn.
func (s *Session) BeginYear() (*catalogs.Dilemma, error) {
	if err := s.expect(PhaseYearStart); err != nil {
		return nil, err
	}
	if s.pending != nil {
		d := *s.pending
		return &d, nil
	}
	year := s.UpcomingYear()
	s.entry = TurnLogEntry{Year: year}
	if s.cfg.Tuning.Dilemmas.Contains(year) {
		if d, ok := dilemma.Select(s.cats, s.character.ID, s.tracker, s.piles, s.rng); ok {
			s.tracker.MarkSeen(d.ID)
			s.pending = &d
			s.entry.Dilemma = d.ID
			s.log.Printf("game %s: year %d dilemma %s", s.ID, year, d.ID)
			out := d
			return &out, nil
		}
	}
	s.draw()
	return nil, nil
}

func (s *Session) ChooseDilemma(c dilemma.Choice) (dilemma.Outcome, error) {
	if err := s.expect(PhaseYearStart); err != nil {
		return dilemma.Outcome{}, err
	}
	if s.pending == nil {
		return dilemma.Outcome{}, ErrNoDilemma
	}
	opt, err := dilemma.OptionFor(*s.pending, c)
	if err != nil {
		return dilemma.Outcome{}, err
	}
	out := dilemma.ApplyChoice(opt, s.piles, s.cats, s.rng, s.log)
	s.tracker.RecordRemoved(out.Removed...)
	s.entry.Choice = string(c)
	s.pending = nil
	s.draw()
	return out, nil
}

func (s *Session) draw() {
	target := s.cfg.Tuning.DrawTarget
	if s.UpcomingYear() == 1 {
		target = s.cfg.Tuning.InitialHandSize
	}
	res := supply.DrawToTarget(s.piles, target, s.cats.Drawable, s.rng, s.log)
	if res.Short {
		s.log.Printf("game %s: hand short (%d of %d)", s.ID, len(s.piles.Hand), target)
	}
	s.entry.Hand = append([]string(nil), s.piles.Hand...)
	s.phase = PhasePolicySelection
}

// PlayPolicies plays cards from hand and solves the year. A solver failure
// ends the game in PhaseSimulationError.
func (s *Session) PlayPolicies(cards []string) (turn.Record, error) {
	if err := s.expect(PhasePolicySelection); err != nil {
		return turn.Record{}, err
	}
	if len(cards) > s.cfg.Tuning.MaxCardsPerYear {
		return turn.Record{}, fmt.Errorf("%w: %d > %d", ErrTooManyCards, len(cards), s.cfg.Tuning.MaxCardsPerYear)
	}
	for i, c := range cards {
		if !s.piles.InHand(c) {
			return turn.Record{}, fmt.Errorf("%w: %q", ErrCardNotInHand, c)
		}
		for _, prev := range cards[:i] {
			if prev == c {
				return turn.Record{}, fmt.Errorf("%w: %q played twice", ErrCardNotInHand, c)
			}
		}
	}

	year := s.UpcomingYear()
	events := s.schedule.For(year)
	s.phase = PhaseSimulating
	s.entry.Cards = append([]string{}, cards...)
	s.entry.Events = events

	rec, err := s.driver.Advance(s.timeline, year, cards, events, s.character.Bonus)
	if err != nil {
		s.phase = PhaseSimulationError
		s.err = err
		s.entry.Error = err.Error()
		s.writeTurn()
		s.log.Printf("game %s: year %d failed: %v", s.ID, year, err)
		return turn.Record{}, err
	}
	s.piles.DiscardHand()
	s.entry.Digest = rec.Digest
	s.writeTurn()

	if year >= s.cfg.Tuning.EndYear {
		s.phase = PhaseGameOver
		s.log.Printf("game %s: finished after year %d", s.ID, year)
	} else {
		s.phase = PhaseYearStart
	}
	return rec, nil
}

func (s *Session) writeTurn() {
	if s.transcript == nil {
		return
	}
	if err := s.transcript.WriteTurn(s.entry); err != nil {
		s.log.Printf("game %s: transcript: %v", s.ID, err)
	}
}

func (s *Session) expect(p Phase) error {
	switch s.phase {
	case p:
		return nil
	case PhaseGameOver:
		return ErrGameOver
	case PhaseSimulationError:
		return fmt.Errorf("%w: %v", ErrGameOver, s.err)
	}
	return fmt.Errorf("%w: in %s, need %s", ErrWrongPhase, s.phase, p)
}

func (s *Session) Phase() Phase                  { return s.phase }
func (s *Session) Character() catalogs.Character { return s.character }
func (s *Session) Seed() uint64                  { return s.cfg.Seed }
func (s *Session) Tuning() tuning.Tuning         { return s.cfg.Tuning }
func (s *Session) Err() error                    { return s.err }

// Year is the last solved year, 0 before the first.
func (s *Session) Year() int { return s.timeline.Year() }

func (s *Session) UpcomingYear() int { return s.timeline.Year() + 1 }

func (s *Session) Hand() []string { return append([]string(nil), s.piles.Hand...) }

func (s *Session) Piles() *supply.Piles { return s.piles.Clone() }

func (s *Session) Schedule() schedule.Schedule { return s.schedule.Clone() }

func (s *Session) PendingDilemma() *catalogs.Dilemma {
	if s.pending == nil {
		return nil
	}
	d := *s.pending
	return &d
}

func (s *Session) SeenDilemmas() []string { return s.tracker.SeenIDs() }

func (s *Session) History() []turn.Record {
	out := make([]turn.Record, len(s.timeline.History))
	for i, r := range s.timeline.History {
		out[i] = r.Clone()
	}
	return out
}

func (s *Session) Snapshot() solver.Snapshot { return s.timeline.Last().Clone() }

func (s *Session) Indicators() kpi.Indicators {
	return kpi.Compute(s.timeline.Last(), s.timeline.BaseOutput())
}

// Objectives evaluates the character's objectives on the latest year.
func (s *Session) Objectives() ([]kpi.Result, bool, error) {
	return kpi.Evaluate(s.character.Objectives, s.Indicators())
}

// ImpactReport forks the real timeline at every solved year. It is pure with
// respect to the session.
func (s *Session) ImpactReport() (replay.Report, error) {
	if s.timeline.Year() == 0 {
		return replay.Report{}, fmt.Errorf("%w: no year solved yet", ErrWrongPhase)
	}
	return s.engine.Report(s.timeline), nil
}
