package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	EndYear          int `yaml:"end_year" json:"end_year"`
	InitialHandSize  int `yaml:"initial_hand_size" json:"initial_hand_size"`
	DrawTarget       int `yaml:"draw_target" json:"draw_target"`
	MaxCardsPerYear  int `yaml:"max_cards_per_year" json:"max_cards_per_year"`
	MaxEventsPerYear int `yaml:"max_events_per_year" json:"max_events_per_year"`

	Dilemmas DilemmaWindow `yaml:"dilemmas" json:"dilemmas"`
	Solver   Solver        `yaml:"solver" json:"solver"`

	PersistentTolerance float64 `yaml:"persistent_tolerance" json:"persistent_tolerance"`
}

// DilemmaWindow bounds (inclusive) the years whose start may offer a dilemma.
type DilemmaWindow struct {
	FirstYear int `yaml:"first_year" json:"first_year"`
	LastYear  int `yaml:"last_year" json:"last_year"`
}

func (w DilemmaWindow) Contains(year int) bool {
	return year >= w.FirstYear && year <= w.LastYear
}

type Solver struct {
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations"`
	Threshold     float64 `yaml:"threshold" json:"threshold"`
}

func Defaults() Tuning {
	return Tuning{
		EndYear:          10,
		InitialHandSize:  5,
		DrawTarget:       4,
		MaxCardsPerYear:  2,
		MaxEventsPerYear: 2,
		Dilemmas: DilemmaWindow{
			FirstYear: 2,
			LastYear:  9,
		},
		Solver: Solver{
			MaxIterations: 1000,
			Threshold:     1e-6,
		},
		PersistentTolerance: 1e-15,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.EndYear < 1:
		return fmt.Errorf("end_year must be >= 1 (got %d)", t.EndYear)
	case t.InitialHandSize < 0 || t.DrawTarget < 0:
		return fmt.Errorf("hand targets must be >= 0")
	case t.MaxCardsPerYear < 0:
		return fmt.Errorf("max_cards_per_year must be >= 0")
	case t.MaxEventsPerYear < 0:
		return fmt.Errorf("max_events_per_year must be >= 0")
	case t.Solver.MaxIterations < 1:
		return fmt.Errorf("solver.max_iterations must be >= 1")
	case t.Solver.Threshold <= 0:
		return fmt.Errorf("solver.threshold must be > 0")
	case t.PersistentTolerance < 0:
		return fmt.Errorf("persistent_tolerance must be >= 0")
	}
	return nil
}
